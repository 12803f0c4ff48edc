package tts

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Azure Speech REST surface.
const (
	azureEndpointFmt     = "https://%s.tts.speech.microsoft.com"
	azureSynthesizePath  = "/cognitiveservices/v1"
	azureVoicesPath      = "/cognitiveservices/voices/list"
	azureKeyHeader       = "Ocp-Apim-Subscription-Key"
	azureFormatHeader    = "X-Microsoft-OutputFormat"
	azureOutputFormatMP3 = "audio-16khz-32kbitrate-mono-mp3"
	contentTypeSSML      = "application/ssml+xml"
	ssmlVersion          = "1.0"
	azureDefaultLanguage = "en-US"
	errFmtMarshalSSML    = "failed to build SSML: %w"
)

// Azure synthesizes with Microsoft Azure Speech using a subscription key.
type Azure struct {
	rest            *restClient
	endpoint        string
	subscriptionKey string
}

type azureVoice struct {
	Name        string `json:"Name"`
	DisplayName string `json:"DisplayName"`
	ShortName   string `json:"ShortName"`
	Gender      string `json:"Gender"`
	Locale      string `json:"Locale"`
}

type ssmlSpeak struct {
	XMLName xml.Name  `xml:"speak"`
	Version string    `xml:"version,attr"`
	Lang    string    `xml:"xml:lang,attr"`
	Voice   ssmlVoice `xml:"voice"`
}

type ssmlVoice struct {
	Lang string `xml:"xml:lang,attr"`
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

// NewAzure validates the subscription key and region.
func NewAzure(creds AzureCredentials, timeout time.Duration) (*Azure, error) {
	if strings.TrimSpace(creds.SubscriptionKey) == "" {
		return nil, fmt.Errorf("%w: azure subscription key is required", ErrMissingCredentials)
	}

	endpoint := strings.TrimRight(creds.Endpoint, "/")
	if endpoint == "" {
		if strings.TrimSpace(creds.Region) == "" {
			return nil, fmt.Errorf("%w: azure region is required", ErrMissingCredentials)
		}

		endpoint = fmt.Sprintf(azureEndpointFmt, strings.TrimSpace(creds.Region))
	}

	return &Azure{
		rest:            newRESTClient(newHTTPClient(timeout)),
		endpoint:        endpoint,
		subscriptionKey: creds.SubscriptionKey,
	}, nil
}

// Kind implements core.Provider.
func (a *Azure) Kind() core.ServiceKind {
	return core.KindAzureTTS
}

// MaxTextLength implements core.Provider. Azure bounds audio duration, not characters.
func (a *Azure) MaxTextLength() int {
	return 0
}

// Synthesize implements core.Provider. The voice id is the voice ShortName.
func (a *Azure) Synthesize(ctx context.Context, text, voiceID string, format core.AudioFormat) ([]byte, error) {
	if format != core.FormatMP3 && format != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	shortName := strings.TrimSpace(voiceID)
	if shortName == "" || strings.ContainsAny(shortName, "#/ ") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVoice, voiceID)
	}

	body, err := BuildSSML(text, shortName)
	if err != nil {
		return nil, synthesisError(err)
	}

	audio, err := a.rest.send(ctx, restRequest{
		method: http.MethodPost,
		url:    a.endpoint + azureSynthesizePath,
		headers: map[string]string{
			azureKeyHeader:    a.subscriptionKey,
			azureFormatHeader: azureOutputFormatMP3,
			headerContentType: contentTypeSSML,
		},
		body: body,
	})
	if err != nil {
		return nil, synthesisError(err)
	}

	return audio, nil
}

// Voices implements core.Provider via the regional voices/list call.
func (a *Azure) Voices(ctx context.Context) ([]core.VoiceDescriptor, error) {
	var response []azureVoice

	err := a.rest.sendJSON(ctx, restRequest{
		method:  http.MethodGet,
		url:     a.endpoint + azureVoicesPath,
		headers: map[string]string{azureKeyHeader: a.subscriptionKey},
	}, nil, &response)
	if err != nil {
		return nil, catalogError(err)
	}

	voices := make([]core.VoiceDescriptor, 0, len(response))
	for _, voice := range response {
		voices = append(voices, core.VoiceDescriptor{
			ID:           voice.ShortName,
			DisplayName:  fmt.Sprintf("%s (%s)", voice.ShortName, voice.Gender),
			LanguageCode: voice.Locale,
			Gender:       core.ParseGender(voice.Gender),
		})
	}

	return voices, nil
}

// BuildSSML wraps text in the speak/voice envelope, escaping it as XML.
func BuildSSML(text, shortName string) ([]byte, error) {
	language := languageFromVoiceName(shortName)
	if language == "" {
		language = azureDefaultLanguage
	}

	document := ssmlSpeak{
		Version: ssmlVersion,
		Lang:    language,
		Voice: ssmlVoice{
			Lang: language,
			Name: shortName,
			Text: text,
		},
	}

	encoded, err := xml.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf(errFmtMarshalSSML, err)
	}

	return encoded, nil
}
