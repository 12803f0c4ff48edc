package tts

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Google Cloud Text-to-Speech REST surface.
const (
	googleDefaultEndpoint = "https://texttospeech.googleapis.com"
	googleSynthesizePath  = "/v1/text:synthesize"
	googleVoicesPath      = "/v1/voices"
	googleScope           = "https://www.googleapis.com/auth/cloud-platform"
	googleMaxTextLength   = 5000
	googleEncodingMP3     = "MP3"
	googleVoiceSeparator  = "#"
	googleVoiceParts      = 3
)

// GoogleTTS synthesizes with Google Cloud Text-to-Speech using a service account.
type GoogleTTS struct {
	rest     *restClient
	endpoint string
}

type googleSynthesizeRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoiceParams `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleInput struct {
	Text string `json:"text"`
}

type googleVoiceParams struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type googleSynthesizeResponse struct {
	AudioContent []byte `json:"audioContent"`
}

type googleVoicesResponse struct {
	Voices []googleVoice `json:"voices"`
}

type googleVoice struct {
	LanguageCodes []string `json:"languageCodes"`
	Name          string   `json:"name"`
	SSMLGender    string   `json:"ssmlGender"`
}

// NewGoogleTTS reads the service-account file (unless a token source is given)
// and builds an authenticated client.
func NewGoogleTTS(ctx context.Context, creds GoogleCredentials, timeout time.Duration) (*GoogleTTS, error) {
	tokenSource := creds.TokenSource
	if tokenSource == nil {
		source, err := googleTokenSource(ctx, creds.CredentialsFile)
		if err != nil {
			return nil, err
		}

		tokenSource = source
	}

	endpoint := strings.TrimRight(creds.Endpoint, "/")
	if endpoint == "" {
		endpoint = googleDefaultEndpoint
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, tokenSource),
			Base:   http.DefaultTransport,
		},
	}

	return &GoogleTTS{
		rest:     newRESTClient(httpClient),
		endpoint: endpoint,
	}, nil
}

func googleTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, fmt.Errorf("%w: google credentials file path is empty", ErrMissingCredentials)
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrMissingCredentials, credentialsFile, err)
	}

	credentials, err := google.CredentialsFromJSON(ctx, data, googleScope)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed credentials in %s: %w", ErrConfiguration, credentialsFile, err)
	}

	return credentials.TokenSource, nil
}

// Kind implements core.Provider.
func (g *GoogleTTS) Kind() core.ServiceKind {
	return core.KindGoogleTTS
}

// MaxTextLength implements core.Provider.
func (g *GoogleTTS) MaxTextLength() int {
	return googleMaxTextLength
}

// Synthesize implements core.Provider.
func (g *GoogleTTS) Synthesize(ctx context.Context, text, voiceID string, format core.AudioFormat) ([]byte, error) {
	voice, err := decodeGoogleVoiceID(voiceID)
	if err != nil {
		return nil, err
	}

	if format != core.FormatMP3 && format != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	payload := googleSynthesizeRequest{
		Input:       googleInput{Text: text},
		Voice:       voice,
		AudioConfig: googleAudioConfig{AudioEncoding: googleEncodingMP3},
	}

	var response googleSynthesizeResponse

	err = g.rest.sendJSON(ctx, restRequest{method: http.MethodPost, url: g.endpoint + googleSynthesizePath}, payload, &response)
	if err != nil {
		return nil, synthesisError(err)
	}

	if len(response.AudioContent) == 0 {
		return nil, synthesisError(ErrEmptyResponse)
	}

	return response.AudioContent, nil
}

// Voices implements core.Provider. A voice spoken in several languages yields
// one entry per language code.
func (g *GoogleTTS) Voices(ctx context.Context) ([]core.VoiceDescriptor, error) {
	var response googleVoicesResponse

	err := g.rest.sendJSON(ctx, restRequest{method: http.MethodGet, url: g.endpoint + googleVoicesPath}, nil, &response)
	if err != nil {
		return nil, catalogError(err)
	}

	voices := make([]core.VoiceDescriptor, 0, len(response.Voices))

	for _, voice := range response.Voices {
		for _, languageCode := range voice.LanguageCodes {
			voices = append(voices, core.VoiceDescriptor{
				ID:           EncodeGoogleVoiceID(voice.Name, languageCode, voice.SSMLGender),
				DisplayName:  fmt.Sprintf("%s %s - %s", languageCode, voice.Name, voice.SSMLGender),
				LanguageCode: languageCode,
				Gender:       core.ParseGender(voice.SSMLGender),
			})
		}
	}

	return voices, nil
}

// EncodeGoogleVoiceID composes "name#languageCode#GENDER".
func EncodeGoogleVoiceID(name, languageCode, ssmlGender string) string {
	return strings.Join([]string{name, languageCode, ssmlGender}, googleVoiceSeparator)
}

// decodeGoogleVoiceID accepts the composite id or a bare voice name such as
// "en-US-Wavenet-D", whose language is taken from the name.
func decodeGoogleVoiceID(voiceID string) (googleVoiceParams, error) {
	parts := strings.Split(strings.TrimSpace(voiceID), googleVoiceSeparator)

	switch {
	case len(parts) == googleVoiceParts && parts[0] != "" && parts[1] != "":
		return googleVoiceParams{Name: parts[0], LanguageCode: parts[1], SSMLGender: strings.ToUpper(parts[2])}, nil
	case len(parts) == 1 && parts[0] != "":
		languageCode := languageFromVoiceName(parts[0])
		if languageCode == "" {
			break
		}

		return googleVoiceParams{Name: parts[0], LanguageCode: languageCode}, nil
	}

	return googleVoiceParams{}, fmt.Errorf("%w: %q", ErrUnsupportedVoice, voiceID)
}

// languageFromVoiceName returns "en-US" for names shaped like "en-US-Wavenet-D".
func languageFromVoiceName(name string) string {
	segments := strings.SplitN(name, "-", 3)
	if len(segments) < 3 || segments[0] == "" || segments[1] == "" {
		return ""
	}

	return segments[0] + "-" + segments[1]
}
