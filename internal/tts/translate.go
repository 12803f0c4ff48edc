package tts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Google Translate's unauthenticated speech endpoint.
const (
	translateDefaultEndpoint  = "https://translate.google.com"
	translatePath             = "/translate_tts"
	translateMaxTextLength    = 200
	translateDefaultRate      = 2.0
	translateClient           = "tw-ob"
	translateDefaultSpeedFlag = "1"
)

// translateLanguage is one entry of the bundled language list.
type translateLanguage struct {
	code string
	name string
}

// translateLanguages is the static catalog; the endpoint offers no listing call.
var translateLanguages = []translateLanguage{
	{"af", "Afrikaans"}, {"ar", "Arabic"}, {"bg", "Bulgarian"}, {"bn", "Bengali"},
	{"bs", "Bosnian"}, {"ca", "Catalan"}, {"cs", "Czech"}, {"cy", "Welsh"},
	{"da", "Danish"}, {"de", "German"}, {"el", "Greek"}, {"en", "English"},
	{"en-AU", "English (Australia)"}, {"en-GB", "English (United Kingdom)"},
	{"en-US", "English (United States)"}, {"es", "Spanish"}, {"es-ES", "Spanish (Spain)"},
	{"es-US", "Spanish (United States)"}, {"et", "Estonian"}, {"fi", "Finnish"},
	{"fr", "French"}, {"gu", "Gujarati"}, {"hi", "Hindi"}, {"hr", "Croatian"},
	{"hu", "Hungarian"}, {"id", "Indonesian"}, {"is", "Icelandic"}, {"it", "Italian"},
	{"ja", "Japanese"}, {"jw", "Javanese"}, {"km", "Khmer"}, {"kn", "Kannada"},
	{"ko", "Korean"}, {"la", "Latin"}, {"lv", "Latvian"}, {"ml", "Malayalam"},
	{"mr", "Marathi"}, {"ms", "Malay"}, {"my", "Myanmar (Burmese)"}, {"ne", "Nepali"},
	{"nl", "Dutch"}, {"no", "Norwegian"}, {"pl", "Polish"}, {"pt", "Portuguese"},
	{"pt-BR", "Portuguese (Brazil)"}, {"ro", "Romanian"}, {"ru", "Russian"},
	{"si", "Sinhala"}, {"sk", "Slovak"}, {"sq", "Albanian"}, {"sr", "Serbian"},
	{"su", "Sundanese"}, {"sv", "Swedish"}, {"sw", "Swahili"}, {"ta", "Tamil"},
	{"te", "Telugu"}, {"th", "Thai"}, {"tl", "Filipino"}, {"tr", "Turkish"},
	{"uk", "Ukrainian"}, {"ur", "Urdu"}, {"vi", "Vietnamese"}, {"zh-CN", "Chinese (Simplified)"},
	{"zh-TW", "Chinese (Traditional)"},
}

// GoogleTranslate synthesizes with the free translate endpoint. Calls are
// throttled and capped at 200 characters; longer text is rejected, never truncated.
type GoogleTranslate struct {
	rest      *restClient
	endpoint  string
	limiter   *rate.Limiter
	languages map[string]struct{}
}

// NewGoogleTranslate builds the client; it needs no credentials.
func NewGoogleTranslate(creds TranslateCredentials, timeout time.Duration) (*GoogleTranslate, error) {
	endpoint := strings.TrimRight(creds.Endpoint, "/")
	if endpoint == "" {
		endpoint = translateDefaultEndpoint
	}

	_, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid translate endpoint %q: %w", ErrConfiguration, endpoint, err)
	}

	perSecond := creds.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = translateDefaultRate
	}

	languages := make(map[string]struct{}, len(translateLanguages))
	for _, language := range translateLanguages {
		languages[language.code] = struct{}{}
	}

	return &GoogleTranslate{
		rest:      newRESTClient(newHTTPClient(timeout)),
		endpoint:  endpoint,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		languages: languages,
	}, nil
}

// Kind implements core.Provider.
func (g *GoogleTranslate) Kind() core.ServiceKind {
	return core.KindGoogleTranslateFree
}

// MaxTextLength implements core.Provider.
func (g *GoogleTranslate) MaxTextLength() int {
	return translateMaxTextLength
}

// Synthesize implements core.Provider. The voice id is a language code.
func (g *GoogleTranslate) Synthesize(ctx context.Context, text, voiceID string, format core.AudioFormat) ([]byte, error) {
	if format != core.FormatMP3 && format != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	language := strings.TrimSpace(voiceID)
	if _, ok := g.languages[language]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVoice, voiceID)
	}

	length := utf8.RuneCountInString(text)
	if length > translateMaxTextLength {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, length, translateMaxTextLength)
	}

	err := g.limiter.Wait(ctx)
	if err != nil {
		return nil, synthesisError(fmt.Errorf("waiting for translate rate limiter: %w", err))
	}

	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("q", text)
	query.Set("tl", language)
	query.Set("total", "1")
	query.Set("idx", "0")
	query.Set("textlen", strconv.Itoa(length))
	query.Set("client", translateClient)
	query.Set("prev", "input")
	query.Set("ttsspeed", translateDefaultSpeedFlag)

	audio, err := g.rest.send(ctx, restRequest{
		method:  http.MethodGet,
		url:     g.endpoint + translatePath + "?" + query.Encode(),
		headers: map[string]string{headerAccept: contentTypeMPEG},
	})
	if err != nil {
		return nil, synthesisError(err)
	}

	return audio, nil
}

// Voices implements core.Provider from the bundled language list.
func (g *GoogleTranslate) Voices(_ context.Context) ([]core.VoiceDescriptor, error) {
	voices := make([]core.VoiceDescriptor, 0, len(translateLanguages))
	for _, language := range translateLanguages {
		voices = append(voices, core.VoiceDescriptor{
			ID:           language.code,
			DisplayName:  language.name + " - " + language.code,
			LanguageCode: language.code,
			Gender:       core.GenderUnspecified,
		})
	}

	return voices, nil
}
