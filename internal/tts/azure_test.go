package tts_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAzureTestProvider(t *testing.T, handler http.HandlerFunc) *tts.Azure {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := tts.NewAzure(tts.AzureCredentials{
		SubscriptionKey: "secret-key",
		Region:          "westeurope",
		Endpoint:        server.URL,
	}, tts.DefaultRequestTimeout)
	require.NoError(t, err)

	return provider
}

func TestAzure_Synthesize(t *testing.T) {
	t.Parallel()

	var body string

	provider := newAzureTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cognitiveservices/v1", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "audio-16khz-32kbitrate-mono-mp3", r.Header.Get("X-Microsoft-OutputFormat"))
		assert.Equal(t, "application/ssml+xml", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		body = string(raw)

		_, _ = w.Write([]byte("azure-audio"))
	})

	audio, err := provider.Synthesize(t.Context(), "Fish & <chips>", "it-IT-IsabellaNeural", core.FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, []byte("azure-audio"), audio)

	assert.Contains(t, body, `name="it-IT-IsabellaNeural"`)
	assert.Contains(t, body, `xml:lang="it-IT"`)
	assert.Contains(t, body, "Fish &amp; &lt;chips&gt;")
}

func TestAzure_SynthesizeRejectsBadVoice(t *testing.T) {
	t.Parallel()

	provider := newAzureTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("azure-audio"))
	})

	_, err := provider.Synthesize(t.Context(), "hello", "", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrUnsupportedVoice)

	_, err = provider.Synthesize(t.Context(), "hello", "name#en-US#FEMALE", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrUnsupportedVoice)
}

func TestAzure_SynthesizeUnauthorized(t *testing.T) {
	t.Parallel()

	provider := newAzureTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := provider.Synthesize(t.Context(), "hello", "en-US-JennyNeural", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrSynthesis)

	var statusErr *tts.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestAzure_Voices(t *testing.T) {
	t.Parallel()

	provider := newAzureTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cognitiveservices/voices/list", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		_, _ = w.Write([]byte(`[
			{"ShortName":"en-US-JennyNeural","Gender":"Female","Locale":"en-US"},
			{"ShortName":"it-IT-DiegoNeural","Gender":"Male","Locale":"it-IT"}
		]`))
	})

	voices, err := provider.Voices(t.Context())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "en-US-JennyNeural", voices[0].ID)
	assert.Equal(t, "en-US-JennyNeural (Female)", voices[0].DisplayName)
	assert.Equal(t, "en-US", voices[0].LanguageCode)
	assert.Equal(t, core.GenderMale, voices[1].Gender)
}

func TestAzure_VoicesMalformedBody(t *testing.T) {
	t.Parallel()

	provider := newAzureTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := provider.Voices(t.Context())
	require.ErrorIs(t, err, tts.ErrCatalogFetch)
}

func TestNewAzure_RequiresKeyAndRegion(t *testing.T) {
	t.Parallel()

	_, err := tts.NewAzure(tts.AzureCredentials{Region: "westeurope"}, tts.DefaultRequestTimeout)
	require.ErrorIs(t, err, tts.ErrConfiguration)

	_, err = tts.NewAzure(tts.AzureCredentials{SubscriptionKey: "key"}, tts.DefaultRequestTimeout)
	require.ErrorIs(t, err, tts.ErrMissingCredentials)
}

func TestBuildSSML(t *testing.T) {
	t.Parallel()

	ssml, err := tts.BuildSSML("hi", "Custom")
	require.NoError(t, err)
	assert.Equal(t,
		`<speak version="1.0" xml:lang="en-US"><voice xml:lang="en-US" name="Custom">hi</voice></speak>`,
		string(ssml),
	)
}
