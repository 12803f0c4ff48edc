package tts_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleTranslate_Synthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_tts", r.URL.Path)
		assert.Equal(t, "ciao mondo", r.URL.Query().Get("q"))
		assert.Equal(t, "it", r.URL.Query().Get("tl"))
		assert.Equal(t, "10", r.URL.Query().Get("textlen"))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("translate-audio"))
	}))
	t.Cleanup(server.Close)

	provider, err := tts.NewGoogleTranslate(tts.TranslateCredentials{Endpoint: server.URL, RequestsPerSecond: 100}, tts.DefaultRequestTimeout)
	require.NoError(t, err)

	audio, err := provider.Synthesize(t.Context(), "ciao mondo", "it", core.FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, []byte("translate-audio"), audio)
}

func TestGoogleTranslate_OversizedAudioFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 33<<20))
	}))
	t.Cleanup(server.Close)

	provider, err := tts.NewGoogleTranslate(tts.TranslateCredentials{Endpoint: server.URL, RequestsPerSecond: 100}, tts.DefaultRequestTimeout)
	require.NoError(t, err)

	audio, err := provider.Synthesize(t.Context(), "ciao", "it", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrSynthesis)
	require.ErrorIs(t, err, tts.ErrResponseTooLarge)
	assert.Nil(t, audio)
}

func TestGoogleTranslate_RejectsLongTextWithoutCalling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("audio"))
	}))
	t.Cleanup(server.Close)

	provider, err := tts.NewGoogleTranslate(tts.TranslateCredentials{Endpoint: server.URL}, tts.DefaultRequestTimeout)
	require.NoError(t, err)
	assert.Equal(t, 200, provider.MaxTextLength())

	_, err = provider.Synthesize(t.Context(), strings.Repeat("a", 201), "en", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrTextTooLong)

	// 200 multi-byte characters are within the limit.
	_, err = provider.Synthesize(t.Context(), strings.Repeat("è", 200), "it", core.FormatMP3)
	require.NoError(t, err)

	_, err = provider.Synthesize(t.Context(), "hello", "xx-YY", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrUnsupportedVoice)

	assert.Equal(t, int32(1), calls.Load())
}

func TestGoogleTranslate_VoicesAreStatic(t *testing.T) {
	t.Parallel()

	provider, err := tts.NewGoogleTranslate(tts.TranslateCredentials{}, tts.DefaultRequestTimeout)
	require.NoError(t, err)

	voices, err := provider.Voices(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, voices)

	seen := map[string]bool{}
	for _, voice := range voices {
		assert.False(t, seen[voice.ID], "duplicate id %s", voice.ID)
		seen[voice.ID] = true
	}

	assert.True(t, seen["en"])
	assert.True(t, seen["it"])
}
