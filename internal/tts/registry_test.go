package tts_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProviderDown = errors.New("provider down")

type fakeProvider struct {
	kind      core.ServiceKind
	voices    []core.VoiceDescriptor
	voicesErr error
	block     chan struct{}
	audio     []byte
	synthErr  error
	maxLength int

	mu    sync.Mutex
	texts []string
}

func (f *fakeProvider) Kind() core.ServiceKind { return f.kind }

func (f *fakeProvider) MaxTextLength() int { return f.maxLength }

func (f *fakeProvider) Synthesize(_ context.Context, text, _ string, _ core.AudioFormat) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.synthErr != nil {
		return nil, f.synthErr
	}

	return f.audio, nil
}

func (f *fakeProvider) Voices(_ context.Context) ([]core.VoiceDescriptor, error) {
	if f.block != nil {
		// Ignores its context on purpose: the resolver must not rely on it.
		<-f.block
	}

	return f.voices, f.voicesErr
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	return log
}

func staticFactory(provider core.Provider) tts.Factory {
	return func(context.Context, tts.Credentials) (core.Provider, error) {
		return provider, nil
	}
}

func waitReady(t *testing.T, registry *tts.Registry, kind core.ServiceKind) {
	t.Helper()

	catalog, ok := registry.Catalog(kind)
	require.True(t, ok)

	select {
	case <-catalog.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("catalog did not resolve")
	}
}

func TestRegistry_ListVoicesIsUniqueAndOrdered(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		kind: core.KindAzureTTS,
		voices: []core.VoiceDescriptor{
			{ID: "b", DisplayName: "Bravo", Gender: core.GenderMale},
			{ID: "a", DisplayName: "Alpha", Gender: core.GenderFemale},
			{ID: "b", DisplayName: "Bravo duplicate"},
			{ID: "", DisplayName: "No id"},
			{ID: "c"},
		},
	}

	registry := tts.NewRegistry(newTestLogger(t), tts.WithFactory(core.KindAzureTTS, staticFactory(provider)))

	_, err := registry.Configure(t.Context(), core.KindAzureTTS, tts.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, core.KindAzureTTS, registry.Active())

	voices := registry.ListVoices(t.Context())
	require.Len(t, voices, 3)
	assert.Equal(t, "a", voices[0].ID)
	assert.Equal(t, "b", voices[1].ID)
	assert.Equal(t, "Bravo", voices[1].DisplayName)
	assert.Equal(t, "c", voices[2].ID)
	assert.Equal(t, "c", voices[2].DisplayName)
	assert.Equal(t, core.GenderUnspecified, voices[2].Gender)

	for _, voice := range voices {
		assert.False(t, voice.Failed)
	}
}

func TestRegistry_CatalogFailureDegradesToSentinel(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{kind: core.KindPolly, voicesErr: errProviderDown}
	registry := tts.NewRegistry(newTestLogger(t), tts.WithFactory(core.KindPolly, staticFactory(provider)))

	_, err := registry.Configure(t.Context(), core.KindPolly, tts.Credentials{})
	require.NoError(t, err)

	voices := registry.ListVoices(t.Context())
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Failed)
	assert.Equal(t, tts.SentinelVoiceID, voices[0].ID)
	assert.Contains(t, voices[0].DisplayName, "Amazon Polly")
	assert.Contains(t, voices[0].DisplayName, "provider down")

	catalog, ok := registry.Catalog(core.KindPolly)
	require.True(t, ok)
	require.ErrorIs(t, catalog.Err(), tts.ErrCatalogFetch)
}

func TestRegistry_EmptyCatalogDegradesToSentinel(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{kind: core.KindGoogleTTS}
	registry := tts.NewRegistry(newTestLogger(t), tts.WithFactory(core.KindGoogleTTS, staticFactory(provider)))

	_, err := registry.Configure(t.Context(), core.KindGoogleTTS, tts.Credentials{})
	require.NoError(t, err)

	voices := registry.ListVoices(t.Context())
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Failed)
}

func TestRegistry_HungCatalogTimesOut(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	provider := &fakeProvider{kind: core.KindAzureTTS, block: block}
	registry := tts.NewRegistry(
		newTestLogger(t),
		tts.WithFactory(core.KindAzureTTS, staticFactory(provider)),
		tts.WithCatalogTimeout(50*time.Millisecond),
	)

	_, err := registry.Configure(t.Context(), core.KindAzureTTS, tts.Credentials{})
	require.NoError(t, err)

	done := make(chan []core.VoiceDescriptor, 1)

	go func() {
		done <- registry.ListVoices(context.Background())
	}()

	select {
	case voices := <-done:
		require.Len(t, voices, 1)
		assert.True(t, voices[0].Failed)
		assert.Equal(t, tts.SentinelVoiceID, voices[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("ListVoices hung on a catalog fetch that never resolves")
	}

	catalog, ok := registry.Catalog(core.KindAzureTTS)
	require.True(t, ok)
	require.ErrorIs(t, catalog.Err(), tts.ErrCatalogTimeout)
}

func TestRegistry_ConfigureFailureIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	failing := func(context.Context, tts.Credentials) (core.Provider, error) {
		calls.Add(1)

		return nil, tts.ErrMissingCredentials
	}

	registry := tts.NewRegistry(newTestLogger(t), tts.WithFactory(core.KindPolly, failing))

	_, err := registry.Configure(t.Context(), core.KindPolly, tts.Credentials{})
	require.ErrorIs(t, err, tts.ErrConfiguration)

	_, err = registry.Configure(t.Context(), core.KindPolly, tts.Credentials{})
	require.ErrorIs(t, err, tts.ErrConfiguration)
	assert.Equal(t, int32(1), calls.Load())

	_, err = registry.Synthesize(t.Context(), "hello", "Joanna", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrProviderDisabled)
	require.ErrorIs(t, err, tts.ErrConfiguration)

	voices := registry.ListVoices(t.Context())
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Failed)
}

func TestRegistry_UnconfiguredKindListsSentinel(t *testing.T) {
	t.Parallel()

	registry := tts.NewRegistry(newTestLogger(t))

	voices := registry.ListVoicesFor(t.Context(), core.KindAzureTTS)
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Failed)

	_, err := registry.Synthesize(t.Context(), "hello", "x", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrNoActiveProvider)
}

func TestRegistry_FirstConfiguredKindIsActive(t *testing.T) {
	t.Parallel()

	first := &fakeProvider{kind: core.KindGoogleTranslateFree, audio: []byte("first"), voices: []core.VoiceDescriptor{{ID: "en"}}}
	second := &fakeProvider{kind: core.KindAzureTTS, audio: []byte("second"), voices: []core.VoiceDescriptor{{ID: "en-US-JennyNeural"}}}

	registry := tts.NewRegistry(
		newTestLogger(t),
		tts.WithFactory(core.KindGoogleTranslateFree, staticFactory(first)),
		tts.WithFactory(core.KindAzureTTS, staticFactory(second)),
	)

	_, err := registry.Configure(t.Context(), core.KindGoogleTranslateFree, tts.Credentials{})
	require.NoError(t, err)
	_, err = registry.Configure(t.Context(), core.KindAzureTTS, tts.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, core.KindGoogleTranslateFree, registry.Active())

	audio, err := registry.Synthesize(t.Context(), "hello", "en", core.FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), audio)

	waitReady(t, registry, core.KindAzureTTS)

	azureVoices := registry.ListVoicesFor(t.Context(), core.KindAzureTTS)
	require.Len(t, azureVoices, 1)
	assert.Equal(t, "en-US-JennyNeural", azureVoices[0].ID)
}

func TestRegistry_SynthesizeErrors(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		kind:      core.KindGoogleTranslateFree,
		maxLength: 5,
		synthErr:  errProviderDown,
		voices:    []core.VoiceDescriptor{{ID: "en"}},
	}

	registry := tts.NewRegistry(newTestLogger(t), tts.WithFactory(core.KindGoogleTranslateFree, staticFactory(provider)))

	_, err := registry.Configure(t.Context(), core.KindGoogleTranslateFree, tts.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, 5, registry.MaxTextLength())

	_, err = registry.Synthesize(t.Context(), "   ", "en", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrTextEmpty)

	_, err = registry.Synthesize(t.Context(), "too long", "en", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrTextTooLong)
	require.ErrorIs(t, err, tts.ErrSynthesis)

	_, err = registry.Synthesize(t.Context(), "hi", "en", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrSynthesis)
	require.ErrorIs(t, err, errProviderDown)

	provider.mu.Lock()
	defer provider.mu.Unlock()

	assert.Equal(t, []string{"hi"}, provider.texts)
}

func TestRegistry_EmptyAudioIsAnError(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{kind: core.KindAzureTTS, voices: []core.VoiceDescriptor{{ID: "v"}}}
	registry := tts.NewRegistry(newTestLogger(t), tts.WithFactory(core.KindAzureTTS, staticFactory(provider)))

	_, err := registry.Configure(t.Context(), core.KindAzureTTS, tts.Credentials{})
	require.NoError(t, err)

	_, err = registry.Synthesize(t.Context(), "hello", "v", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrSynthesis)
	require.ErrorIs(t, err, tts.ErrEmptyResponse)
}

func TestRegistry_UnknownKindHasNoFactory(t *testing.T) {
	t.Parallel()

	registry := tts.NewRegistry(newTestLogger(t))

	_, err := registry.Configure(t.Context(), core.ServiceKind("espeak"), tts.Credentials{})
	require.ErrorIs(t, err, tts.ErrNoFactory)
	require.ErrorIs(t, err, tts.ErrConfiguration)
}

func TestCatalog_CallerDeadlineReturnsSentinel(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	provider := &fakeProvider{kind: core.KindPolly, block: block}
	catalog := tts.NewCatalog(t.Context(), provider, time.Minute, newTestLogger(t))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	voices := catalog.Voices(ctx)
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Failed)
	assert.NoError(t, catalog.Err())
}
