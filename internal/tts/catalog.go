package tts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
)

// SentinelVoiceID is the placeholder id of the entry that replaces a failed catalog.
const SentinelVoiceID = "Ivy"

// DefaultCatalogTimeout bounds a catalog fetch when none is configured.
const DefaultCatalogTimeout = 20 * time.Second

// Log formats.
const (
	logFmtCatalogFetchFailed = "Error getting %s voices: %v"
	logFmtCatalogLoaded      = "%s voices count: %d"
	logFmtCatalogDuplicates  = "%s catalog contained %d duplicate voice id(s); kept the first of each"
)

// Sentinel display format.
const sentinelFmt = "Error getting %s voices: %v"

var (
	// ErrCatalogTimeout indicates a fetch that did not finish within the timeout.
	ErrCatalogTimeout = fmt.Errorf("%w: timed out", ErrCatalogFetch)
	// ErrEmptyCatalog indicates a provider that answered with no voices.
	ErrEmptyCatalog = fmt.Errorf("%w: provider returned no voices", ErrCatalogFetch)
	// ErrCatalogPending indicates a caller that gave up before the fetch resolved.
	ErrCatalogPending = fmt.Errorf("%w: catalog still loading", ErrCatalogFetch)
)

var providerTitles = map[core.ServiceKind]string{
	core.KindPolly:               "Amazon Polly",
	core.KindGoogleTTS:           "Google TTS",
	core.KindGoogleTranslateFree: "Google Translate",
	core.KindAzureTTS:            "Microsoft Azure",
}

// Title is the human-readable name of a service kind.
func Title(kind core.ServiceKind) string {
	title, ok := providerTitles[kind]
	if !ok {
		return string(kind)
	}

	return title
}

// SentinelVoice builds the single entry shown instead of a catalog that could not be fetched.
func SentinelVoice(kind core.ServiceKind, cause error) core.VoiceDescriptor {
	return core.VoiceDescriptor{
		ID:          SentinelVoiceID,
		DisplayName: fmt.Sprintf(sentinelFmt, Title(kind), cause),
		Gender:      core.GenderUnspecified,
		Failed:      true,
	}
}

// Catalog resolves a provider's voices once, in the background, and caches the
// result for its lifetime. A failed or timed-out fetch resolves to a one-entry
// sentinel list, so Voices never returns an empty slice.
type Catalog struct {
	kind   core.ServiceKind
	log    *logger.Logger
	done   chan struct{}
	voices []core.VoiceDescriptor
	err    error
}

type fetchResult struct {
	voices []core.VoiceDescriptor
	err    error
}

// NewCatalog starts fetching the provider's catalog and returns immediately.
// Cancelling ctx or reaching timeout resolves the catalog to the sentinel.
func NewCatalog(
	ctx context.Context,
	provider core.Provider,
	timeout time.Duration,
	log *logger.Logger,
) *Catalog {
	if timeout <= 0 {
		timeout = DefaultCatalogTimeout
	}

	catalog := &Catalog{
		kind: provider.Kind(),
		log:  log,
		done: make(chan struct{}),
	}

	go catalog.resolve(ctx, provider, timeout)

	return catalog
}

// Ready is closed once the catalog has resolved, successfully or not.
func (c *Catalog) Ready() <-chan struct{} {
	return c.done
}

// Err returns the fetch failure once resolved, or nil.
func (c *Catalog) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Voices waits for the catalog to resolve and returns a copy of it. If ctx ends
// first, the sentinel is returned and the cached result is left untouched.
func (c *Catalog) Voices(ctx context.Context) []core.VoiceDescriptor {
	select {
	case <-c.done:
		return slices.Clone(c.voices)
	case <-ctx.Done():
		return []core.VoiceDescriptor{SentinelVoice(c.kind, fmt.Errorf("%w: %w", ErrCatalogPending, ctx.Err()))}
	}
}

func (c *Catalog) resolve(ctx context.Context, provider core.Provider, timeout time.Duration) {
	defer close(c.done)

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan fetchResult, 1)

	go func() {
		voices, err := provider.Voices(fetchCtx)
		results <- fetchResult{voices: voices, err: err}
	}()

	var result fetchResult

	select {
	case result = <-results:
	case <-fetchCtx.Done():
		// The provider may ignore its context; the buffered channel lets it finish on its own.
		result.err = ErrCatalogTimeout
		if errors.Is(fetchCtx.Err(), context.Canceled) {
			result.err = fmt.Errorf("%w: %w", ErrCatalogFetch, fetchCtx.Err())
		}
	}

	if result.err == nil {
		voices, duplicates := normalizeCatalog(result.voices)
		if duplicates > 0 {
			c.log.Warn(logFmtCatalogDuplicates, Title(c.kind), duplicates)
		}

		if len(voices) > 0 {
			c.voices = voices
			c.log.Info(logFmtCatalogLoaded, Title(c.kind), len(voices))

			return
		}

		result.err = ErrEmptyCatalog
	}

	c.err = catalogError(result.err)
	c.voices = []core.VoiceDescriptor{SentinelVoice(c.kind, result.err)}
	c.log.Error(logFmtCatalogFetchFailed, Title(c.kind), c.err)
}

// normalizeCatalog drops entries without an id, keeps the first of each
// duplicate id and orders the result by display name.
func normalizeCatalog(voices []core.VoiceDescriptor) ([]core.VoiceDescriptor, int) {
	seen := make(map[string]struct{}, len(voices))
	normalized := make([]core.VoiceDescriptor, 0, len(voices))
	duplicates := 0

	for _, voice := range voices {
		if strings.TrimSpace(voice.ID) == "" {
			continue
		}

		if _, exists := seen[voice.ID]; exists {
			duplicates++

			continue
		}

		seen[voice.ID] = struct{}{}

		if voice.DisplayName == "" {
			voice.DisplayName = voice.ID
		}

		if voice.Gender == "" {
			voice.Gender = core.GenderUnspecified
		}

		normalized = append(normalized, voice)
	}

	slices.SortStableFunc(normalized, func(a, b core.VoiceDescriptor) int {
		return strings.Compare(a.DisplayName, b.DisplayName)
	})

	return normalized, duplicates
}
