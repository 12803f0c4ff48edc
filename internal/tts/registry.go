package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
)

// Log formats.
const (
	logFmtProviderEnabled  = "%s service enabled"
	logFmtProviderDisabled = "%s service disabled for the lifetime of the process: %v"
	logFmtAlreadyFailed    = "%s was already configured and failed; not retrying"
)

// Factory builds a provider handle from credentials. It must fail fast when
// the credentials are absent or malformed.
type Factory func(ctx context.Context, creds Credentials) (core.Provider, error)

// DefaultFactories returns the constructors of the four built-in adapters.
func DefaultFactories() map[core.ServiceKind]Factory {
	return map[core.ServiceKind]Factory{
		core.KindPolly: func(_ context.Context, creds Credentials) (core.Provider, error) {
			return NewPolly(creds.Polly, creds.timeout())
		},
		core.KindGoogleTTS: func(ctx context.Context, creds Credentials) (core.Provider, error) {
			return NewGoogleTTS(ctx, creds.Google, creds.timeout())
		},
		core.KindGoogleTranslateFree: func(_ context.Context, creds Credentials) (core.Provider, error) {
			return NewGoogleTranslate(creds.Translate, creds.timeout())
		},
		core.KindAzureTTS: func(_ context.Context, creds Credentials) (core.Provider, error) {
			return NewAzure(creds.Azure, creds.timeout())
		},
	}
}

type registration struct {
	provider core.Provider
	catalog  *Catalog
	err      error
}

// Registry owns one provider handle per configured service kind. The first
// kind passed to Configure becomes the active one.
type Registry struct {
	log            *logger.Logger
	factories      map[core.ServiceKind]Factory
	catalogTimeout time.Duration

	mu            sync.RWMutex
	registrations map[core.ServiceKind]*registration
	active        core.ServiceKind
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithFactory replaces the constructor used for kind.
func WithFactory(kind core.ServiceKind, factory Factory) RegistryOption {
	return func(r *Registry) {
		r.factories[kind] = factory
	}
}

// WithCatalogTimeout bounds every catalog fetch started by Configure.
func WithCatalogTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		r.catalogTimeout = timeout
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger, opts ...RegistryOption) *Registry {
	registry := &Registry{
		log:            log,
		factories:      DefaultFactories(),
		catalogTimeout: DefaultCatalogTimeout,
		registrations:  make(map[core.ServiceKind]*registration),
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// Configure builds the provider for kind and starts its catalog fetch in the
// background. A failure is recorded and disables kind for the lifetime of the
// registry; later calls return the same error without retrying. ctx scopes the
// background catalog fetch.
func (r *Registry) Configure(ctx context.Context, kind core.ServiceKind, creds Credentials) (core.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		r.active = kind
	}

	if existing, ok := r.registrations[kind]; ok {
		if existing.err != nil {
			r.log.Warn(logFmtAlreadyFailed, Title(kind))
		}

		return existing.provider, existing.err
	}

	provider, err := r.build(ctx, kind, creds)
	if err != nil {
		r.registrations[kind] = &registration{err: err}
		r.log.Error(logFmtProviderDisabled, Title(kind), err)

		return nil, err
	}

	r.registrations[kind] = &registration{
		provider: provider,
		catalog:  NewCatalog(ctx, provider, r.catalogTimeout, r.log),
	}
	r.log.Info(logFmtProviderEnabled, Title(kind))

	return provider, nil
}

func (r *Registry) build(ctx context.Context, kind core.ServiceKind, creds Credentials) (core.Provider, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoFactory, kind)
	}

	provider, err := factory(ctx, creds)
	if err != nil {
		return nil, configurationError(kind, err)
	}

	return provider, nil
}

// Active reports the kind that Synthesize and ListVoices use.
func (r *Registry) Active() core.ServiceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.active
}

// MaxTextLength is the per-call character limit of the active provider, or 0
// when it is unbounded or unavailable.
func (r *Registry) MaxTextLength() int {
	provider, err := r.activeProvider()
	if err != nil {
		return 0
	}

	return provider.MaxTextLength()
}

// Synthesize turns text into audio with the active provider. Every error
// matches ErrSynthesis or, for a disabled provider, ErrConfiguration.
func (r *Registry) Synthesize(ctx context.Context, text, voiceID string, format core.AudioFormat) ([]byte, error) {
	provider, err := r.activeProvider()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	limit := provider.MaxTextLength()
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, utf8.RuneCountInString(text), limit)
	}

	audio, err := provider.Synthesize(ctx, text, voiceID, format)
	if err != nil {
		return nil, synthesisError(err)
	}

	if len(audio) == 0 {
		return nil, synthesisError(ErrEmptyResponse)
	}

	return audio, nil
}

// ListVoices returns the active provider's catalog. It is never empty.
func (r *Registry) ListVoices(ctx context.Context) []core.VoiceDescriptor {
	return r.ListVoicesFor(ctx, r.Active())
}

// ListVoicesFor returns the catalog of kind, or the sentinel entry when kind is
// unconfigured or disabled.
func (r *Registry) ListVoicesFor(ctx context.Context, kind core.ServiceKind) []core.VoiceDescriptor {
	r.mu.RLock()
	entry, ok := r.registrations[kind]
	r.mu.RUnlock()

	switch {
	case !ok:
		return []core.VoiceDescriptor{SentinelVoice(kind, ErrNoActiveProvider)}
	case entry.err != nil:
		return []core.VoiceDescriptor{SentinelVoice(kind, entry.err)}
	default:
		return entry.catalog.Voices(ctx)
	}
}

// Catalog exposes the resolver of a configured kind, for readiness checks.
func (r *Registry) Catalog(kind core.ServiceKind) (*Catalog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.registrations[kind]
	if !ok || entry.catalog == nil {
		return nil, false
	}

	return entry.catalog, true
}

func (r *Registry) activeProvider() (core.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.registrations[r.active]
	if !ok {
		return nil, ErrNoActiveProvider
	}

	if entry.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderDisabled, Title(r.active), entry.err)
	}

	return entry.provider, nil
}

func configurationError(kind core.ServiceKind, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConfiguration, Title(kind), err)
}
