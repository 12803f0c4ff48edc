package tts

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every synthesis failure matches ErrSynthesis; every
// configuration failure matches ErrConfiguration.
var (
	ErrConfiguration = errors.New("provider configuration error")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrCatalogFetch  = errors.New("voice catalog fetch failed")

	ErrUnsupportedVoice  = fmt.Errorf("%w: unsupported voice id", ErrSynthesis)
	ErrTextTooLong       = fmt.Errorf("%w: text exceeds provider limit", ErrSynthesis)
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported output format", ErrSynthesis)
	ErrTextEmpty         = fmt.Errorf("%w: text cannot be empty", ErrSynthesis)
	ErrQuotaExceeded     = fmt.Errorf("%w: provider quota exceeded", ErrSynthesis)

	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", ErrConfiguration)
	ErrNoActiveProvider   = fmt.Errorf("%w: no provider configured", ErrConfiguration)
	ErrProviderDisabled   = fmt.Errorf("%w: provider disabled", ErrConfiguration)
	ErrNoFactory          = fmt.Errorf("%w: no factory for service kind", ErrConfiguration)
)

// synthesisError makes sure err matches ErrSynthesis without double wrapping.
func synthesisError(err error) error {
	if errors.Is(err, ErrSynthesis) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrSynthesis, err)
}

// catalogError makes sure err matches ErrCatalogFetch without double wrapping.
func catalogError(err error) error {
	if errors.Is(err, ErrCatalogFetch) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrCatalogFetch, err)
}
