package tts

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultRequestTimeout bounds a single provider HTTP round trip when none is configured.
const DefaultRequestTimeout = 30 * time.Second

// Credentials carries the opaque, per-backend settings handed to Configure.
// Only the block matching the configured kind is read.
type Credentials struct {
	Polly     PollyCredentials
	Google    GoogleCredentials
	Translate TranslateCredentials
	Azure     AzureCredentials

	// Timeout bounds each provider round trip.
	Timeout time.Duration
}

// PollyCredentials are the region-scoped AWS keys used to sign Polly calls.
type PollyCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	// Endpoint overrides the regional endpoint (e.g. a local emulator).
	Endpoint string
}

// GoogleCredentials point at a service-account JSON file.
type GoogleCredentials struct {
	CredentialsFile string
	Endpoint        string
	// TokenSource, when set, replaces the credentials file.
	TokenSource oauth2.TokenSource
}

// TranslateCredentials configure the unauthenticated translate endpoint.
type TranslateCredentials struct {
	Endpoint          string
	RequestsPerSecond float64
}

// AzureCredentials carry the subscription key and the region used for both
// synthesis and catalog listing.
type AzureCredentials struct {
	SubscriptionKey string
	Region          string
	Endpoint        string
}

func (c Credentials) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultRequestTimeout
	}

	return c.Timeout
}
