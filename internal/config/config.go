// Package config provides the configuration structure for the tts-gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/assets"
	"github.com/book-expert/tts-gateway/internal/assetserver"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Defaults.
const (
	DefaultKind                    = core.KindGoogleTranslateFree
	DefaultPort                    = 1980
	DefaultCatalogTimeoutSeconds   = 20
	DefaultSynthesisTimeoutSeconds = 30
	DefaultSpeakSubject            = "tts.speak"
	DefaultRootDirName             = "tts-gateway"

	// ReservedPort is the host flow engine's own port; it is moved to DefaultPort.
	ReservedPort = 1880
)

// Log formats.
const (
	logFmtPortRemapped = "Port %d is reserved for the flow engine, using %d instead"
)

var (
	// ErrInvalidPort indicates a server port outside 0..65535.
	ErrInvalidPort = errors.New("invalid server port")
	// ErrInvalidTimeout indicates a negative timeout.
	ErrInvalidTimeout = errors.New("timeout cannot be negative")
	// ErrEmptyRoot indicates a storage root that could not be determined.
	ErrEmptyRoot = errors.New("storage root cannot be empty")
)

// ServiceConfig selects the backend and the cache policy.
type ServiceConfig struct {
	Kind                    string `toml:"kind"                      env:"TTS_GATEWAY_KIND"`
	PurgeOnRestart          string `toml:"purge_on_restart"          env:"TTS_GATEWAY_PURGE_ON_RESTART"`
	CatalogTimeoutSeconds   int    `toml:"catalog_timeout_seconds"   env:"TTS_GATEWAY_CATALOG_TIMEOUT_SECONDS"`
	SynthesisTimeoutSeconds int    `toml:"synthesis_timeout_seconds" env:"TTS_GATEWAY_SYNTHESIS_TIMEOUT_SECONDS"`
}

// StorageConfig holds the location of the audio tree.
type StorageConfig struct {
	RootDir string `toml:"root_dir" env:"TTS_GATEWAY_STORAGE_ROOT"`
}

// ServerConfig holds the asset server listener settings.
type ServerConfig struct {
	HostAddress string `toml:"host_address" env:"TTS_GATEWAY_HOST_ADDRESS"`
	Port        int    `toml:"port"         env:"TTS_GATEWAY_PORT"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the worker.
type NATSConfig struct {
	URL                   string `toml:"url"                      env:"NATS_URL"`
	SpeakSubject          string `toml:"speak_subject"            env:"TTS_GATEWAY_SPEAK_SUBJECT"`
	AudioCreatedSubject   string `toml:"audio_created_subject"    env:"TTS_GATEWAY_AUDIO_CREATED_SUBJECT"`
	TextObjectStoreBucket string `toml:"text_object_store_bucket" env:"TTS_GATEWAY_TEXT_BUCKET"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"TTS_GATEWAY_LOGS_DIR"`
}

// PollyConfig holds the AWS settings.
type PollyConfig struct {
	AccessKeyID     string `toml:"access_key_id"     env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `toml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `toml:"region"            env:"AWS_REGION"`
	Endpoint        string `toml:"endpoint"          env:"TTS_GATEWAY_POLLY_ENDPOINT"`
}

// GoogleConfig holds the Google Cloud TTS settings.
type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Endpoint        string `toml:"endpoint"         env:"TTS_GATEWAY_GOOGLE_ENDPOINT"`
}

// TranslateConfig holds the settings of the free translate endpoint.
type TranslateConfig struct {
	Endpoint          string  `toml:"endpoint"            env:"TTS_GATEWAY_TRANSLATE_ENDPOINT"`
	RequestsPerSecond float64 `toml:"requests_per_second" env:"TTS_GATEWAY_TRANSLATE_RPS"`
}

// AzureConfig holds the Azure Speech settings.
type AzureConfig struct {
	SubscriptionKey string `toml:"subscription_key" env:"AZURE_SPEECH_KEY"`
	Region          string `toml:"region"           env:"AZURE_SPEECH_REGION"`
	Endpoint        string `toml:"endpoint"         env:"TTS_GATEWAY_AZURE_ENDPOINT"`
}

// Config is the root configuration structure.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Storage   StorageConfig   `toml:"storage"`
	Server    ServerConfig    `toml:"server"`
	NATS      NATSConfig      `toml:"nats"`
	Paths     PathsConfig     `toml:"paths"`
	Polly     PollyConfig     `toml:"polly"`
	Google    GoogleConfig    `toml:"google"`
	Translate TranslateConfig `toml:"translate"`
	Azure     AzureConfig     `toml:"azure"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Kind:                    string(DefaultKind),
			PurgeOnRestart:          string(assets.LeaveAtRestart),
			CatalogTimeoutSeconds:   DefaultCatalogTimeoutSeconds,
			SynthesisTimeoutSeconds: DefaultSynthesisTimeoutSeconds,
		},
		Storage: StorageConfig{
			RootDir: filepath.Join(os.TempDir(), DefaultRootDirName),
		},
		Server: ServerConfig{
			HostAddress: assetserver.AutoDiscover,
			Port:        DefaultPort,
		},
		NATS: NATSConfig{
			SpeakSubject: DefaultSpeakSubject,
		},
		Paths: PathsConfig{
			BaseLogsDir: os.TempDir(),
		},
	}
}

// Load discovers the project configuration file with the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(cfg, log)
}

// LoadFile reads the configuration from an explicit TOML file.
func LoadFile(path string, log *logger.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	return Parse(data, log)
}

// Parse decodes TOML data on top of the defaults and applies environment overrides.
func Parse(data []byte, log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return finish(cfg, log)
}

func finish(cfg *Config, log *logger.Logger) (*Config, error) {
	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults(log)

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults(log *logger.Logger) {
	if strings.TrimSpace(c.Service.Kind) == "" {
		c.Service.Kind = string(DefaultKind)
	}

	if c.Service.CatalogTimeoutSeconds == 0 {
		c.Service.CatalogTimeoutSeconds = DefaultCatalogTimeoutSeconds
	}

	if c.Service.SynthesisTimeoutSeconds == 0 {
		c.Service.SynthesisTimeoutSeconds = DefaultSynthesisTimeoutSeconds
	}

	if strings.TrimSpace(c.Server.HostAddress) == "" {
		c.Server.HostAddress = assetserver.AutoDiscover
	}

	if c.Server.Port == ReservedPort {
		log.Warn(logFmtPortRemapped, ReservedPort, DefaultPort)

		c.Server.Port = DefaultPort
	}

	if c.NATS.SpeakSubject == "" {
		c.NATS.SpeakSubject = DefaultSpeakSubject
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}
}

// Validate rejects unknown service kinds and purge policies and out-of-range numbers.
func (c *Config) Validate() error {
	_, err := core.ParseServiceKind(c.Service.Kind)
	if err != nil {
		return fmt.Errorf("invalid [service] kind: %w", err)
	}

	_, err = assets.ParsePurgePolicy(c.Service.PurgeOnRestart)
	if err != nil {
		return fmt.Errorf("invalid [service] purge_on_restart: %w", err)
	}

	if c.Service.CatalogTimeoutSeconds < 0 || c.Service.SynthesisTimeoutSeconds < 0 {
		return ErrInvalidTimeout
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	if strings.TrimSpace(c.Storage.RootDir) == "" {
		return ErrEmptyRoot
	}

	return nil
}

// Kind returns the configured backend. Validate has already accepted it.
func (c *Config) Kind() core.ServiceKind {
	kind, err := core.ParseServiceKind(c.Service.Kind)
	if err != nil {
		return DefaultKind
	}

	return kind
}

// PurgePolicy returns the configured restart policy.
func (c *Config) PurgePolicy() assets.PurgePolicy {
	policy, err := assets.ParsePurgePolicy(c.Service.PurgeOnRestart)
	if err != nil {
		return assets.LeaveAtRestart
	}

	return policy
}

// CatalogTimeout bounds the asynchronous voice catalog fetch.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Service.CatalogTimeoutSeconds) * time.Second
}

// SynthesisTimeout bounds a single provider round trip.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.Service.SynthesisTimeoutSeconds) * time.Second
}

// Credentials builds the provider settings. defaultGoogleFile is used when no
// credentials file is configured.
func (c *Config) Credentials(defaultGoogleFile string) tts.Credentials {
	googleFile := c.Google.CredentialsFile
	if googleFile == "" {
		googleFile = defaultGoogleFile
	}

	return tts.Credentials{
		Polly: tts.PollyCredentials{
			AccessKeyID:     c.Polly.AccessKeyID,
			SecretAccessKey: c.Polly.SecretAccessKey,
			Region:          c.Polly.Region,
			Endpoint:        c.Polly.Endpoint,
		},
		Google: tts.GoogleCredentials{
			CredentialsFile: googleFile,
			Endpoint:        c.Google.Endpoint,
		},
		Translate: tts.TranslateCredentials{
			Endpoint:          c.Translate.Endpoint,
			RequestsPerSecond: c.Translate.RequestsPerSecond,
		},
		Azure: tts.AzureCredentials{
			SubscriptionKey: c.Azure.SubscriptionKey,
			Region:          c.Azure.Region,
			Endpoint:        c.Azure.Endpoint,
		},
		Timeout: c.SynthesisTimeout(),
	}
}
