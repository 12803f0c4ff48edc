// Package config_test tests the configuration loading for the tts-gateway.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/assets"
	"github.com/book-expert/tts-gateway/internal/assetserver"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "config-test.log")
	require.NoError(t, err)

	return log
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[service]
kind = "microsoftazuretts"
purge_on_restart = "purge"
catalog_timeout_seconds = 5
synthesis_timeout_seconds = 12

[storage]
root_dir = "/srv/tts"

[server]
host_address = "192.0.2.10"
port = 2000

[nats]
speak_subject = "home.tts.speak"
audio_created_subject = "home.tts.created"
text_object_store_bucket = "TTS_TEXTS"

[paths]
base_logs_dir = "/var/log/tts-gateway"

[translate]
endpoint = "http://translate.local"
requests_per_second = 4.5
`

	cfg, err := config.Parse([]byte(tomlData), newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, core.KindAzureTTS, cfg.Kind())
	assert.Equal(t, assets.PurgeAtRestart, cfg.PurgePolicy())
	assert.Equal(t, 5*time.Second, cfg.CatalogTimeout())
	assert.Equal(t, 12*time.Second, cfg.SynthesisTimeout())
	assert.Equal(t, "/srv/tts", cfg.Storage.RootDir)
	assert.Equal(t, "192.0.2.10", cfg.Server.HostAddress)
	assert.Equal(t, 2000, cfg.Server.Port)
	assert.Equal(t, "home.tts.speak", cfg.NATS.SpeakSubject)
	assert.Equal(t, "home.tts.created", cfg.NATS.AudioCreatedSubject)
	assert.Equal(t, "TTS_TEXTS", cfg.NATS.TextObjectStoreBucket)
	assert.Equal(t, "/var/log/tts-gateway", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "http://translate.local", cfg.Translate.Endpoint)
	assert.InEpsilon(t, 4.5, cfg.Translate.RequestsPerSecond, 0.001)
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(""), newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultKind, cfg.Kind())
	assert.Equal(t, assets.LeaveAtRestart, cfg.PurgePolicy())
	assert.Equal(t, 20*time.Second, cfg.CatalogTimeout())
	assert.Equal(t, 30*time.Second, cfg.SynthesisTimeout())
	assert.Equal(t, assetserver.AutoDiscover, cfg.Server.HostAddress)
	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultSpeakSubject, cfg.NATS.SpeakSubject)
	assert.NotEmpty(t, cfg.Storage.RootDir)
}

func TestParseConfig_ReservedPortIsRemapped(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte("[server]\nport = 1880\n"), newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1980, cfg.Server.Port)
}

func TestParseConfig_Rejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		tomlData string
	}{
		{name: "unknown kind", tomlData: "[service]\nkind = \"espeak\"\n"},
		{name: "unknown purge policy", tomlData: "[service]\npurge_on_restart = \"sometimes\"\n"},
		{name: "negative timeout", tomlData: "[service]\ncatalog_timeout_seconds = -1\n"},
		{name: "port out of range", tomlData: "[server]\nport = 70000\n"},
		{name: "malformed toml", tomlData: "[service\nkind = "},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(testCase.tomlData), newTestLogger(t))
			require.Error(t, err)
		})
	}
}

func TestParseConfig_UnknownKindWrapsSentinel(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("[service]\nkind = \"espeak\"\n"), newTestLogger(t))
	require.ErrorIs(t, err, core.ErrUnknownServiceKind)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte("[service]\nkind = \"polly\"\n"), 0o600))

	cfg, err := config.LoadFile(path, newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, core.KindPolly, cfg.Kind())

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"), newTestLogger(t))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TTS_GATEWAY_KIND", "googletts")
	t.Setenv("TTS_GATEWAY_PORT", "1999")
	t.Setenv("AZURE_SPEECH_KEY", "secret-key")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/gcp.json")

	cfg, err := config.Parse([]byte("[service]\nkind = \"polly\"\n[server]\nport = 2000\n"), newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, core.KindGoogleTTS, cfg.Kind())
	assert.Equal(t, 1999, cfg.Server.Port)
	assert.Equal(t, "secret-key", cfg.Azure.SubscriptionKey)

	creds := cfg.Credentials("/srv/tts/ttsultimategooglecredentials/googlecredentials.json")
	assert.Equal(t, "/etc/gcp.json", creds.Google.CredentialsFile)
	assert.Equal(t, "secret-key", creds.Azure.SubscriptionKey)
}

func TestCredentials_GoogleFileFallback(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Polly.Region = "eu-west-1"
	cfg.Service.SynthesisTimeoutSeconds = 7

	creds := cfg.Credentials("/srv/tts/ttsultimategooglecredentials/googlecredentials.json")
	assert.Equal(t, "/srv/tts/ttsultimategooglecredentials/googlecredentials.json", creds.Google.CredentialsFile)
	assert.Equal(t, "eu-west-1", creds.Polly.Region)
	assert.Equal(t, 7*time.Second, creds.Timeout)

	cfg.Google.CredentialsFile = "/etc/other.json"
	assert.Equal(t, "/etc/other.json", cfg.Credentials("/unused").Google.CredentialsFile)
}
