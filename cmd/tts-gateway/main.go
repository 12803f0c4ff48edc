// main package for the tts-gateway
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/arbiter"
	"github.com/book-expert/tts-gateway/internal/assets"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
)

// Log file names.
const (
	bootstrapLogFile = "tts-gateway-bootstrap.log"
	finalLogFile     = "tts-gateway.log"
)

// Log formats.
const (
	logFmtConfigLoaded     = "Configuration loaded: kind %s, storage %s"
	logFmtProviderDisabled = "%s is unavailable, synthesis will fail until it is configured: %v"
)

// gateway bundles the components every subcommand works with.
type gateway struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *assets.Store
	registry *tts.Registry
	lease    *arbiter.Arbiter
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func loadConfig(configPath string, log *logger.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFile(configPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		return cfg, nil
	}

	cfg, err := config.Load(log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// openGateway runs the two-phase logger bootstrap, loads the configuration and
// configures the provider registry. A provider that fails to configure is
// logged and left disabled.
func openGateway(ctx context.Context, configPath string) (*gateway, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, err
	}

	defer func() {
		closeErr := bootstrapLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing bootstrap logger: %v\n", closeErr)
		}
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := loadConfig(configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, err
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, finalLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, err
	}

	store, err := assets.New(cfg.Storage.RootDir, finalLog)
	if err != nil {
		closeLogger(finalLog)

		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	finalLog.Info(logFmtConfigLoaded, cfg.Kind(), store.Root())

	gw := &gateway{
		cfg:      cfg,
		log:      finalLog,
		store:    store,
		registry: tts.NewRegistry(finalLog, tts.WithCatalogTimeout(cfg.CatalogTimeout())),
		lease:    arbiter.New(),
	}

	gw.configure(ctx, cfg.Kind())

	return gw, nil
}

// configure registers kind with the configured credentials.
func (g *gateway) configure(ctx context.Context, kind core.ServiceKind) {
	_, err := g.registry.Configure(ctx, kind, g.cfg.Credentials(g.store.GoogleCredentialsPath()))
	if err != nil {
		g.log.Warn(logFmtProviderDisabled, tts.Title(kind), err)
	}
}

func (g *gateway) close() {
	closeLogger(g.log)
}

func closeLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
	}
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
