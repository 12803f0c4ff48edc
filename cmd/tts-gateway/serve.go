package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/speech"
	"github.com/book-expert/tts-gateway/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	natsClientName  = "tts-gateway"
)

// Log formats.
const (
	logFmtRestartPurge    = "Restart policy %q removed %d cached file(s)"
	logFmtPlaybackOff     = "Playback URLs will not be reachable: %v"
	logFmtWorkerDisabled  = "No [nats] url configured, speak worker disabled"
	logFmtWorkerListening = "Speak worker listening on %s"
	logFmtStarted         = "TTS gateway started with %s, playback base %s"
	logFmtStopped         = "TTS gateway stopped"
	logFmtDrainFailed     = "Failed to drain NATS connection: %v"
	logMsgLeaseWarning    = "Synthesis leases have no expiry: a caller that never releases blocks every other caller until restart"
)

// runServe runs the asset server and, when NATS is configured, the speak
// worker until the process is interrupted. A listener that fails to bind is
// logged and the rest of the gateway keeps running.
func runServe(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := openGateway(ctx, configPath)
	if err != nil {
		return err
	}
	defer gw.close()

	policy := gw.cfg.PurgePolicy()
	removed := gw.store.ApplyRestartPolicy(policy)
	gw.log.Info(logFmtRestartPurge, policy, removed)

	server, err := newAssetServer(gw)
	if err != nil {
		return err
	}

	speaker := speech.New(gw.registry, gw.lease, gw.store, server, gw.log)

	gw.log.Warn(logMsgLeaseWarning)

	group, groupCtx := errgroup.WithContext(ctx)

	startErr := server.Start(groupCtx)
	if startErr != nil {
		gw.log.Warn(logFmtPlaybackOff, startErr)
	} else {
		group.Go(func() error {
			<-groupCtx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		})
	}

	if gw.cfg.NATS.URL == "" {
		gw.log.Info(logFmtWorkerDisabled)
	} else {
		natsConnection, workerErr := startWorker(groupCtx, group, gw, speaker)
		if workerErr != nil {
			stop()

			return errors.Join(workerErr, group.Wait())
		}

		defer func() {
			drainErr := natsConnection.Drain()
			if drainErr != nil {
				gw.log.Error(logFmtDrainFailed, drainErr)
			}
		}()
	}

	group.Go(func() error {
		<-groupCtx.Done()

		return nil
	})

	gw.log.System(logFmtStarted, gw.registry.Active(), server.PlaybackURL("/"))

	err = group.Wait()

	gw.log.System(logFmtStopped)

	return err
}

func startWorker(
	ctx context.Context,
	group *errgroup.Group,
	gw *gateway,
	speaker *speech.Speaker,
) (*nats.Conn, error) {
	natsConnection, err := nats.Connect(gw.cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", gw.cfg.NATS.URL, err)
	}

	var store *objectstore.NatsObjectStore

	if gw.cfg.NATS.TextObjectStoreBucket != "" {
		js, jsErr := jetstream.New(natsConnection)
		if jsErr != nil {
			natsConnection.Close()

			return nil, fmt.Errorf("failed to create JetStream context: %w", jsErr)
		}

		store, err = objectstore.New(ctx, js, gw.cfg.NATS.TextObjectStoreBucket)
		if err != nil {
			natsConnection.Close()

			return nil, fmt.Errorf("failed to open text object store: %w", err)
		}
	}

	cfg := worker.Config{
		Subject:        gw.cfg.NATS.SpeakSubject,
		PublishSubject: gw.cfg.NATS.AudioCreatedSubject,
	}

	var speakWorker *worker.NatsWorker
	if store != nil {
		speakWorker = worker.NewNatsWorker(natsConnection, cfg, speaker, store, gw.log)
	} else {
		speakWorker = worker.NewNatsWorker(natsConnection, cfg, speaker, nil, gw.log)
	}

	group.Go(func() error {
		return speakWorker.Run(ctx)
	})

	gw.log.Info(logFmtWorkerListening, cfg.Subject)

	return natsConnection, nil
}
