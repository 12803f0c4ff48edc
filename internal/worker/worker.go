// Package worker provides a NATS worker that turns speak requests into stored audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/speech"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 30 * time.Second

// Log formats.
const (
	logFmtParseFailed   = "Failed to parse speak request: %v"
	logFmtSpeakFailed   = "Failed to speak for workflow %s: %v"
	logFmtSpoken        = "Workflow %s spoken into %s (cache hit: %t)"
	logFmtReplyFailed   = "Failed to reply for workflow %s: %v"
	logFmtPublishFailed = "Failed to publish audio event for workflow %s: %v"
)

var (
	// ErrNoText indicates a request carrying neither inline text nor a text key.
	ErrNoText = errors.New("request needs text or text_key")
	// ErrNoObjectStore indicates a text_key request on a worker without an object store.
	ErrNoObjectStore = errors.New("no object store configured for text_key")
)

// Speaker produces stored audio for one utterance.
type Speaker interface {
	Speak(ctx context.Context, req speech.Request) (speech.Result, error)
}

// SpeakRequest is the JSON payload received on the speak subject.
type SpeakRequest struct {
	Header  events.EventHeader `json:"header"`
	Text    string             `json:"text,omitempty"`
	TextKey string             `json:"text_key,omitempty"`
	VoiceID string             `json:"voice_id"`
}

// SpeakReply is the JSON payload sent back to the requester and, on success,
// published on the audio-created subject.
type SpeakReply struct {
	Header    events.EventHeader `json:"header"`
	AudioPath string             `json:"audio_path,omitempty"`
	AudioURL  string             `json:"audio_url,omitempty"`
	CacheHit  bool               `json:"cache_hit"`
	Error     string             `json:"error,omitempty"`
}

// Config names the subjects the worker uses. PublishSubject may be empty.
type Config struct {
	Subject        string
	PublishSubject string
}

// NatsWorker listens for speak requests on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	cfg            Config
	speaker        Speaker
	store          core.ObjectStore
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. store may be nil, in
// which case only inline text is accepted.
func NewNatsWorker(
	natsConnection *nats.Conn,
	cfg Config,
	speaker Speaker,
	store core.ObjectStore,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		cfg:            cfg,
		speaker:        speaker,
		store:          store,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.cfg.Subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.cfg.Subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var request SpeakRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		w.log.Error(logFmtParseFailed, err)
		w.reply(msg, SpeakReply{Error: fmt.Sprintf("failed to unmarshal request: %v", err)})

		return
	}

	reply := SpeakReply{Header: request.Header}

	result, err := w.process(ctx, request)
	if err != nil {
		w.log.Error(logFmtSpeakFailed, request.Header.WorkflowID, err)
		reply.Error = err.Error()
		w.reply(msg, reply)

		return
	}

	w.log.Info(logFmtSpoken, request.Header.WorkflowID, result.Asset.RelativePath, result.CacheHit)

	reply.AudioPath = result.Path
	reply.AudioURL = result.URL
	reply.CacheHit = result.CacheHit

	w.reply(msg, reply)
	w.publish(reply)
}

func (w *NatsWorker) process(ctx context.Context, request SpeakRequest) (speech.Result, error) {
	utterance, err := w.resolveText(ctx, request)
	if err != nil {
		return speech.Result{}, err
	}

	result, err := w.speaker.Speak(ctx, speech.Request{
		OwnerID: ownerID(request.Header),
		Text:    utterance,
		VoiceID: request.VoiceID,
	})
	if err != nil {
		return speech.Result{}, fmt.Errorf("failed to speak: %w", err)
	}

	return result, nil
}

func (w *NatsWorker) resolveText(ctx context.Context, request SpeakRequest) (string, error) {
	if strings.TrimSpace(request.Text) != "" {
		return request.Text, nil
	}

	if request.TextKey == "" {
		return "", ErrNoText
	}

	if w.store == nil {
		return "", ErrNoObjectStore
	}

	textData, err := w.store.Download(ctx, request.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", request.TextKey, err)
	}

	return string(textData), nil
}

func (w *NatsWorker) reply(msg *nats.Msg, reply SpeakReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error(logFmtReplyFailed, reply.Header.WorkflowID, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error(logFmtReplyFailed, reply.Header.WorkflowID, err)
	}
}

func (w *NatsWorker) publish(reply SpeakReply) {
	if w.cfg.PublishSubject == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		w.log.Error(logFmtPublishFailed, reply.Header.WorkflowID, err)

		return
	}

	err = w.natsConnection.Publish(w.cfg.PublishSubject, data)
	if err != nil {
		w.log.Error(logFmtPublishFailed, reply.Header.WorkflowID, err)
	}
}

// ownerID picks the lease owner for a request: the user, then the workflow,
// then the event. An empty result lets the speaker generate one.
func ownerID(header events.EventHeader) string {
	for _, candidate := range []string{header.UserID, header.WorkflowID, header.EventID} {
		if candidate != "" {
			return candidate
		}
	}

	return ""
}
