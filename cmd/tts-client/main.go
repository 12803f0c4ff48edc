// main package for the tts-client, which sends one speak request to a running
// tts-gateway over NATS and prints the reply.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Flag descriptions and messages.
const (
	flagTextDesc     = "Text to convert to speech"
	flagTextFileDesc = "File whose contents are uploaded to the text bucket and spoken"
	flagVoiceDesc    = "Voice id as listed by tts-gateway voices"
	flagURLDesc      = "NATS server URL"
	flagSubjectDesc  = "Speak request subject"
	flagBucketDesc   = "Object store bucket used for --text-file"
	flagTimeoutDesc  = "How long to wait for the reply"
)

// Flag names.
const (
	flagText     = "text"
	flagTextFile = "text-file"
	flagVoice    = "voice"
	flagURL      = "nats-url"
	flagSubject  = "subject"
	flagBucket   = "bucket"
	flagTimeout  = "timeout"
)

// Error and log messages.
const (
	errEitherTextOrFile  = "either --text or --text-file must be provided"
	errCannotSpecifyBoth = "cannot specify both --text and --text-file"
	errVoiceRequired     = "--voice must be provided"
	errBucketRequired    = "--bucket must be provided with --text-file"
	errFmtGatewayFailed  = "gateway reported: %s"
	logFmtUploaded       = "Uploaded %s to bucket %s as %s"
	logFmtRequestSent    = "Speak request %s sent on %s"
	outFmtReply          = "%s\n%s\ncache hit: %t\n"
	logFileName          = "tts-client.log"
	defaultRequestWait   = 60 * time.Second
)

var (
	// ErrInvalidArguments is wrapped by every argument validation failure.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrGateway indicates a reply that carries an error.
	ErrGateway = errors.New("speak request failed")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text     string
	textFile string
	voice    string
	natsURL  string
	subject  string
	bucket   string
	timeout  time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateArguments(flags)
	if err != nil {
		return err
	}

	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	natsConnection, err := nats.Connect(flags.natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", flags.natsURL, err)
	}
	defer natsConnection.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	reply, err := speak(ctx, natsConnection, flags, log)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, outFmtReply, reply.AudioPath, reply.AudioURL, reply.CacheHit)
	if err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("tts-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.textFile, flagTextFile, "", flagTextFileDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.natsURL, flagURL, nats.DefaultURL, flagURLDesc)
	flagSet.StringVar(&flags.subject, flagSubject, config.DefaultSpeakSubject, flagSubjectDesc)
	flagSet.StringVar(&flags.bucket, flagBucket, "", flagBucketDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultRequestWait, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	return flags, nil
}

// validateArguments checks required and conflicting arguments.
func validateArguments(flags appFlags) error {
	switch {
	case flags.text == "" && flags.textFile == "":
		return fmt.Errorf("%w: %s", ErrInvalidArguments, errEitherTextOrFile)
	case flags.text != "" && flags.textFile != "":
		return fmt.Errorf("%w: %s", ErrInvalidArguments, errCannotSpecifyBoth)
	case flags.voice == "":
		return fmt.Errorf("%w: %s", ErrInvalidArguments, errVoiceRequired)
	case flags.textFile != "" && flags.bucket == "":
		return fmt.Errorf("%w: %s", ErrInvalidArguments, errBucketRequired)
	}

	return nil
}

// speak builds the request, uploading the text file first when one is given,
// and waits for the gateway's reply.
func speak(ctx context.Context, natsConnection *nats.Conn, flags appFlags, log *logger.Logger) (worker.SpeakReply, error) {
	request := worker.SpeakRequest{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Text:    flags.text,
		TextKey: "",
		VoiceID: flags.voice,
	}

	if flags.textFile != "" {
		key, err := uploadText(ctx, natsConnection, flags, log)
		if err != nil {
			return worker.SpeakReply{}, err
		}

		request.TextKey = key
	}

	data, err := json.Marshal(request)
	if err != nil {
		return worker.SpeakReply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Info(logFmtRequestSent, request.Header.WorkflowID, flags.subject)

	msg, err := natsConnection.RequestWithContext(ctx, flags.subject, data)
	if err != nil {
		return worker.SpeakReply{}, fmt.Errorf("no reply on %s: %w", flags.subject, err)
	}

	var reply worker.SpeakReply

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return worker.SpeakReply{}, fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	if reply.Error != "" {
		return reply, fmt.Errorf("%w: "+errFmtGatewayFailed, ErrGateway, reply.Error)
	}

	return reply, nil
}

func uploadText(ctx context.Context, natsConnection *nats.Conn, flags appFlags, log *logger.Logger) (string, error) {
	data, err := os.ReadFile(flags.textFile)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", flags.textFile, err)
	}

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return "", fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(ctx, js, flags.bucket)
	if err != nil {
		return "", fmt.Errorf("failed to open text bucket: %w", err)
	}

	key := uuid.NewString() + ".txt"

	err = store.Upload(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload text: %w", err)
	}

	log.Info(logFmtUploaded, flags.textFile, flags.bucket, key)

	return key, nil
}
