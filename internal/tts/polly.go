package tts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Polly voice ids carry the synthesis engine: "Joanna#engineType:neural".
const (
	pollyEngineSeparator = "#engineType:"
	pollyMaxTextLength   = 3000
	pollyDefaultEngine   = types.EngineStandard
)

// PollyAPI is the subset of the Polly client used by the adapter.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// Polly synthesizes with Amazon Polly using static, region-scoped keys.
type Polly struct {
	client PollyAPI
}

// NewPolly validates the keys and builds a Polly client for their region.
func NewPolly(creds PollyCredentials, timeout time.Duration) (*Polly, error) {
	if strings.TrimSpace(creds.AccessKeyID) == "" || strings.TrimSpace(creds.SecretAccessKey) == "" {
		return nil, fmt.Errorf("%w: access key id and secret access key are required", ErrMissingCredentials)
	}

	if strings.TrimSpace(creds.Region) == "" {
		return nil, fmt.Errorf("%w: region is required", ErrMissingCredentials)
	}

	options := polly.Options{
		Region: creds.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		),
		HTTPClient: newHTTPClient(timeout),
	}

	if creds.Endpoint != "" {
		options.BaseEndpoint = aws.String(creds.Endpoint)
	}

	return NewPollyWithClient(polly.New(options)), nil
}

// NewPollyWithClient wraps an existing client.
func NewPollyWithClient(client PollyAPI) *Polly {
	return &Polly{client: client}
}

// Kind implements core.Provider.
func (p *Polly) Kind() core.ServiceKind {
	return core.KindPolly
}

// MaxTextLength implements core.Provider.
func (p *Polly) MaxTextLength() int {
	return pollyMaxTextLength
}

// Synthesize implements core.Provider.
func (p *Polly) Synthesize(ctx context.Context, text, voiceID string, format core.AudioFormat) ([]byte, error) {
	voice, engine, err := decodePollyVoiceID(voiceID)
	if err != nil {
		return nil, err
	}

	outputFormat, err := pollyOutputFormat(format)
	if err != nil {
		return nil, err
	}

	output, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: outputFormat,
		Text:         aws.String(text),
		TextType:     types.TextTypeText,
		VoiceId:      voice,
		Engine:       engine,
	})
	if err != nil {
		return nil, synthesisError(err)
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, synthesisError(fmt.Errorf("failed to read polly audio stream: %w", err))
	}

	return audio, nil
}

// Voices implements core.Provider. A voice supporting several engines yields
// one entry per engine.
func (p *Polly) Voices(ctx context.Context) ([]core.VoiceDescriptor, error) {
	var (
		voices    []core.VoiceDescriptor
		nextToken *string
	)

	for {
		output, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{NextToken: nextToken})
		if err != nil {
			return nil, catalogError(err)
		}

		for _, voice := range output.Voices {
			voices = append(voices, pollyDescriptors(voice)...)
		}

		if output.NextToken == nil || *output.NextToken == "" {
			return voices, nil
		}

		nextToken = output.NextToken
	}
}

func pollyDescriptors(voice types.Voice) []core.VoiceDescriptor {
	label := fmt.Sprintf("%s (%s) %s - %s",
		aws.ToString(voice.LanguageName), voice.LanguageCode, aws.ToString(voice.Name), voice.Gender)

	base := core.VoiceDescriptor{
		ID:           string(voice.Id),
		DisplayName:  label,
		LanguageCode: string(voice.LanguageCode),
		Gender:       core.ParseGender(string(voice.Gender)),
	}

	if len(voice.SupportedEngines) == 0 {
		return []core.VoiceDescriptor{base}
	}

	descriptors := make([]core.VoiceDescriptor, 0, len(voice.SupportedEngines))
	for _, engine := range voice.SupportedEngines {
		descriptor := base
		descriptor.ID = EncodePollyVoiceID(string(voice.Id), string(engine))
		descriptor.DisplayName = label + " - " + string(engine)
		descriptors = append(descriptors, descriptor)
	}

	return descriptors
}

// EncodePollyVoiceID composes the external id of a Polly voice and engine.
func EncodePollyVoiceID(voiceID, engine string) string {
	if engine == "" {
		return voiceID
	}

	return voiceID + pollyEngineSeparator + engine
}

func decodePollyVoiceID(voiceID string) (types.VoiceId, types.Engine, error) {
	name, engine, hasEngine := strings.Cut(strings.TrimSpace(voiceID), pollyEngineSeparator)
	if name == "" || strings.Contains(name, "#") {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedVoice, voiceID)
	}

	if !hasEngine || engine == "" {
		return types.VoiceId(name), pollyDefaultEngine, nil
	}

	return types.VoiceId(name), types.Engine(engine), nil
}

func pollyOutputFormat(format core.AudioFormat) (types.OutputFormat, error) {
	switch format {
	case core.FormatMP3, "":
		return types.OutputFormatMp3, nil
	case core.FormatOggVorbis:
		return types.OutputFormatOggVorbis, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
