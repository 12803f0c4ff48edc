package tts_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePolly struct {
	pages      []*polly.DescribeVoicesOutput
	tokens     []*string
	synthInput *polly.SynthesizeSpeechInput
	synthErr   error
}

func (f *fakePolly) SynthesizeSpeech(
	_ context.Context,
	params *polly.SynthesizeSpeechInput,
	_ ...func(*polly.Options),
) (*polly.SynthesizeSpeechOutput, error) {
	f.synthInput = params
	if f.synthErr != nil {
		return nil, f.synthErr
	}

	return &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(strings.NewReader("polly-audio")),
	}, nil
}

func (f *fakePolly) DescribeVoices(
	_ context.Context,
	params *polly.DescribeVoicesInput,
	_ ...func(*polly.Options),
) (*polly.DescribeVoicesOutput, error) {
	f.tokens = append(f.tokens, params.NextToken)
	page := f.pages[0]
	f.pages = f.pages[1:]

	return page, nil
}

func TestPolly_VoicesPaginatesAndSplitsEngines(t *testing.T) {
	t.Parallel()

	fake := &fakePolly{
		pages: []*polly.DescribeVoicesOutput{
			{
				Voices: []types.Voice{{
					Id:               types.VoiceIdJoanna,
					Name:             aws.String("Joanna"),
					LanguageCode:     types.LanguageCodeEnUs,
					LanguageName:     aws.String("US English"),
					Gender:           types.GenderFemale,
					SupportedEngines: []types.Engine{types.EngineStandard, types.EngineNeural},
				}},
				NextToken: aws.String("page-2"),
			},
			{
				Voices: []types.Voice{{
					Id:           types.VoiceIdBrian,
					Name:         aws.String("Brian"),
					LanguageCode: types.LanguageCodeEnGb,
					LanguageName: aws.String("British English"),
					Gender:       types.GenderMale,
				}},
			},
		},
	}

	voices, err := tts.NewPollyWithClient(fake).Voices(t.Context())
	require.NoError(t, err)
	require.Len(t, voices, 3)

	require.Len(t, fake.tokens, 2)
	assert.Nil(t, fake.tokens[0])
	assert.Equal(t, "page-2", aws.ToString(fake.tokens[1]))

	assert.Equal(t, "Joanna#engineType:standard", voices[0].ID)
	assert.Equal(t, "Joanna#engineType:neural", voices[1].ID)
	assert.Equal(t, "US English (en-US) Joanna - Female - neural", voices[1].DisplayName)
	assert.Equal(t, core.GenderFemale, voices[1].Gender)
	assert.Equal(t, "en-US", voices[1].LanguageCode)

	assert.Equal(t, "Brian", voices[2].ID)
	assert.Equal(t, core.GenderMale, voices[2].Gender)
}

func TestPolly_SynthesizeDecodesVoiceID(t *testing.T) {
	t.Parallel()

	fake := &fakePolly{}
	provider := tts.NewPollyWithClient(fake)

	audio, err := provider.Synthesize(t.Context(), "hello", "Joanna#engineType:neural", core.FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, []byte("polly-audio"), audio)

	require.NotNil(t, fake.synthInput)
	assert.Equal(t, types.VoiceIdJoanna, fake.synthInput.VoiceId)
	assert.Equal(t, types.EngineNeural, fake.synthInput.Engine)
	assert.Equal(t, types.OutputFormatMp3, fake.synthInput.OutputFormat)
	assert.Equal(t, "hello", aws.ToString(fake.synthInput.Text))

	_, err = provider.Synthesize(t.Context(), "hello", "Brian", core.FormatOggVorbis)
	require.NoError(t, err)
	assert.Equal(t, types.EngineStandard, fake.synthInput.Engine)
	assert.Equal(t, types.OutputFormatOggVorbis, fake.synthInput.OutputFormat)
}

func TestPolly_SynthesizeRejectsBadInput(t *testing.T) {
	t.Parallel()

	provider := tts.NewPollyWithClient(&fakePolly{})

	_, err := provider.Synthesize(t.Context(), "hello", "", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrUnsupportedVoice)

	_, err = provider.Synthesize(t.Context(), "hello", "en-US-Wavenet-D#en-US#FEMALE", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrUnsupportedVoice)

	_, err = provider.Synthesize(t.Context(), "hello", "Joanna", core.AudioFormat("wav"))
	require.ErrorIs(t, err, tts.ErrUnsupportedFormat)
	require.ErrorIs(t, err, tts.ErrSynthesis)
}

func TestPolly_SynthesizeWrapsClientErrors(t *testing.T) {
	t.Parallel()

	provider := tts.NewPollyWithClient(&fakePolly{synthErr: errProviderDown})

	_, err := provider.Synthesize(t.Context(), "hello", "Joanna", core.FormatMP3)
	require.ErrorIs(t, err, tts.ErrSynthesis)
	require.ErrorIs(t, err, errProviderDown)
}

func TestNewPolly_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := tts.NewPolly(tts.PollyCredentials{Region: "eu-west-1"}, tts.DefaultRequestTimeout)
	require.ErrorIs(t, err, tts.ErrConfiguration)

	_, err = tts.NewPolly(tts.PollyCredentials{AccessKeyID: "id", SecretAccessKey: "secret"}, tts.DefaultRequestTimeout)
	require.ErrorIs(t, err, tts.ErrMissingCredentials)

	provider, err := tts.NewPolly(tts.PollyCredentials{
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Region:          "eu-west-1",
	}, tts.DefaultRequestTimeout)
	require.NoError(t, err)
	assert.Equal(t, core.KindPolly, provider.Kind())
	assert.Equal(t, 3000, provider.MaxTextLength())
}

func TestEncodePollyVoiceID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Joanna", tts.EncodePollyVoiceID("Joanna", ""))
	assert.Equal(t, "Joanna#engineType:generative", tts.EncodePollyVoiceID("Joanna", "generative"))
}
