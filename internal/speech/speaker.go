// Package speech runs one utterance through the gateway: it takes the
// exclusive lease, synthesizes (or reuses a cached file), stores the audio and
// releases the lease.
package speech

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/assets"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts/text"
	"github.com/google/uuid"
)

const (
	slugRunes       = 32
	hashHexLength   = 16
	fallbackSlug    = "tts"
	filenameJoiner  = "_"
	cacheKeyJoiner  = "|"
	cacheFileFormat = core.FormatMP3
)

// Log formats.
const (
	logFmtCacheHit        = "Cache hit for %s: %s"
	logFmtSynthesized     = "Synthesized %d chunk(s) with %s voice %s into %s"
	logFmtReleaseFailed   = "Failed to release lease held by %s: %v"
	logFmtSynthesisFailed = "Synthesis failed for owner %s: %v"
)

var (
	// ErrEmptyText indicates a request with nothing to say.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyVoice indicates a request without a voice id.
	ErrEmptyVoice = errors.New("voice id cannot be empty")
)

// Synthesizer is the provider side of an utterance.
type Synthesizer interface {
	Active() core.ServiceKind
	MaxTextLength() int
	Synthesize(ctx context.Context, text, voiceID string, format core.AudioFormat) ([]byte, error)
}

// Lease serializes synthesis. Claim reports whether the call created the
// lease; a lease the owner already held is left for the owner to release.
type Lease interface {
	Claim(ownerID string) (bool, error)
	Release(ownerID string) error
}

// AssetStore is where finished audio is written.
type AssetStore interface {
	Store(category assets.Category, filename string, data []byte) (assets.AudioAsset, error)
	Lookup(category assets.Category, filename string) (assets.AudioAsset, error)
	Path(category assets.Category, filename string) (string, error)
}

// URLBuilder turns a stored path into a URL a playback device can fetch.
type URLBuilder interface {
	PlaybackURL(path string) string
}

// Request is one utterance.
type Request struct {
	// OwnerID identifies the caller holding the lease; a random id is used when empty.
	OwnerID string
	Text    string
	VoiceID string
}

// Result describes the stored audio.
type Result struct {
	Asset    assets.AudioAsset
	Path     string
	URL      string
	CacheHit bool
	Chunks   int
}

// Speaker wires the registry, the arbiter and the asset store together.
type Speaker struct {
	synth Synthesizer
	lease Lease
	store AssetStore
	urls  URLBuilder
	log   *logger.Logger
}

// New creates a Speaker. urls may be nil, in which case results carry no URL.
func New(synth Synthesizer, lease Lease, store AssetStore, urls URLBuilder, log *logger.Logger) *Speaker {
	return &Speaker{
		synth: synth,
		lease: lease,
		store: store,
		urls:  urls,
		log:   log,
	}
}

// Speak produces the audio for req in the cache partition. It fails
// immediately with the lease error when another owner holds the lease. A
// lease the owner took before calling Speak is still held afterwards.
func (s *Speaker) Speak(ctx context.Context, req Request) (Result, error) {
	utterance := text.Normalize(req.Text)
	if utterance == "" {
		return Result{}, ErrEmptyText
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		return Result{}, ErrEmptyVoice
	}

	owner := req.OwnerID
	if owner == "" {
		owner = uuid.NewString()
	}

	granted, err := s.lease.Claim(owner)
	if err != nil {
		return Result{}, fmt.Errorf("speak: %w", err)
	}

	if granted {
		defer func() {
			releaseErr := s.lease.Release(owner)
			if releaseErr != nil {
				s.log.Error(logFmtReleaseFailed, owner, releaseErr)
			}
		}()
	}

	filename := CacheFilename(utterance, voiceID, s.synth.Active())

	asset, lookupErr := s.store.Lookup(assets.Cache, filename)
	if lookupErr == nil {
		s.log.Info(logFmtCacheHit, owner, asset.RelativePath)

		return s.result(asset, true, 0)
	}

	chunks := text.Split(utterance, s.synth.MaxTextLength())

	audio, err := s.synthesizeChunks(ctx, chunks, voiceID)
	if err != nil {
		s.log.Error(logFmtSynthesisFailed, owner, err)

		return Result{}, err
	}

	asset, err = s.store.Store(assets.Cache, filename, audio)
	if err != nil {
		return Result{}, fmt.Errorf("storing synthesized audio: %w", err)
	}

	s.log.Info(logFmtSynthesized, len(chunks), s.synth.Active(), voiceID, asset.RelativePath)

	return s.result(asset, false, len(chunks))
}

func (s *Speaker) synthesizeChunks(ctx context.Context, chunks []string, voiceID string) ([]byte, error) {
	var audio bytes.Buffer

	for index, chunk := range chunks {
		part, err := s.synth.Synthesize(ctx, chunk, voiceID, cacheFileFormat)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", index+1, len(chunks), err)
		}

		audio.Write(part)
	}

	return audio.Bytes(), nil
}

func (s *Speaker) result(asset assets.AudioAsset, cacheHit bool, chunks int) (Result, error) {
	path, err := s.store.Path(asset.Category, asset.Filename)
	if err != nil {
		return Result{}, fmt.Errorf("resolving stored audio path: %w", err)
	}

	result := Result{
		Asset:    asset,
		Path:     path,
		CacheHit: cacheHit,
		Chunks:   chunks,
	}

	if s.urls != nil {
		result.URL = s.urls.PlaybackURL(path)
	}

	return result, nil
}

// CacheFilename names the cache file of an utterance: a readable prefix of the
// text followed by a hash of text, voice and provider, so that repeating an
// utterance finds the same file.
func CacheFilename(utterance, voiceID string, kind core.ServiceKind) string {
	sum := sha256.Sum256([]byte(strings.Join(
		[]string{utterance, voiceID, string(kind), string(cacheFileFormat)}, cacheKeyJoiner,
	)))

	return slug(utterance) + filenameJoiner + hex.EncodeToString(sum[:])[:hashHexLength] + assets.AudioExtension
}

func slug(utterance string) string {
	prefix := []rune(strings.ToLower(utterance))
	if len(prefix) > slugRunes {
		prefix = prefix[:slugRunes]
	}

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}

		return '_'
	}, string(prefix))

	cleaned := strings.Join(strings.FieldsFunc(mapped, func(r rune) bool { return r == '_' }), filenameJoiner)
	if cleaned == "" {
		return fallbackSlug
	}

	return cleaned
}
