// Package core defines the domain types and interfaces shared by the gateway components.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownServiceKind indicates a configuration string that names no supported backend.
var ErrUnknownServiceKind = errors.New("unknown tts service kind")

// ServiceKind identifies one synthesis backend.
type ServiceKind string

// Supported backends. The string values match the names used in configuration files.
const (
	KindPolly               ServiceKind = "polly"
	KindGoogleTTS           ServiceKind = "googletts"
	KindGoogleTranslateFree ServiceKind = "googletranslate"
	KindAzureTTS            ServiceKind = "microsoftazuretts"
)

// ServiceKinds lists every supported backend in a stable order.
func ServiceKinds() []ServiceKind {
	return []ServiceKind{KindPolly, KindGoogleTTS, KindGoogleTranslateFree, KindAzureTTS}
}

// ParseServiceKind converts a configuration string into a ServiceKind.
func ParseServiceKind(value string) (ServiceKind, error) {
	candidate := ServiceKind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range ServiceKinds() {
		if candidate == kind {
			return kind, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownServiceKind, value)
}

// Gender is the normalized voice gender reported by a catalog.
type Gender string

// Normalized genders.
const (
	GenderMale        Gender = "Male"
	GenderFemale      Gender = "Female"
	GenderUnspecified Gender = "Unspecified"
)

// ParseGender maps provider-specific spellings ("FEMALE", "Female", "male") to a Gender.
func ParseGender(value string) Gender {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "male":
		return GenderMale
	case "female":
		return GenderFemale
	default:
		return GenderUnspecified
	}
}

// AudioFormat is the encoding requested from a provider.
type AudioFormat string

// Output formats understood by the adapters. Only MP3 is servable to playback devices.
const (
	FormatMP3       AudioFormat = "mp3"
	FormatOggVorbis AudioFormat = "ogg_vorbis"
)

// VoiceDescriptor is the uniform in-memory description of one catalog entry.
//
// ID is the provider's external encoding of the voice and is only composed or
// decomposed inside the adapter that owns it. Failed marks the single sentinel
// entry that replaces a catalog whose fetch did not succeed.
type VoiceDescriptor struct {
	ID           string
	DisplayName  string
	LanguageCode string
	Gender       Gender
	Failed       bool
}

// Provider is one configured synthesis backend.
type Provider interface {
	// Kind reports which backend this handle talks to.
	Kind() ServiceKind

	// Synthesize turns text into audio bytes for the voice with the given external id.
	Synthesize(ctx context.Context, text, voiceID string, format AudioFormat) ([]byte, error)

	// Voices fetches the provider's catalog. Network-backed providers honor ctx.
	Voices(ctx context.Context) ([]VoiceDescriptor, error)

	// MaxTextLength is the largest number of characters accepted per call, or 0 when unbounded.
	MaxTextLength() int
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
