package application

import (
	"context"
	"errors"
	"time"

	"voice-assist/internal/domain"
)

var ErrPermissionDenied = errors.New("microphone permission not granted")

// RecognizerConfig carries the fixed options a capture session is started with.
type RecognizerConfig struct {
	LanguageModel           string
	Language                string
	MaxResults              int
	PartialResults          bool
	MinimumSpeech           time.Duration
	CompleteSilence         time.Duration
	PossiblyCompleteSilence time.Duration
	PreferOffline           bool
}

const LanguageModelFreeForm = "free_form"

func DefaultRecognizerConfig(language string) RecognizerConfig {
	return RecognizerConfig{
		LanguageModel:           LanguageModelFreeForm,
		Language:                language,
		MaxResults:              3,
		PartialResults:          true,
		MinimumSpeech:           300 * time.Millisecond,
		CompleteSilence:         1500 * time.Millisecond,
		PossiblyCompleteSilence: 1500 * time.Millisecond,
		PreferOffline:           false,
	}
}

// RecognizerListener receives the events of one recognizer handle. Implementations
// must not block.
type RecognizerListener func(domain.RecognizerEvent)

// Recognizer is one speech recognition handle. A handle may become unusable after
// some errors; callers then Destroy it and build a new one.
type Recognizer interface {
	Start(ctx context.Context, cfg RecognizerConfig) error
	Stop() error
	Destroy() error
}

type RecognizerFactory interface {
	NewRecognizer(listener RecognizerListener) (Recognizer, error)
}

type RecognizerFactoryFunc func(listener RecognizerListener) (Recognizer, error)

func (f RecognizerFactoryFunc) NewRecognizer(listener RecognizerListener) (Recognizer, error) {
	return f(listener)
}

type PermissionChecker interface {
	Granted() bool
	Request(ctx context.Context)
}

// GrantedPermission is used for sources that need no microphone access.
type GrantedPermission struct{}

func (GrantedPermission) Granted() bool             { return true }
func (GrantedPermission) Request(_ context.Context) {}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

var ErrNoTranscriber = errors.New("speech-to-text not configured: set stt.api_key to enable audio transcription")

// NoopTranscriber is used when no speech-to-text backend is configured.
// It returns ErrNoTranscriber if called with actual audio data.
type NoopTranscriber struct{}

func (n *NoopTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return "", ErrNoTranscriber
}
