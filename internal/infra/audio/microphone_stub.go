//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
)

// MicrophoneSource stub when portaudio is not available
type MicrophoneSource struct {
	logger *slog.Logger
}

func NewMicrophoneSource(_ MicrophoneConfig, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	return fmt.Errorf("microphone source not available: rebuild with -tags portaudio")
}

func (m *MicrophoneSource) Stop() error {
	return nil
}

func (m *MicrophoneSource) Capture(_ context.Context, _ func(float64)) ([]byte, error) {
	return nil, fmt.Errorf("microphone source not available")
}

func (m *MicrophoneSource) Granted() bool {
	return false
}

func (m *MicrophoneSource) Request(_ context.Context) {
	m.logger.Warn("microphone capture requires a build with -tags portaudio")
}
