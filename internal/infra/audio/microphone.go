//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// MicrophoneSource captures utterances from the default input device. It is
// also the permission checker for live capture.
type MicrophoneSource struct {
	cfg    MicrophoneConfig
	logger *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	frame  []int16
}

func NewMicrophoneSource(cfg MicrophoneConfig, logger *slog.Logger) *MicrophoneSource {
	if cfg.SampleRate == 0 {
		cfg = DefaultMicrophoneConfig()
	}
	return &MicrophoneSource{
		cfg:    cfg,
		logger: logger,
		frame:  make([]int16, framesPerBuffer),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), framesPerBuffer, m.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	m.stream = stream
	m.logger.Info("microphone started", "sampleRate", m.cfg.SampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	return portaudio.Terminate()
}

// Capture records until trailing silence follows speech. It returns no audio
// when nothing is said within NoSpeechTimeout.
func (m *MicrophoneSource) Capture(ctx context.Context, onLevel func(rms float64)) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil, fmt.Errorf("microphone not started")
	}

	rate := m.cfg.SampleRate
	samples := make([]int16, 0, rate*5)
	silenceLimit := int(m.cfg.CompleteSilence.Seconds() * float64(rate))
	noSpeechLimit := int(m.cfg.NoSpeechTimeout.Seconds() * float64(rate))
	maxSamples := int(m.cfg.MaxUtterance.Seconds() * float64(rate))

	heard := false
	silent := 0
	waited := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}
		if onLevel != nil {
			onLevel(Level(m.frame))
		}

		if isSilent(m.frame, m.cfg.SilenceThreshold) {
			if !heard {
				waited += len(m.frame)
				if waited > noSpeechLimit {
					return nil, nil
				}
				continue
			}
			silent += len(m.frame)
		} else {
			heard = true
			silent = 0
		}

		samples = append(samples, m.frame...)
		if silent > silenceLimit || len(samples) > maxSamples {
			break
		}
	}

	m.logger.Debug("utterance captured", "duration", time.Duration(len(samples))*time.Second/time.Duration(rate))
	return EncodeWAV(samples, rate), nil
}

// Granted reports whether a default input device can be opened.
func (m *MicrophoneSource) Granted() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()

	dev, err := portaudio.DefaultInputDevice()
	return err == nil && dev != nil && dev.MaxInputChannels > 0
}

func (m *MicrophoneSource) Request(_ context.Context) {
	m.logger.Warn("microphone access required: grant this process access to an input device and toggle listening again")
}
