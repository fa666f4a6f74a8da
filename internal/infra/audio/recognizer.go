package audio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
)

var errDestroyed = errors.New("recognizer destroyed")

// Recognizer turns one captured utterance into a transcript, reporting its
// progress as recognizer events. Stop abandons the capture but lets a
// transcription already under way deliver its result; Destroy silences the
// handle for good.
type Recognizer struct {
	source   application.UtteranceSource
	stt      application.Transcriber
	listener application.RecognizerListener
	logger   *slog.Logger

	mu            sync.Mutex
	running       bool
	destroyed     bool
	stopCapture   context.CancelFunc
	cancelRequest context.CancelFunc
}

func NewRecognizer(source application.UtteranceSource, stt application.Transcriber, listener application.RecognizerListener, logger *slog.Logger) *Recognizer {
	return &Recognizer{
		source:   source,
		stt:      stt,
		listener: listener,
		logger:   logger,
	}
}

// NewRecognizerFactory builds recognizers sharing one source and transcriber.
func NewRecognizerFactory(source application.UtteranceSource, stt application.Transcriber, logger *slog.Logger) application.RecognizerFactory {
	return application.RecognizerFactoryFunc(func(listener application.RecognizerListener) (application.Recognizer, error) {
		return NewRecognizer(source, stt, listener, logger), nil
	})
}

func (r *Recognizer) Start(ctx context.Context, cfg application.RecognizerConfig) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return errDestroyed
	}
	if r.running {
		r.mu.Unlock()
		go r.emit(domain.RecognizerError(domain.ErrorRecognizerBusy))
		return nil
	}

	base, cancelRequest := context.WithCancel(context.WithoutCancel(ctx))
	captureCtx, stopCapture := context.WithCancel(base)
	r.running = true
	r.stopCapture = stopCapture
	r.cancelRequest = cancelRequest
	r.mu.Unlock()

	r.logger.Debug("recognizer starting", "source", r.source.Name(), "language", cfg.Language)
	go r.run(base, captureCtx)
	return nil
}

func (r *Recognizer) run(ctx, captureCtx context.Context) {
	r.emit(domain.ReadyForSpeech())

	audio, err := r.source.Capture(captureCtx, func(rms float64) {
		r.emit(domain.AudioLevel(rms))
	})
	switch {
	case captureCtx.Err() != nil:
		r.finish()
		return
	case err != nil:
		r.logger.Debug("capture failed", "error", err)
		r.finish(domain.RecognizerError(domain.ErrorAudio))
		return
	case len(audio) == 0:
		r.finish(domain.RecognizerError(domain.ErrorSpeechTimeout))
		return
	}

	r.emit(domain.EndOfSpeech())

	text, err := r.stt.Transcribe(ctx, audio)
	switch {
	case ctx.Err() != nil:
		r.finish()
	case err != nil:
		r.logger.Debug("transcription failed", "error", err)
		r.finish(domain.RecognizerError(classify(err)))
	case strings.TrimSpace(text) == "":
		r.finish(domain.RecognizerError(domain.ErrorNoMatch))
	default:
		r.finish(domain.FinalResult(text))
	}
}

// finish marks the recognizer idle before delivering the terminal event so a
// restart triggered by that event is not reported busy.
func (r *Recognizer) finish(events ...domain.RecognizerEvent) {
	r.mu.Lock()
	r.running = false
	r.stopCapture = nil
	r.mu.Unlock()

	for _, ev := range events {
		r.emit(ev)
	}
}

func (r *Recognizer) emit(ev domain.RecognizerEvent) {
	r.mu.Lock()
	destroyed := r.destroyed
	r.mu.Unlock()
	if destroyed {
		return
	}
	r.listener(ev)
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCapture != nil {
		r.stopCapture()
	}
	return nil
}

func (r *Recognizer) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	if r.cancelRequest != nil {
		r.cancelRequest()
	}
	return nil
}

func classify(err error) domain.ErrorKind {
	if errors.Is(err, application.ErrNoTranscriber) {
		return domain.ErrorClient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorNetworkTimeout
	}

	var apiErr *application.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests {
			return domain.ErrorServer
		}
		return domain.ErrorClient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.ErrorNetworkTimeout
		}
		return domain.ErrorNetwork
	}
	return domain.ErrorUnknown
}
