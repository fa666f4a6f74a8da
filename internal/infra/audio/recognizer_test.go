package audio_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
	"voice-assist/internal/infra/audio"
)

type stubSource struct {
	mu     sync.Mutex
	audio  []byte
	err    error
	levels []float64
	block  bool
}

func (s *stubSource) Start(_ context.Context) error { return nil }
func (s *stubSource) Stop() error                   { return nil }
func (s *stubSource) Name() string                  { return "stub" }

func (s *stubSource) Capture(ctx context.Context, onLevel func(float64)) ([]byte, error) {
	s.mu.Lock()
	levels, block, audio, err := s.levels, s.block, s.audio, s.err
	s.mu.Unlock()

	for _, l := range levels {
		onLevel(l)
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return audio, err
}

func (s *stubSource) unblock(audio []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = false
	s.audio = audio
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return s.text, s.err
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func startRecognizer(t *testing.T, src application.UtteranceSource, stt application.Transcriber) (*audio.Recognizer, <-chan domain.RecognizerEvent) {
	t.Helper()
	events := make(chan domain.RecognizerEvent, 32)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := audio.NewRecognizer(src, stt, func(ev domain.RecognizerEvent) { events <- ev }, logger)
	if err := rec.Start(context.Background(), application.DefaultRecognizerConfig("en-US")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { rec.Destroy() })
	return rec, events
}

func next(t *testing.T, events <-chan domain.RecognizerEvent) domain.RecognizerEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for recognizer event")
		return domain.RecognizerEvent{}
	}
}

func expect(t *testing.T, events <-chan domain.RecognizerEvent, want ...domain.RecognizerEvent) {
	t.Helper()
	for i, w := range want {
		if got := next(t, events); got != w {
			t.Errorf("event %d = %s, want %s", i, got, w)
		}
	}
}

func TestRecognizer_FinalResult(t *testing.T) {
	src := &stubSource{audio: []byte("RIFF"), levels: []float64{3.5}}
	_, events := startRecognizer(t, src, &stubTranscriber{text: "what time is it"})

	expect(t, events,
		domain.ReadyForSpeech(),
		domain.AudioLevel(3.5),
		domain.EndOfSpeech(),
		domain.FinalResult("what time is it"),
	)
}

func TestRecognizer_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		src  *stubSource
		stt  *stubTranscriber
		want domain.ErrorKind
	}{
		{"capture failure", &stubSource{err: errors.New("device lost")}, &stubTranscriber{}, domain.ErrorAudio},
		{"nothing said", &stubSource{}, &stubTranscriber{}, domain.ErrorSpeechTimeout},
		{"blank transcript", &stubSource{audio: []byte("x")}, &stubTranscriber{text: "  "}, domain.ErrorNoMatch},
		{"server error", &stubSource{audio: []byte("x")}, &stubTranscriber{err: &application.APIError{StatusCode: 503}}, domain.ErrorServer},
		{"client error", &stubSource{audio: []byte("x")}, &stubTranscriber{err: &application.APIError{StatusCode: 400}}, domain.ErrorClient},
		{"timeout", &stubSource{audio: []byte("x")}, &stubTranscriber{err: timeoutError{}}, domain.ErrorNetworkTimeout},
		{"deadline", &stubSource{audio: []byte("x")}, &stubTranscriber{err: context.DeadlineExceeded}, domain.ErrorNetworkTimeout},
		{"network", &stubSource{audio: []byte("x")}, &stubTranscriber{err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, domain.ErrorNetwork},
		{"not configured", &stubSource{audio: []byte("x")}, &stubTranscriber{err: application.ErrNoTranscriber}, domain.ErrorClient},
		{"other", &stubSource{audio: []byte("x")}, &stubTranscriber{err: errors.New("weird")}, domain.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, events := startRecognizer(t, tt.src, tt.stt)

			var last domain.RecognizerEvent
			for last.Type != domain.EventError {
				last = next(t, events)
				if last.Type == domain.EventFinalResult {
					t.Fatalf("unexpected final result %q", last.Text)
				}
			}
			if last.Kind != tt.want {
				t.Errorf("kind = %s, want %s", last.Kind, tt.want)
			}
		})
	}
}

func TestRecognizer_BusyWhileRunning(t *testing.T) {
	src := &stubSource{block: true}
	rec, events := startRecognizer(t, src, &stubTranscriber{})
	expect(t, events, domain.ReadyForSpeech())

	if err := rec.Start(context.Background(), application.DefaultRecognizerConfig("en-US")); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	expect(t, events, domain.RecognizerError(domain.ErrorRecognizerBusy))

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event after stop: %s", ev)
	case <-time.After(100 * time.Millisecond):
	}

	// The handle is reusable after a stop.
	src.unblock([]byte("x"))
	deadline := time.Now().Add(time.Second)
	for {
		err := rec.Start(context.Background(), application.DefaultRecognizerConfig("en-US"))
		if err != nil {
			t.Fatalf("restart: %v", err)
		}
		ev := next(t, events)
		if ev.Type == domain.EventReadyForSpeech {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recognizer stayed busy after stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecognizer_DestroySilences(t *testing.T) {
	src := &stubSource{block: true}
	rec, events := startRecognizer(t, src, &stubTranscriber{})
	expect(t, events, domain.ReadyForSpeech())

	if err := rec.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := rec.Start(context.Background(), application.DefaultRecognizerConfig("en-US")); err == nil {
		t.Error("Start after Destroy should fail")
	}
}
