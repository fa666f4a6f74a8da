package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
	"voice-assist/internal/resilience"
)

type scriptedGenerator struct {
	reply string
	err   error
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, userText string, history []domain.Message) (string, error) {
	g.calls++
	return g.reply, g.err
}

func newFailover(clock *fakeClock, gens ...*scriptedGenerator) *resilience.FailoverGenerator {
	cfg := resilience.BreakerConfig{MaxFailures: 1, Cooldown: time.Minute, Now: clock.now}
	f := resilience.NewFailoverGenerator("g0", gens[0], cfg)
	for i, g := range gens[1:] {
		f.Add(string(rune('a'+i)), g)
	}
	return f
}

func TestFailover_UsesPrimary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	primary := &scriptedGenerator{reply: "primary"}
	backup := &scriptedGenerator{reply: "backup"}
	f := newFailover(clock, primary, backup)

	got, err := f.Generate(context.Background(), "hi", nil)
	if err != nil || got != "primary" {
		t.Fatalf("Generate = %q, %v", got, err)
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times", backup.calls)
	}
}

func TestFailover_FallsBackAndSkipsOpenBreaker(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	primary := &scriptedGenerator{err: &application.APIError{StatusCode: 500, Body: "boom"}}
	backup := &scriptedGenerator{reply: "backup"}
	f := newFailover(clock, primary, backup)

	for i := 0; i < 2; i++ {
		got, err := f.Generate(context.Background(), "hi", nil)
		if err != nil || got != "backup" {
			t.Fatalf("call %d: Generate = %q, %v", i, got, err)
		}
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open on second call)", primary.calls)
	}
	if s := f.States()["g0"]; s != resilience.StateOpen {
		t.Errorf("primary breaker = %v, want open", s)
	}
}

func TestFailover_AllFailedKeepsLastMessage(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	primary := &scriptedGenerator{err: errors.New("first")}
	backup := &scriptedGenerator{err: &application.APIError{StatusCode: 503, Body: "overloaded"}}
	f := newFailover(clock, primary, backup)

	_, err := f.Generate(context.Background(), "hi", nil)
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	var apiErr *application.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err does not unwrap to APIError: %v", err)
	}
	if err.Error() != apiErr.Error() {
		t.Errorf("message = %q, want %q", err.Error(), apiErr.Error())
	}
}

func TestFailover_BlockedStopsImmediately(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	primary := &scriptedGenerator{err: &application.BlockedError{Reason: "SAFETY"}}
	backup := &scriptedGenerator{reply: "backup"}
	f := newFailover(clock, primary, backup)

	_, err := f.Generate(context.Background(), "hi", nil)
	if !errors.Is(err, application.ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	if backup.calls != 0 {
		t.Error("backup called after safety block")
	}
	if s := f.States()["g0"]; s != resilience.StateClosed {
		t.Errorf("primary breaker = %v, a block must not count as failure", s)
	}
}

func TestFailover_CancelledContextStops(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &scriptedGenerator{err: context.Canceled}
	backup := &scriptedGenerator{reply: "backup"}
	f := newFailover(clock, primary, backup)

	if _, err := f.Generate(ctx, "hi", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if backup.calls != 0 {
		t.Error("backup called after cancellation")
	}
}
