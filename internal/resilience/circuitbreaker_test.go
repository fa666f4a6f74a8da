package resilience_test

import (
	"errors"
	"testing"
	"time"

	"voice-assist/internal/resilience"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errBackend = errors.New("backend down")

func failing() error { return errBackend }
func passing() error { return nil }

func newBreaker(clock *fakeClock) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:        "test",
		MaxFailures: 2,
		Cooldown:    10 * time.Second,
		Now:         clock.now,
	})
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := newBreaker(clock)

	_ = cb.Execute(failing)
	if cb.State() != resilience.StateClosed {
		t.Fatalf("state after 1 failure = %v, want closed", cb.State())
	}
	_ = cb.Execute(failing)
	if cb.State() != resilience.StateOpen {
		t.Fatalf("state after 2 failures = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while breaker was open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := newBreaker(clock)

	_ = cb.Execute(failing)
	_ = cb.Execute(passing)
	_ = cb.Execute(failing)
	if cb.State() != resilience.StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := newBreaker(clock)
	_ = cb.Execute(failing)
	_ = cb.Execute(failing)

	clock.advance(10 * time.Second)
	if cb.State() != resilience.StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", cb.State())
	}

	// A failed probe re-opens for another full cool-down.
	if err := cb.Execute(failing); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v", err)
	}
	if cb.State() != resilience.StateOpen {
		t.Fatalf("state after failed probe = %v, want open", cb.State())
	}

	clock.advance(10 * time.Second)
	if err := cb.Execute(passing); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("state after good probe = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[resilience.State]string{
		resilience.StateClosed:   "closed",
		resilience.StateOpen:     "open",
		resilience.StateHalfOpen: "half-open",
		resilience.State(9):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
