// Package resilience keeps the assistant answering when a generation backend
// is failing, by tripping a breaker per backend and failing over to the next.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen lets a single probe call through after the cool-down.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type BreakerConfig struct {
	Name string

	// MaxFailures consecutive failures open the breaker. Default 3.
	MaxFailures int

	// Cooldown is how long an open breaker rejects calls. Default 30s.
	Cooldown time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// CircuitBreaker rejects calls to a backend that keeps failing. It is safe for
// concurrent use.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Execute runs fn unless the breaker is open. A failing half-open probe
// re-opens the breaker; a succeeding one closes it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}
	if err != nil {
		cb.failures++
		if probe || cb.failures >= cb.maxFailures {
			if cb.state != StateOpen {
				cb.logger.Warn("circuit breaker opened", "name", cb.name, "failures", cb.failures)
			}
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
		return err
	}
	if cb.state != StateClosed {
		cb.logger.Info("circuit breaker closed", "name", cb.name)
	}
	cb.state = StateClosed
	cb.failures = 0
	return nil
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true, nil
	case StateHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}
