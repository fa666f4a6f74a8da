package resilience

import (
	"context"
	"errors"
	"log/slog"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
)

var ErrAllFailed = errors.New("all generators failed")

// allFailed keeps the last backend error as the message the user sees while
// still matching ErrAllFailed.
type allFailed struct {
	last error
}

func (e *allFailed) Error() string        { return e.last.Error() }
func (e *allFailed) Unwrap() error        { return e.last }
func (e *allFailed) Is(target error) bool { return target == ErrAllFailed }

type generatorEntry struct {
	name    string
	gen     application.AnswerGenerator
	breaker *CircuitBreaker
}

// FailoverGenerator tries generators in registration order, skipping those
// whose breaker is open. Safety blocks are returned at once; another backend
// would not make the prompt acceptable.
type FailoverGenerator struct {
	entries []generatorEntry
	cfg     BreakerConfig
	logger  *slog.Logger
}

func NewFailoverGenerator(primaryName string, primary application.AnswerGenerator, cfg BreakerConfig) *FailoverGenerator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := &FailoverGenerator{cfg: cfg, logger: cfg.Logger}
	f.Add(primaryName, primary)
	return f
}

// Add registers a fallback after the ones already present.
func (f *FailoverGenerator) Add(name string, gen application.AnswerGenerator) {
	bc := f.cfg
	bc.Name = name
	f.entries = append(f.entries, generatorEntry{name: name, gen: gen, breaker: NewCircuitBreaker(bc)})
}

func (f *FailoverGenerator) Generate(ctx context.Context, userText string, history []domain.Message) (string, error) {
	var lastErr error
	for _, e := range f.entries {
		var (
			reply   string
			blocked error
		)
		err := e.breaker.Execute(func() error {
			r, err := e.gen.Generate(ctx, userText, history)
			if errors.Is(err, application.ErrBlocked) {
				blocked = err
				return nil
			}
			reply = r
			return err
		})
		if blocked != nil {
			return "", blocked
		}
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", err
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			f.logger.Debug("skipping generator, circuit open", "generator", e.name)
			continue
		}
		f.logger.Warn("generator failed, trying next", "generator", e.name, "error", err)
	}
	return "", &allFailed{last: lastErr}
}

// States reports the breaker state of every registered generator.
func (f *FailoverGenerator) States() map[string]State {
	out := make(map[string]State, len(f.entries))
	for _, e := range f.entries {
		out[e.name] = e.breaker.State()
	}
	return out
}
