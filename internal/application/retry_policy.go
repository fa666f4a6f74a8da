package application

import (
	"time"

	"voice-assist/internal/domain"
)

// RetryRule says how the controller reacts to one recognizer error kind.
type RetryRule struct {
	// Recreate destroys the recognizer and builds a new one before restarting.
	Recreate bool

	// RecreateNow recreates when the error arrives instead of when the delay ends.
	RecreateNow bool

	Delay time.Duration

	// MaxRestarts caps consecutive restarts for the kind; 0 means unlimited.
	MaxRestarts int

	// RequestPermission stops the session and asks for microphone access.
	RequestPermission bool
}

// RetryPolicy maps every error kind to its rule. Kinds missing from the map use
// the ErrorUnknown rule.
type RetryPolicy map[domain.ErrorKind]RetryRule

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		domain.ErrorAudio:                   {Recreate: true, Delay: 500 * time.Millisecond},
		domain.ErrorClient:                  {Recreate: true, Delay: 800 * time.Millisecond, MaxRestarts: 3},
		domain.ErrorInsufficientPermissions: {RequestPermission: true},
		domain.ErrorNetwork:                 {Delay: time.Second},
		domain.ErrorNetworkTimeout:          {Delay: time.Second},
		domain.ErrorNoMatch:                 {Delay: 300 * time.Millisecond},
		domain.ErrorRecognizerBusy:          {Recreate: true, RecreateNow: true, Delay: 300 * time.Millisecond},
		domain.ErrorServer:                  {Delay: time.Second, MaxRestarts: 1},
		domain.ErrorSpeechTimeout:           {Delay: 300 * time.Millisecond},
		domain.ErrorUnknown:                 {Recreate: true, Delay: 500 * time.Millisecond},
	}
}

func (p RetryPolicy) Rule(kind domain.ErrorKind) RetryRule {
	if r, ok := p[kind]; ok {
		return r
	}
	if r, ok := p[domain.ErrorUnknown]; ok {
		return r
	}
	return DefaultRetryPolicy()[domain.ErrorUnknown]
}

// RetryBudget counts restarts per error kind within one user session.
type RetryBudget map[domain.ErrorKind]int

func (b RetryBudget) Reset() {
	for k := range b {
		delete(b, k)
	}
}

type RetryAction int

const (
	ActionRestart RetryAction = iota
	ActionGiveUp
	ActionRequestPermission
)

func (a RetryAction) String() string {
	switch a {
	case ActionRestart:
		return "restart"
	case ActionGiveUp:
		return "give_up"
	case ActionRequestPermission:
		return "request_permission"
	default:
		return "unknown"
	}
}

type RetryDecision struct {
	Action RetryAction
	Rule   RetryRule

	// Attempt is the 1-based restart number for ActionRestart.
	Attempt int
}

// Decide applies the rule for kind and updates budget. A kind whose ceiling is
// reached gives up and has its counter reset.
func (p RetryPolicy) Decide(kind domain.ErrorKind, budget RetryBudget) RetryDecision {
	rule := p.Rule(kind)
	if rule.RequestPermission {
		return RetryDecision{Action: ActionRequestPermission, Rule: rule}
	}
	if rule.MaxRestarts > 0 && budget[kind] >= rule.MaxRestarts {
		delete(budget, kind)
		return RetryDecision{Action: ActionGiveUp, Rule: rule}
	}
	budget[kind]++
	return RetryDecision{Action: ActionRestart, Rule: rule, Attempt: budget[kind]}
}
