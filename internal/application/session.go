package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-assist/internal/domain"
	"voice-assist/internal/observe"
)

var (
	ErrSessionActive    = errors.New("a capture session is already active")
	ErrControllerClosed = errors.New("session controller is not running")
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateListening
	StateRecovering
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// SessionStatus is a point-in-time view of the controller. Kind and Attempt
// are only set while recovering.
type SessionStatus struct {
	State   SessionState
	Kind    domain.ErrorKind
	Attempt int
}

func (s SessionStatus) Active() bool { return s.State != StateIdle }

// Scheduler runs fn once after d. The returned func cancels a pending run.
type Scheduler func(d time.Duration, fn func()) (cancel func())

func timerScheduler(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// UtteranceSink receives the final text of a capture session.
type UtteranceSink interface {
	Intake(ctx context.Context, text string) error
}

type SessionConfig struct {
	Recognizer RecognizerConfig
	Policy     RetryPolicy
	Schedule   Scheduler
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

type msgOp int

const (
	opStart msgOp = iota
	opStop
	opToggle
	opEvent
	opTimer
	opStatus
)

type controllerMsg struct {
	op    msgOp
	ctx   context.Context
	event domain.RecognizerEvent

	// gen is the recognizer generation that produced event; 0 means current.
	gen     uint64
	session uint64
	timer   uint64
	reply   chan error
	status  chan SessionStatus
}

// SessionController owns one speech capture attempt at a time and applies the
// recognizer error policy. All state is confined to the goroutine running Run;
// the exported methods post messages to it.
type SessionController struct {
	factory    RecognizerFactory
	permission PermissionChecker
	sink       UtteranceSink
	publisher  Publisher
	cfg        SessionConfig
	metrics    *observe.Metrics
	logger     *slog.Logger

	msgs chan controllerMsg
	done chan struct{}

	status      SessionStatus
	budget      RetryBudget
	session     uint64
	generation  uint64
	recognizer  Recognizer
	timerSeq    uint64
	cancelTimer func()
	pending     domain.ErrorKind
}

func NewSessionController(
	factory RecognizerFactory,
	permission PermissionChecker,
	sink UtteranceSink,
	publisher Publisher,
	cfg SessionConfig,
) *SessionController {
	if cfg.Policy == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = timerScheduler
	}
	if cfg.Recognizer.LanguageModel == "" {
		cfg.Recognizer = DefaultRecognizerConfig(cfg.Recognizer.Language)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if permission == nil {
		permission = GrantedPermission{}
	}

	return &SessionController{
		factory:    factory,
		permission: permission,
		sink:       sink,
		publisher:  publisher,
		cfg:        cfg,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		msgs:       make(chan controllerMsg, 64),
		done:       make(chan struct{}),
		budget:     make(RetryBudget),
	}
}

// Run processes commands, recognizer events and timer fires until ctx is
// cancelled, then stops capture and destroys the recognizer.
func (c *SessionController) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-c.msgs:
			c.handle(ctx, m)
		}
	}
}

// Start begins a capture session.
func (c *SessionController) Start(ctx context.Context) error {
	return c.call(ctx, opStart)
}

// Stop ends the current session. Stopping an idle controller is a no-op.
func (c *SessionController) Stop() error {
	return c.call(context.Background(), opStop)
}

// Toggle stops an active session or starts a new one.
func (c *SessionController) Toggle(ctx context.Context) error {
	return c.call(ctx, opToggle)
}

// Dispatch feeds an event as if the current recognizer had emitted it.
func (c *SessionController) Dispatch(event domain.RecognizerEvent) {
	c.post(controllerMsg{op: opEvent, event: event})
}

func (c *SessionController) Status() SessionStatus {
	ch := make(chan SessionStatus, 1)
	if !c.post(controllerMsg{op: opStatus, status: ch}) {
		return SessionStatus{}
	}
	select {
	case s := <-ch:
		return s
	case <-c.done:
		return SessionStatus{}
	}
}

func (c *SessionController) call(ctx context.Context, op msgOp) error {
	reply := make(chan error, 1)
	m := controllerMsg{op: op, ctx: ctx, reply: reply}
	select {
	case c.msgs <- m:
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrControllerClosed
	}
}

func (c *SessionController) post(m controllerMsg) bool {
	select {
	case c.msgs <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *SessionController) handle(ctx context.Context, m controllerMsg) {
	switch m.op {
	case opStart:
		m.reply <- c.start(m.ctx)
	case opStop:
		c.stop("user")
		m.reply <- nil
	case opToggle:
		if c.status.Active() {
			c.stop("user")
			m.reply <- nil
			return
		}
		m.reply <- c.start(m.ctx)
	case opEvent:
		if m.gen != 0 && m.gen != c.generation {
			c.logger.Debug("dropping event from discarded recognizer", "event", m.event, "gen", m.gen)
			return
		}
		c.onEvent(ctx, m.event)
	case opTimer:
		if m.session != c.session || m.timer != c.timerSeq {
			return
		}
		c.cancelTimer = nil
		c.restart(ctx)
	case opStatus:
		m.status <- c.status
	}
}

func (c *SessionController) start(ctx context.Context) error {
	if !c.permission.Granted() {
		c.permission.Request(ctx)
		return ErrPermissionDenied
	}
	if c.status.Active() {
		return ErrSessionActive
	}

	c.session++
	c.budget.Reset()
	if c.recognizer == nil {
		if err := c.replace(); err != nil {
			return fmt.Errorf("creating recognizer: %w", err)
		}
	}
	if err := c.recognizer.Start(ctx, c.cfg.Recognizer); err != nil {
		c.discard()
		return fmt.Errorf("starting recognizer: %w", err)
	}

	c.setStatus(SessionStatus{State: StateListening})
	c.metrics.SessionsStarted.Add(ctx, 1)
	c.logger.Info("capture session started", "session", c.session)
	return nil
}

// stop moves to idle. The recognizer handle is kept so that late final results
// it produces are still delivered.
func (c *SessionController) stop(reason string) {
	c.clearTimer()
	if !c.status.Active() {
		return
	}
	c.session++
	if c.recognizer != nil {
		if err := c.recognizer.Stop(); err != nil {
			c.logger.Debug("stopping recognizer", "error", err)
		}
	}
	c.setStatus(SessionStatus{State: StateIdle})
	c.logger.Info("capture session stopped", "reason", reason)
}

func (c *SessionController) onEvent(ctx context.Context, ev domain.RecognizerEvent) {
	switch ev.Type {
	case domain.EventReadyForSpeech:
		c.budget.Reset()
		if c.status.Active() {
			c.setStatus(SessionStatus{State: StateListening})
		}
	case domain.EventAudioLevel:
		c.publisher.Publish(domain.Update{
			Kind:       domain.UpdateAudioLevel,
			Listening:  c.status.Active(),
			AudioLevel: domain.ScaleAudioLevel(ev.Level),
		})
	case domain.EventEndOfSpeech:
		c.stop("end of speech")
	case domain.EventFinalResult:
		c.stop("final result")
		if strings.TrimSpace(ev.Text) == "" {
			return
		}
		c.logger.Info("recognized", "text", ev.Text)
		if err := c.sink.Intake(ctx, ev.Text); err != nil {
			c.logger.Warn("utterance not accepted", "error", err)
		}
	case domain.EventError:
		c.onError(ctx, ev.Kind)
	}
}

func (c *SessionController) onError(ctx context.Context, kind domain.ErrorKind) {
	c.metrics.RecordRecognizerError(ctx, string(kind))
	if !c.status.Active() {
		c.logger.Debug("recognizer error while idle", "kind", kind)
		return
	}

	d := c.cfg.Policy.Decide(kind, c.budget)
	c.logger.Debug("recognizer error", "kind", kind, "action", d.Action, "attempt", d.Attempt)

	switch d.Action {
	case ActionRequestPermission:
		c.stop("permission revoked")
		c.permission.Request(ctx)
	case ActionGiveUp:
		c.metrics.RecordGiveUp(ctx, string(kind))
		c.stop("retry limit for " + string(kind))
	case ActionRestart:
		c.metrics.RecordRestart(ctx, string(kind))
		if d.Rule.Recreate && d.Rule.RecreateNow {
			if err := c.replace(); err != nil {
				c.logger.Error("recreating recognizer", "error", err)
				c.discard()
				c.stop("recognizer unavailable")
				return
			}
		}
		c.pending = kind
		c.setStatus(SessionStatus{State: StateRecovering, Kind: kind, Attempt: d.Attempt})
		c.schedule(d.Rule.Delay)
	}
}

func (c *SessionController) schedule(d time.Duration) {
	c.clearTimer()
	c.timerSeq++
	session, seq := c.session, c.timerSeq
	c.cancelTimer = c.cfg.Schedule(d, func() {
		c.post(controllerMsg{op: opTimer, session: session, timer: seq})
	})
}

func (c *SessionController) clearTimer() {
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
	c.timerSeq++
}

func (c *SessionController) restart(ctx context.Context) {
	if c.status.State != StateRecovering {
		return
	}
	rule := c.cfg.Policy.Rule(c.pending)
	if (rule.Recreate && !rule.RecreateNow) || c.recognizer == nil {
		if err := c.replace(); err != nil {
			c.logger.Error("recreating recognizer", "error", err)
			c.discard()
			c.stop("recognizer unavailable")
			return
		}
	}
	if err := c.recognizer.Start(ctx, c.cfg.Recognizer); err != nil {
		c.logger.Error("restarting recognizer", "error", err)
		c.discard()
		c.stop("restart failed")
		return
	}
	c.setStatus(SessionStatus{State: StateListening})
}

// replace destroys the current recognizer, if any, and installs a new one.
// Events from the old handle are dropped afterwards.
func (c *SessionController) replace() error {
	c.discard()
	gen := c.generation
	r, err := c.factory.NewRecognizer(func(ev domain.RecognizerEvent) {
		c.post(controllerMsg{op: opEvent, event: ev, gen: gen})
	})
	if err != nil {
		return err
	}
	c.recognizer = r
	return nil
}

func (c *SessionController) discard() {
	if c.recognizer != nil {
		if err := c.recognizer.Destroy(); err != nil {
			c.logger.Debug("destroying recognizer", "error", err)
		}
		c.recognizer = nil
	}
	c.generation++
}

func (c *SessionController) setStatus(s SessionStatus) {
	wasActive := c.status.Active()
	c.status = s
	if s.Active() != wasActive {
		c.publisher.Publish(domain.Update{Kind: domain.UpdateListening, Listening: s.Active()})
	}
}

func (c *SessionController) shutdown() {
	c.stop("shutdown")
	c.discard()
}
