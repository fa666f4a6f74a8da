package application

import (
	"context"
	"log/slog"
	"time"

	"voice-assist/internal/domain"
	"voice-assist/internal/observe"
)

type AssistantConfig struct {
	Language           string
	Policy             RetryPolicy
	MaxContextMessages int
	Archive            Archive
	Notifier           Notifier
	Metrics            *observe.Metrics

	// Schedule overrides the timer used for recognizer restarts.
	Schedule Scheduler
}

// Assistant wires speech capture to the conversation and fans both out to
// presentation clients through the hub.
type Assistant struct {
	hub          *Hub
	session      *SessionController
	conversation *Conversation
	logger       *slog.Logger
}

func NewAssistant(
	recognizers RecognizerFactory,
	permission PermissionChecker,
	generator AnswerGenerator,
	cfg AssistantConfig,
	logger *slog.Logger,
) *Assistant {
	hub := NewHub()

	conversation := NewConversation(generator, hub, ConversationConfig{
		MaxContextMessages: cfg.MaxContextMessages,
		Archive:            cfg.Archive,
		Notifier:           cfg.Notifier,
		Logger:             logger.With("component", "conversation"),
	})

	session := NewSessionController(recognizers, permission, conversation, hub, SessionConfig{
		Recognizer: DefaultRecognizerConfig(cfg.Language),
		Policy:     cfg.Policy,
		Schedule:   cfg.Schedule,
		Metrics:    cfg.Metrics,
		Logger:     logger.With("component", "session"),
	})

	return &Assistant{
		hub:          hub,
		session:      session,
		conversation: conversation,
		logger:       logger,
	}
}

// Run drives the session controller until ctx is cancelled. On return capture
// is stopped and any in-flight reply has settled.
func (a *Assistant) Run(ctx context.Context) error {
	a.logger.Info("assistant ready")

	err := a.session.Run(ctx)

	a.logger.Info("waiting for in-flight reply")
	done := make(chan struct{})
	go func() {
		a.conversation.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		a.logger.Warn("in-flight reply did not settle before shutdown")
	}
	return err
}

// SendText feeds typed input into the conversation, bypassing speech capture.
func (a *Assistant) SendText(ctx context.Context, text string) error {
	return a.conversation.Intake(ctx, text)
}

func (a *Assistant) Toggle(ctx context.Context) error {
	return a.session.Toggle(ctx)
}

func (a *Assistant) StartListening(ctx context.Context) error {
	return a.session.Start(ctx)
}

func (a *Assistant) StopListening() error {
	return a.session.Stop()
}

func (a *Assistant) ClearConversation() { a.conversation.Clear() }
func (a *Assistant) ErrorHandled()      { a.conversation.ErrorHandled() }

// State is the presentation snapshot served to clients that connect late.
type State struct {
	Messages   []domain.Message `json:"messages"`
	Processing bool             `json:"processing"`
	Listening  bool             `json:"listening"`
	Error      string           `json:"error,omitempty"`
}

func (a *Assistant) State() State {
	return State{
		Messages:   a.conversation.Snapshot(),
		Processing: a.conversation.Processing(),
		Listening:  a.session.Status().Active(),
		Error:      a.conversation.Err(),
	}
}

func (a *Assistant) Subscribe(buffer int) (<-chan domain.Update, func()) {
	return a.hub.Subscribe(buffer)
}

func (a *Assistant) Session() *SessionController { return a.session }
func (a *Assistant) Conversation() *Conversation { return a.conversation }
