package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voice-assist/internal/domain"
)

var ErrBusy = errors.New("a reply is already being generated")

const unknownErrorText = "Unknown error"

type ConversationConfig struct {
	// MaxContextMessages limits the history sent with each request; 0 sends all of it.
	MaxContextMessages int

	Archive  Archive
	Notifier Notifier
	Now      func() time.Time
	Logger   *slog.Logger
}

// Conversation owns the transcript and at most one in-flight generation.
type Conversation struct {
	generator AnswerGenerator
	publisher Publisher
	archive   Archive
	notifier  Notifier
	now       func() time.Time
	maxCtx    int
	logger    *slog.Logger

	mu         sync.Mutex
	messages   []domain.Message
	processing bool
	errText    string
	epoch      uint64

	// outbox holds updates in the order their state changes were made.
	// Only the goroutine that set flushing publishes them.
	outbox   []domain.Update
	flushing bool

	wg sync.WaitGroup
}

func NewConversation(generator AnswerGenerator, publisher Publisher, cfg ConversationConfig) *Conversation {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if cfg.Archive == nil {
		cfg.Archive = &NoopArchive{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = &NoopNotifier{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Conversation{
		generator: generator,
		publisher: publisher,
		archive:   cfg.Archive,
		notifier:  cfg.Notifier,
		now:       cfg.Now,
		maxCtx:    cfg.MaxContextMessages,
		logger:    cfg.Logger,
	}
}

// Intake appends userText and a pending reply, then generates the reply in the
// background. Blank input is ignored. ErrBusy is returned while a reply is
// still being generated.
func (c *Conversation) Intake(ctx context.Context, userText string) error {
	if strings.TrimSpace(userText) == "" {
		return nil
	}

	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return ErrBusy
	}

	now := c.now()
	user := domain.NewUserMessage(userText, now)
	placeholder := domain.NewPlaceholder(now)
	c.messages = append(c.messages, user, placeholder)
	c.processing = true
	epoch := c.epoch
	history := c.historyLocked()
	c.enqueueLocked(
		transcriptUpdate(c.snapshotLocked()),
		domain.Update{Kind: domain.UpdateProcessing, Processing: true},
	)
	c.wg.Add(1)
	c.mu.Unlock()
	c.flush()

	go c.generate(context.WithoutCancel(ctx), epoch, placeholder.ID, user, history)
	return nil
}

// historyLocked returns the transcript without the trailing placeholder,
// trimmed to the context limit.
func (c *Conversation) historyLocked() []domain.Message {
	h := c.messages[:len(c.messages)-1]
	if c.maxCtx > 0 && len(h) > c.maxCtx {
		h = h[len(h)-c.maxCtx:]
	}
	return append([]domain.Message(nil), h...)
}

func (c *Conversation) generate(ctx context.Context, epoch uint64, placeholderID string, user domain.Message, history []domain.Message) {
	defer c.wg.Done()

	if err := c.archive.Append(ctx, user); err != nil {
		c.logger.Warn("archiving message", "error", err)
	}

	reply, err := c.generator.Generate(ctx, user.Text, history)

	c.mu.Lock()
	c.processing = false
	if epoch != c.epoch {
		c.enqueueLocked(domain.Update{Kind: domain.UpdateProcessing, Processing: false})
		c.mu.Unlock()
		c.flush()
		c.logger.Info("dropping reply for cleared conversation", "error", err)
		return
	}

	idx := c.indexLocked(placeholderID)
	var committed domain.Message
	var errText string
	if err != nil {
		if idx >= 0 {
			c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
		}
		errText = err.Error()
		if errText == "" {
			errText = unknownErrorText
		}
		c.errText = errText
	} else {
		if idx >= 0 {
			committed = c.messages[idx]
			committed.Text = reply
			committed.Pending = false
			c.messages[idx] = committed
		} else {
			committed = domain.NewAssistantMessage(reply, c.now())
			c.messages = append(c.messages, committed)
		}
	}
	c.enqueueLocked(
		transcriptUpdate(c.snapshotLocked()),
		domain.Update{Kind: domain.UpdateProcessing, Processing: false},
	)
	if err != nil {
		c.enqueueLocked(domain.Update{Kind: domain.UpdateError, Error: errText})
	}
	c.mu.Unlock()
	c.flush()

	if err != nil {
		c.logger.Error("generating reply", "error", err)
		if nerr := c.notifier.Notify(ctx, "Assistant error: "+errText); nerr != nil {
			c.logger.Error("notifying error", "error", nerr)
		}
		return
	}

	c.logger.Info("assistant replied", "chars", len(reply))
	if err := c.archive.Append(ctx, committed); err != nil {
		c.logger.Warn("archiving message", "error", err)
	}
}

func (c *Conversation) indexLocked(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Clear empties the transcript. A reply still being generated is discarded
// when it arrives.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.epoch++
	c.enqueueLocked(transcriptUpdate(nil))
	c.mu.Unlock()
	c.flush()
}

// ErrorHandled clears the pending error notification.
func (c *Conversation) ErrorHandled() {
	c.mu.Lock()
	if c.errText != "" {
		c.errText = ""
		c.enqueueLocked(domain.Update{Kind: domain.UpdateError})
	}
	c.mu.Unlock()
	c.flush()
}

func (c *Conversation) Snapshot() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// Err returns the unacknowledged error notification, or "".
func (c *Conversation) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// Wait blocks until the in-flight generation, if any, has settled.
func (c *Conversation) Wait() {
	c.wg.Wait()
}

func (c *Conversation) snapshotLocked() []domain.Message {
	return append([]domain.Message{}, c.messages...)
}

func transcriptUpdate(snapshot []domain.Message) domain.Update {
	return domain.Update{Kind: domain.UpdateTranscript, Transcript: snapshot}
}

func (c *Conversation) enqueueLocked(updates ...domain.Update) {
	c.outbox = append(c.outbox, updates...)
}

// flush publishes queued updates outside the lock. A caller that finds another
// flush running leaves its updates to it, which keeps the stream in mutation
// order and lets a publisher call back into the conversation.
func (c *Conversation) flush() {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return
	}
	c.flushing = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		for _, u := range batch {
			c.publisher.Publish(u)
		}
		c.mu.Lock()
	}
	c.flushing = false
	c.mu.Unlock()
}
