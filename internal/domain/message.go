package domain

import (
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one utterance in the transcript. Text only changes while Pending is set.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending"`
}

func NewUserMessage(text string, now time.Time) Message {
	return Message{ID: uuid.NewString(), Text: text, Sender: SenderUser, CreatedAt: now}
}

func NewAssistantMessage(text string, now time.Time) Message {
	return Message{ID: uuid.NewString(), Text: text, Sender: SenderAssistant, CreatedAt: now}
}

// NewPlaceholder returns the pending assistant entry shown while a reply is generated.
func NewPlaceholder(now time.Time) Message {
	return Message{ID: uuid.NewString(), Sender: SenderAssistant, CreatedAt: now, Pending: true}
}
