package application

import (
	"context"
	"errors"
	"fmt"

	"voice-assist/internal/domain"
)

var (
	ErrBlocked       = errors.New("request blocked by API for safety reasons")
	ErrEmptyResponse = errors.New("No response from assistant")
)

// DefaultSystemPrompt is prepended to every request unless overridden in config.
const DefaultSystemPrompt = "You are a helpful assistant providing concise and accurate information."

// AnswerGenerator produces the assistant reply for userText given the prior transcript.
type AnswerGenerator interface {
	Generate(ctx context.Context, userText string, history []domain.Message) (string, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry of a chat request.
type Turn struct {
	Role    Role
	Content string
}

// BuildTurns maps history to chat turns and appends userText as the final user
// turn. When history already ends with the same user utterance it is not repeated.
// The system prompt, when set, is not included; providers place it themselves.
func BuildTurns(userText string, history []domain.Message) []Turn {
	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		if m.Pending {
			continue
		}
		role := RoleUser
		if m.Sender == domain.SenderAssistant {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: m.Text})
	}

	if n := len(turns); n > 0 && turns[n-1].Role == RoleUser && turns[n-1].Content == userText {
		return turns
	}
	return append(turns, Turn{Role: RoleUser, Content: userText})
}

// BlockedError reports a prompt rejected by the provider's safety filter.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "Unknown reason"
	}
	return fmt.Sprintf("Request blocked by API for safety reasons: %s", reason)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// APIError is a non-success HTTP answer from a generation endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %s", e.Body)
}
