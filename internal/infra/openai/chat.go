// Package openai talks to OpenAI-compatible endpoints for chat replies and
// speech transcription.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
)

const defaultChatModel = "gpt-4o-mini"

type ChatConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration

	// MaxRetries is passed to the SDK; negative disables retries.
	MaxRetries int
}

// ChatClient generates replies through the chat completions API.
type ChatClient struct {
	client oai.Client
	cfg    ChatConfig
}

func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries < 0 {
		opts = append(opts, option.WithMaxRetries(0))
	} else if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &ChatClient{client: oai.NewClient(opts...), cfg: cfg}, nil
}

func (c *ChatClient) Generate(ctx context.Context, userText string, history []domain.Message) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(userText, history))
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			body := apiErr.Message
			if body == "" {
				body = apiErr.Error()
			}
			return "", &application.APIError{StatusCode: apiErr.StatusCode, Body: body}
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", application.ErrEmptyResponse
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &application.BlockedError{Reason: "content_filter"}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", application.ErrEmptyResponse
	}
	return text, nil
}

func (c *ChatClient) buildParams(userText string, history []domain.Message) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(c.cfg.SystemPrompt))
	}
	for _, t := range application.BuildTurns(userText, history) {
		if t.Role == application.RoleAssistant {
			asst := oai.ChatCompletionAssistantMessageParam{}
			asst.Content.OfString = oai.String(t.Content)
			messages = append(messages, oai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			continue
		}
		messages = append(messages, oai.UserMessage(t.Content))
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.cfg.Model),
		Messages: messages,
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(c.cfg.MaxTokens))
	}
	return params
}
