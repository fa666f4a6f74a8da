// Package gemini generates assistant replies with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
)

const defaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

type Client struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	gc := &genai.GenerateContentConfig{}
	if cfg.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}
	if cfg.Temperature > 0 {
		temp := float32(cfg.Temperature)
		gc.Temperature = &temp
	}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxTokens)
	}

	return &Client{client: client, model: cfg.Model, config: gc}, nil
}

func (c *Client) Generate(ctx context.Context, userText string, history []domain.Message) (string, error) {
	turns := application.BuildTurns(userText, history)
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == application.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &application.APIError{StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
		return "", &application.BlockedError{Reason: string(res.PromptFeedback.BlockReason)}
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", application.ErrEmptyResponse
	}
	return text, nil
}
