package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
	"voice-assist/internal/infra"
)

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	system     string
	temp       float64
	maxTokens  int
	retry      infra.RetryConfig
}

func NewClaudeClient(cfg Config) *ClaudeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	return &ClaudeClient{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		system:     cfg.SystemPrompt,
		temp:       cfg.Temperature,
		maxTokens:  cfg.MaxTokens,
		retry:      infra.DefaultRetryConfig(),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *ClaudeClient) Generate(ctx context.Context, userText string, history []domain.Message) (string, error) {
	turns := application.BuildTurns(userText, history)
	reqBody := request{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      c.system,
		Temperature: c.temp,
		Messages:    make([]message, 0, len(turns)),
	}
	for _, t := range turns {
		reqBody.Messages = append(reqBody.Messages, message{Role: string(t.Role), Content: t.Content})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var result response
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			apiErr := &application.APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return apiErr
			}
			return infra.Permanent(apiErr)
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		return nil
	})

	if retryErr != nil {
		return "", retryErr
	}

	if result.StopReason == "refusal" {
		return "", &application.BlockedError{Reason: result.StopReason}
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", application.ErrEmptyResponse
	}
	return text, nil
}
