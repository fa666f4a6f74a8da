package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
	"voice-assist/internal/infra/anthropic"
)

func TestClaudeClient_Generate(t *testing.T) {
	var got struct {
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&got)

		response := map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "It is sunny."}},
			"stop_reason": "end_turn",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClient(anthropic.Config{
		APIKey:       "test-key",
		Model:        "claude-test",
		BaseURL:      server.URL,
		SystemPrompt: application.DefaultSystemPrompt,
	})

	now := time.Now()
	history := []domain.Message{
		domain.NewUserMessage("hi", now),
		domain.NewAssistantMessage("hello", now),
		domain.NewUserMessage("What's the weather?", now),
	}

	reply, err := client.Generate(context.Background(), "What's the weather?", history)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if reply != "It is sunny." {
		t.Errorf("reply: got %q, want It is sunny.", reply)
	}

	if got.System != application.DefaultSystemPrompt {
		t.Errorf("system: got %q", got.System)
	}

	if got.MaxTokens != 150 {
		t.Errorf("max_tokens: got %d, want 150", got.MaxTokens)
	}

	if len(got.Messages) != 3 || got.Messages[1].Role != "assistant" || got.Messages[2].Content != "What's the weather?" {
		t.Errorf("messages: got %+v", got.Messages)
	}
}

func TestClaudeClient_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer server.Close()

	client := anthropic.NewClaudeClient(anthropic.Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Generate(context.Background(), "hello", nil)
	if !errors.Is(err, application.ErrEmptyResponse) {
		t.Errorf("err: got %v, want ErrEmptyResponse", err)
	}
}

func TestClaudeClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"message":"invalid x-api-key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClient(anthropic.Config{APIKey: "bad", BaseURL: server.URL})

	_, err := client.Generate(context.Background(), "hello", nil)
	var apiErr *application.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err: got %v, want *application.APIError", err)
	}

	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", apiErr.StatusCode)
	}
}
