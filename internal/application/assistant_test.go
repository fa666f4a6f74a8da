package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"voice-assist/internal/application"
	"voice-assist/internal/domain"
)

func startAssistant(t *testing.T, gen application.AnswerGenerator) (*application.Assistant, *fakeFactory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := &fakeFactory{}
	sched := &fakeScheduler{}

	assistant := application.NewAssistant(
		factory,
		&fakePermission{granted: true},
		gen,
		application.AssistantConfig{Language: "en-US", MaxContextMessages: 10, Schedule: sched.Schedule},
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- assistant.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("assistant did not stop")
		}
	})
	return assistant, factory
}

func waitIdle(t *testing.T, updates <-chan domain.Update) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Kind == domain.UpdateProcessing && !u.Processing {
				return
			}
		case <-timeout:
			t.Fatal("timeout waiting for reply")
		}
	}
}

func TestAssistant_SpeechToReply(t *testing.T) {
	assistant, factory := startAssistant(t, &stubGenerator{reply: "It is sunny."})
	updates, cancel := assistant.Subscribe(32)
	defer cancel()

	if err := assistant.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !assistant.State().Listening {
		t.Fatal("not listening after toggle")
	}

	rec := factory.get(0)
	rec.listener(domain.ReadyForSpeech())
	rec.listener(domain.EndOfSpeech())
	rec.listener(domain.FinalResult("What's the weather?"))

	waitIdle(t, updates)

	state := assistant.State()
	if state.Listening || state.Processing {
		t.Errorf("state = %+v", state)
	}
	if len(state.Messages) != 2 || state.Messages[1].Text != "It is sunny." {
		t.Errorf("messages = %+v", state.Messages)
	}
}

func TestAssistant_SendTextAndClear(t *testing.T) {
	assistant, _ := startAssistant(t, &stubGenerator{err: errors.New("API Error: quota")})
	updates, cancel := assistant.Subscribe(32)
	defer cancel()

	if err := assistant.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	waitIdle(t, updates)

	state := assistant.State()
	if state.Error != "API Error: quota" {
		t.Errorf("error = %q", state.Error)
	}
	if len(state.Messages) != 1 {
		t.Errorf("messages = %+v", state.Messages)
	}

	assistant.ErrorHandled()
	assistant.ClearConversation()
	state = assistant.State()
	if state.Error != "" || len(state.Messages) != 0 {
		t.Errorf("state after clear = %+v", state)
	}
}
