package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voice-assist/internal/domain"
	"voice-assist/internal/infra/sqlite"
)

func TestArchive_AppendAndRecent(t *testing.T) {
	archive, err := sqlite.Open(filepath.Join(t.TempDir(), "data", "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []domain.Message{
		domain.NewUserMessage("What's the weather?", base),
		domain.NewAssistantMessage("It is sunny.", base.Add(time.Second)),
		domain.NewUserMessage("thanks", base.Add(2*time.Second)),
	}
	for _, m := range msgs {
		if err := archive.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := archive.Append(ctx, domain.NewPlaceholder(base.Add(3*time.Second))); err != nil {
		t.Fatalf("Append placeholder: %v", err)
	}

	got, err := archive.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Text != "It is sunny." || got[0].Sender != domain.SenderAssistant {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Text != "thanks" || !got[1].CreatedAt.Equal(base.Add(2*time.Second)) {
		t.Errorf("second = %+v", got[1])
	}
}

func TestArchive_AppendIsIdempotent(t *testing.T) {
	archive, err := sqlite.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer archive.Close()

	ctx := context.Background()
	m := domain.NewUserMessage("hello", time.Now())
	for i := 0; i < 2; i++ {
		if err := archive.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := archive.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d messages, want 1", len(got))
	}
}
