package application

import (
	"context"

	"voice-assist/internal/domain"
)

// Archive stores committed transcript messages outside the in-memory transcript.
type Archive interface {
	Append(ctx context.Context, msg domain.Message) error
}

type NoopArchive struct{}

func (n *NoopArchive) Append(_ context.Context, _ domain.Message) error {
	return nil
}
