package application

import "context"

// Notifier delivers assistant error notifications outside the presentation
// stream, e.g. as a push message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}
