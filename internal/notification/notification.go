package notification

import (
	"context"
	"log/slog"
)

const (
	// KindReply is a bot reply to an inbound message.
	KindReply = "reply"
)

// Message describes an outbound chat message.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers messages to end users.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes messages to the logger instead of delivering them.
// It stands in when no messaging provider is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
