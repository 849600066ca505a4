package notify

import (
	"context"
	"log/slog"
)

// Notification is a rendered message ready for delivery.
type Notification struct {
	Channel    string         `json:"channel"`
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Sender delivers notifications to users, e.g. by email or chat.
type Sender interface {
	Send(ctx context.Context, notification Notification) error
}

// LogSender writes notifications to the log. It is the default when no delivery backend is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, notification Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "Notification",
		"channel", notification.Channel,
		"recipients", notification.Recipients,
		"subject", notification.Subject,
		"message", notification.Message,
	)

	return nil
}
