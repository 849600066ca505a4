package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

type Action struct {
	Channel    string
	Recipients []string
	Subject    string
	Message    string

	sender Sender
}

func NewAction(config map[string]any) (*Action, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, protocol.ConfigError("missing required field 'message'")
	}

	channel, _ := config["channel"].(string)
	if channel == "" {
		channel = "email"
	}

	subject, _ := config["subject"].(string)

	var recipients []string

	switch list := config["recipients"].(type) {
	case []any:
		for _, item := range list {
			recipient, ok := item.(string)
			if !ok {
				return nil, protocol.ConfigError("recipients must be strings")
			}

			recipients = append(recipients, recipient)
		}
	case []string:
		recipients = list
	}

	if len(recipients) == 0 {
		return nil, protocol.ConfigError("at least one recipient is required")
	}

	return &Action{
		Channel:    channel,
		Recipients: recipients,
		Subject:    subject,
		Message:    message,
		sender:     LogSender{},
	}, nil
}

func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	notification, err := a.render(execCtx)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Sending notification", "action_type", "notify", "channel", a.Channel)

	err = a.sender.Send(ctx, notification)
	if err != nil {
		return nil, fmt.Errorf("send %s notification: %w", a.Channel, err)
	}

	return map[string]any{
		"channel":    notification.Channel,
		"recipients": notification.Recipients,
		"delivered":  true,
	}, nil
}

func (a *Action) render(execCtx models.ExecutionContext) (Notification, error) {
	message, err := template.RenderString(a.Message, &execCtx)
	if err != nil {
		return Notification{}, protocol.ConfigError("render message: %v", err)
	}

	subject, err := template.RenderString(a.Subject, &execCtx)
	if err != nil {
		return Notification{}, protocol.ConfigError("render subject: %v", err)
	}

	recipients := make([]string, 0, len(a.Recipients))

	for _, r := range a.Recipients {
		recipient, err := template.RenderString(r, &execCtx)
		if err != nil {
			return Notification{}, protocol.ConfigError("render recipient: %v", err)
		}

		if recipient = strings.TrimSpace(recipient); recipient != "" {
			recipients = append(recipients, recipient)
		}
	}

	if len(recipients) == 0 {
		return Notification{}, fmt.Errorf("%w: no recipient resolved", protocol.ErrPermanent)
	}

	return Notification{
		Channel:    a.Channel,
		Recipients: recipients,
		Subject:    subject,
		Message:    message,
		Metadata:   execCtx.Summary(),
	}, nil
}
