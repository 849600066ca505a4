// Package notify provides the notify action, which alerts users through a pluggable Sender.
package notify

import (
	"context"

	"github.com/dukex/flowrun/pkg/protocol"
)

type ActionFactory struct {
	sender Sender
}

// NewActionFactory creates a factory delivering through sender. A nil sender logs notifications.
func NewActionFactory(sender Sender) *ActionFactory {
	if sender == nil {
		sender = LogSender{}
	}

	return &ActionFactory{sender: sender}
}

func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	action, err := NewAction(config)
	if err != nil {
		return nil, err
	}

	action.sender = f.sender

	return action, nil
}

func (f *ActionFactory) ID() string {
	return "notify"
}

func (f *ActionFactory) Name() string {
	return "Notify"
}

func (f *ActionFactory) Description() string {
	return "Sends a templated notification to one or more recipients"
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{
				"type":        "string",
				"description": "Delivery channel understood by the configured sender",
				"default":     "email",
			},
			"recipients": map[string]any{
				"type":        "array",
				"minItems":    1,
				"items":       map[string]any{"type": "string", "minLength": 1},
				"description": "Recipients. Each entry supports templating, e.g. {{.user.email}}",
			},
			"subject": map[string]any{
				"type": "string",
			},
			"message": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required":             []string{"recipients", "message"},
		"additionalProperties": false,
	}
}
