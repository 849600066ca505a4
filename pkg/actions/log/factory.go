// Package log provides the log action, which writes a templated message to the engine log.
package log

import (
	"context"

	"github.com/dukex/flowrun/pkg/protocol"
)

// ActionFactory creates log actions.
type ActionFactory struct{}

// NewActionFactory creates a new factory instance.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new log action.
func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the action type.
func (f *ActionFactory) ID() string {
	return "log"
}

// Name returns the factory name.
func (f *ActionFactory) Name() string {
	return "Log"
}

// Description returns the factory description.
func (f *ActionFactory) Description() string {
	return "Logs a message at a level (debug, info, warn, error) with template support for entity and metadata fields"
}

// Schema returns the JSON schema for log action configuration.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Message to log. Supports templating with execution context data.",
				"examples": []string{
					"Invoice {{.entity.id}} created for {{.entity.amount}}",
					"Triggered by {{.triggered_by}} from {{.trigger_source}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}
