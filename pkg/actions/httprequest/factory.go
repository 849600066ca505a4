package httprequest

import (
	"context"

	"github.com/dukex/flowrun/pkg/protocol"
)

// ActionFactory creates HTTP request actions.
type ActionFactory struct {
	client Doer
}

// NewActionFactory creates a factory. A nil client uses a default http.Client.
func NewActionFactory(client Doer) *ActionFactory {
	return &ActionFactory{client: client}
}

// Create creates a new Action from the given configuration.
func (h *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	action, err := NewAction(config)
	if err != nil {
		return nil, err
	}

	if h.client != nil {
		action.client = h.client
	}

	return action, nil
}

// ID returns the unique identifier for the action.
func (h *ActionFactory) ID() string {
	return "http_request"
}

// Name returns the name of the action.
func (h *ActionFactory) Name() string {
	return "HTTP Request"
}

// Description returns a brief description of the action.
func (h *ActionFactory) Description() string {
	return "Calls a webhook URL with optional headers and a templated body. Non-2xx responses fail the action."
}

// Schema returns the JSON schema for configuring this action.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"minLength":   1,
				"description": "The URL to call. Supports templating with entity and metadata fields.",
				"examples": []string{
					"https://hooks.example.com/invoices",
					"https://api.example.com/customers/{{.entity.customer_id}}/notes",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"description": "Request body. Strings are rendered as templates, objects are rendered field by field and sent as JSON.",
				"type":        []string{"string", "object"},
				"examples": []any{
					`{"invoice": "{{.entity.id}}", "amount": {{.entity.amount}}}`,
					map[string]any{"event": "{{.event}}", "entity": "{{.entity.id}}"},
				},
			},
			"timeout_ms": map[string]any{
				"type":        "integer",
				"description": "Per-request timeout in milliseconds",
				"minimum":     1,
				"maximum":     120000, //nolint:mnd // schema bound
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
