// Package publish provides the publish_event action, which emits a domain event on the event bus.
package publish

import (
	"context"
	"errors"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/protocol"
)

var ErrNoPublisher = errors.New("publish_event requires an event publisher")

type ActionFactory struct {
	publisher eventbus.EventPublisher
}

func NewActionFactory(publisher eventbus.EventPublisher) *ActionFactory {
	return &ActionFactory{publisher: publisher}
}

func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	if f.publisher == nil {
		return nil, ErrNoPublisher
	}

	action, err := NewAction(config)
	if err != nil {
		return nil, err
	}

	action.publisher = f.publisher

	return action, nil
}

func (f *ActionFactory) ID() string {
	return "publish_event"
}

func (f *ActionFactory) Name() string {
	return "Publish Event"
}

func (f *ActionFactory) Description() string {
	return "Publishes a domain event, letting one workflow trigger others"
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event": map[string]any{
				"type":      "string",
				"minLength": 1,
				"examples":  []string{"invoice.flagged"},
			},
			"entity_type": map[string]any{
				"type":        "string",
				"description": "Defaults to the entity type of the execution context",
			},
			"entity": map[string]any{
				"type":        "object",
				"description": "Entity payload. Values support templating. Defaults to the triggering entity.",
			},
		},
		"required":             []string{"event"},
		"additionalProperties": false,
	}
}
