// Package setfield provides the set_field action, used to flag or annotate the triggering entity.
package setfield

import (
	"context"
	"errors"

	"github.com/dukex/flowrun/pkg/protocol"
)

var ErrNoMutator = errors.New("set_field requires a record mutator")

type ActionFactory struct {
	mutator RecordMutator
}

func NewActionFactory(mutator RecordMutator) *ActionFactory {
	return &ActionFactory{mutator: mutator}
}

func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	if f.mutator == nil {
		return nil, ErrNoMutator
	}

	action, err := NewAction(config)
	if err != nil {
		return nil, err
	}

	action.mutator = f.mutator

	return action, nil
}

func (f *ActionFactory) ID() string {
	return "set_field"
}

func (f *ActionFactory) Name() string {
	return "Set Field"
}

func (f *ActionFactory) Description() string {
	return "Sets a field on the triggering entity, e.g. flagging an invoice for review"
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Field to set on the entity",
				"examples":    []string{"flagged", "review.status"},
			},
			"value": map[string]any{
				"description": "Value to set. Strings support templating.",
			},
			"entity_type": map[string]any{
				"type":        "string",
				"description": "Overrides the entity type of the execution context",
			},
			"entity_id": map[string]any{
				"type":        "string",
				"description": "Overrides the entity id. Defaults to {{.entity.id}}.",
			},
		},
		"required":             []string{"field", "value"},
		"additionalProperties": false,
	}
}
