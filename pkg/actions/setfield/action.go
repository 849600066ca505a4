package setfield

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

type Action struct {
	Field      string
	Value      any
	EntityType string
	EntityID   string

	mutator RecordMutator
}

func NewAction(config map[string]any) (*Action, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return nil, protocol.ConfigError("missing required field 'field'")
	}

	value, ok := config["value"]
	if !ok {
		return nil, protocol.ConfigError("missing required field 'value'")
	}

	entityType, _ := config["entity_type"].(string)
	entityID, _ := config["entity_id"].(string)

	return &Action{
		Field:      field,
		Value:      value,
		EntityType: entityType,
		EntityID:   entityID,
	}, nil
}

func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	entityType := a.EntityType
	if entityType == "" {
		entityType = execCtx.EntityType
	}

	entityID, err := a.resolveEntityID(execCtx)
	if err != nil {
		return nil, err
	}

	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: no entity to update", protocol.ErrPermanent)
	}

	value, err := template.RenderValue(a.Value, &execCtx)
	if err != nil {
		return nil, protocol.ConfigError("render value: %v", err)
	}

	err = a.mutator.SetField(ctx, entityType, entityID, a.Field, value)
	if err != nil {
		return nil, fmt.Errorf("set %s.%s: %w", entityType, a.Field, err)
	}

	logger.DebugContext(ctx, "Entity field set", "action_type", "set_field",
		"entity_type", entityType, "entity_id", entityID, "field", a.Field)

	return map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"field":       a.Field,
		"value":       value,
	}, nil
}

func (a *Action) resolveEntityID(execCtx models.ExecutionContext) (string, error) {
	if a.EntityID != "" {
		id, err := template.RenderString(a.EntityID, &execCtx)
		if err != nil {
			return "", protocol.ConfigError("render entity_id: %v", err)
		}

		return id, nil
	}

	id, ok := execCtx.Entity["id"]
	if !ok || id == nil {
		return "", nil
	}

	return fmt.Sprint(id), nil
}
