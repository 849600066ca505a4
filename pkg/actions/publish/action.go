package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

type Action struct {
	Event      string
	EntityType string
	Entity     map[string]any

	publisher eventbus.EventPublisher
}

func NewAction(config map[string]any) (*Action, error) {
	event, _ := config["event"].(string)
	if event == "" {
		return nil, protocol.ConfigError("missing required field 'event'")
	}

	entityType, _ := config["entity_type"].(string)

	var entity map[string]any

	if raw, ok := config["entity"]; ok && raw != nil {
		entity, ok = raw.(map[string]any)
		if !ok {
			return nil, protocol.ConfigError("'entity' must be an object")
		}
	}

	return &Action{Event: event, EntityType: entityType, Entity: entity}, nil
}

func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	name, err := template.RenderString(a.Event, &execCtx)
	if err != nil {
		return nil, protocol.ConfigError("render event: %v", err)
	}

	entityType := a.EntityType
	if entityType == "" {
		entityType = execCtx.EntityType
	}

	entity := execCtx.Entity

	if a.Entity != nil {
		rendered, err := template.RenderValue(a.Entity, &execCtx)
		if err != nil {
			return nil, protocol.ConfigError("render entity: %v", err)
		}

		entity, _ = rendered.(map[string]any)
	}

	event := events.DomainEvent{
		BaseEvent:  events.NewBaseEvent(events.DomainEventType, ""),
		Event:      name,
		EntityType: entityType,
		Entity:     entity,
		User:       execCtx.User,
		Source:     "workflow",
	}

	key := entityType
	if id, ok := entity["id"]; ok {
		key = fmt.Sprintf("%s:%v", entityType, id)
	}

	err = a.publisher.Publish(ctx, key, event)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", name, err)
	}

	logger.DebugContext(ctx, "Domain event published", "action_type", "publish_event", "event", name)

	return map[string]any{
		"event_id":    event.ID,
		"event":       name,
		"entity_type": entityType,
	}, nil
}
