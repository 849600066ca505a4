package setfield

import (
	"context"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
)

// RecordMutator writes one field of a business entity owned by another system.
type RecordMutator interface {
	SetField(ctx context.Context, entityType, entityID, field string, value any) error
}

// EventMutator hands mutations to the entity owner as entity.field.set events.
type EventMutator struct {
	Publisher eventbus.EventPublisher
}

func (m EventMutator) SetField(ctx context.Context, entityType, entityID, field string, value any) error {
	event := events.EntityFieldSet{
		BaseEvent:  events.NewBaseEvent(events.EntityFieldSetEvent, ""),
		EntityType: entityType,
		EntityID:   entityID,
		Field:      field,
		Value:      value,
	}

	return m.Publisher.Publish(ctx, entityType+":"+entityID, event)
}
