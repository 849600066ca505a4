// Package eventbus carries domain events into the dispatcher and execution lifecycle events out of the engine.
package eventbus

import (
	"context"

	"github.com/dukex/flowrun/pkg/events"
)

type Event = events.Event

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
