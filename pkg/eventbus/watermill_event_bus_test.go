package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, slog.Default())
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversDomainEvents(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.DomainEvent, 1)

	err := bus.Handle(events.DomainEventType, func(_ context.Context, event any) error {
		received <- event.(*events.DomainEvent)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	err = bus.Publish(ctx, "inv-1", events.DomainEvent{
		BaseEvent:  events.NewBaseEvent(events.DomainEventType, ""),
		Event:      "invoice.created",
		EntityType: "invoice",
		Entity:     map[string]any{"id": "inv-1"},
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "invoice.created", event.Event)
		assert.Equal(t, "inv-1", event.Entity["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("domain event was not delivered")
	}
}

func TestWatermillEventBus_RoutesLifecycleEventsToTheirTopic(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failed := make(chan *events.WorkflowExecutionFailed, 1)

	require.NoError(t, bus.Handle(events.WorkflowExecutionFailedEvent, func(_ context.Context, event any) error {
		failed <- event.(*events.WorkflowExecutionFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	execution := &models.WorkflowExecution{
		ID:            "ex-1",
		WorkflowID:    "wf-1",
		Status:        models.ExecutionStatusFailed,
		ActionsFailed: 1,
		ActionResults: []*models.ActionOutcome{{ActionID: "a1", Type: "log", Error: "boom"}},
	}

	require.NoError(t, bus.Publish(ctx, execution.WorkflowID, events.ExecutionEvent(execution)))

	select {
	case event := <-failed:
		assert.Equal(t, "ex-1", event.ExecutionID)
		require.Len(t, event.Errors, 1)
		assert.Equal(t, "boom", event.Errors[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("failed event was not delivered")
	}
}
