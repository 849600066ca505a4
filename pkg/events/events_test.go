package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, DomainTopic, TopicFor(DomainEventType))
	assert.Equal(t, DomainTopic, TopicFor(EntityFieldSetEvent))
	assert.Equal(t, Topic, TopicFor(WorkflowExecutionCompletedEvent))
	assert.Equal(t, Topic, TopicFor(WorkflowExecutionFailedEvent))
}

func TestDomainEvent_ExecutionContext(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	event := DomainEvent{
		BaseEvent:  BaseEvent{ID: "ev-1", Type: DomainEventType, Timestamp: at, Metadata: map[string]any{"k": "v"}},
		Event:      "invoice.created",
		EntityType: "invoice",
		Entity:     map[string]any{"id": "inv-1"},
		User:       &models.Actor{ID: "u-1"},
	}

	execCtx := event.ExecutionContext()

	assert.Equal(t, models.TriggerTypeEvent, execCtx.TriggeredBy)
	assert.Equal(t, "event_bus", execCtx.TriggerSource)
	assert.Equal(t, "invoice.created", execCtx.Event)
	assert.Equal(t, "invoice", execCtx.EntityType)
	assert.Equal(t, at, execCtx.Timestamp)
	assert.Equal(t, "v", execCtx.Metadata["k"])

	event.Source = "billing"
	assert.Equal(t, "billing", event.ExecutionContext().TriggerSource)
}

func TestDomainEvent_JSONSerialization(t *testing.T) {
	original := DomainEvent{
		BaseEvent:  NewBaseEvent(DomainEventType, ""),
		Event:      "order.paid",
		EntityType: "order",
		Entity:     map[string]any{"id": "o-1", "total": 99.5},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"domain.event"`)
	assert.Contains(t, string(data), `"event":"order.paid"`)

	var decoded DomainEvent

	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, original.Event, decoded.Event)
	assert.Equal(t, original.Entity, decoded.Entity)
	assert.Equal(t, DomainEventType, decoded.GetType())
}

func TestExecutionEvent(t *testing.T) {
	execution := &models.WorkflowExecution{
		ID:              "ex-1",
		WorkflowID:      "wf-1",
		Status:          models.ExecutionStatusSuccess,
		TriggeredBy:     models.TriggerTypeManual,
		DurationMs:      12,
		ActionsExecuted: 1,
		ActionsSuccess:  1,
	}

	completed, ok := ExecutionEvent(execution).(WorkflowExecutionCompleted)
	require.True(t, ok)
	assert.Equal(t, WorkflowExecutionCompletedEvent, completed.Type)
	assert.Equal(t, "wf-1", completed.WorkflowID)
	assert.Equal(t, int64(12), completed.DurationMs)

	execution.Status = models.ExecutionStatusPartial
	execution.ActionResults = []*models.ActionOutcome{
		{ActionID: "a1", Type: "log", Success: true},
		{ActionID: "a2", Type: "http_request", Success: false, Error: "status 500"},
	}

	failed, ok := ExecutionEvent(execution).(WorkflowExecutionFailed)
	require.True(t, ok)
	assert.Equal(t, WorkflowExecutionFailedEvent, failed.GetType())
	assert.Equal(t, WorkflowExecutionFailedEvent, failed.Type)
	assert.Equal(t, []WorkflowError{{ActionID: "a2", Type: "http_request", Message: "status 500"}}, failed.Errors)
}
