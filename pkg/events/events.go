// Package events defines the messages exchanged over the event bus: inbound domain events and
// outbound execution lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Event is any message that can travel on the event bus.
type Event interface {
	GetType() EventType
}

// Kafka topics.
const (
	Topic       = "flowrun.events"        // execution lifecycle events
	DomainTopic = "flowrun.domain.events" // domain events consumed by the dispatcher
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// DomainEventType carries an application event that may trigger EVENT workflows.
	DomainEventType EventType = "domain.event"

	// EntityFieldSetEvent asks the owner of an entity to update one field.
	EntityFieldSetEvent EventType = "entity.field.set"

	// Workflow execution lifecycle events.
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case DomainEventType, EntityFieldSetEvent:
		return DomainTopic
	default:
		return Topic
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// DomainEvent is an application event, e.g. "invoice.created" on an invoice entity.
type DomainEvent struct {
	BaseEvent

	Event      string         `json:"event"`
	EntityType string         `json:"entity_type"`
	Entity     map[string]any `json:"entity,omitempty"`
	User       *models.Actor  `json:"user,omitempty"`
	Source     string         `json:"source,omitempty"`
}

func (d DomainEvent) GetType() EventType {
	return DomainEventType
}

// ExecutionContext builds the context an EVENT-triggered execution runs with.
func (d DomainEvent) ExecutionContext() models.ExecutionContext {
	source := d.Source
	if source == "" {
		source = "event_bus"
	}

	return models.ExecutionContext{
		TriggeredBy:   models.TriggerTypeEvent,
		TriggerSource: source,
		Event:         d.Event,
		EntityType:    d.EntityType,
		Entity:        d.Entity,
		User:          d.User,
		Timestamp:     d.Timestamp,
		Metadata:      d.Metadata,
	}
}

type EntityFieldSet struct {
	BaseEvent

	ExecutionID string `json:"execution_id,omitempty"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Field       string `json:"field"`
	Value       any    `json:"value"`
}

func (e EntityFieldSet) GetType() EventType {
	return EntityFieldSetEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID     string                 `json:"execution_id"`
	Status          models.ExecutionStatus `json:"status"`
	TriggeredBy     models.TriggerType     `json:"triggered_by"`
	DurationMs      int64                  `json:"duration_ms"`
	ActionsExecuted int                    `json:"actions_executed"`
	ActionsSuccess  int                    `json:"actions_success"`
	ActionsFailed   int                    `json:"actions_failed"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID   string                 `json:"execution_id"`
	Status        models.ExecutionStatus `json:"status"`
	TriggeredBy   models.TriggerType     `json:"triggered_by"`
	DurationMs    int64                  `json:"duration_ms"`
	ActionsFailed int                    `json:"actions_failed"`
	Errors        []WorkflowError        `json:"errors"`
}

// WorkflowError reports one failed action.
type WorkflowError struct {
	ActionID string `json:"action_id"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

// ExecutionEvent builds the lifecycle event for a sealed execution: completed for SUCCESS,
// failed for FAILED and PARTIAL.
func ExecutionEvent(execution *models.WorkflowExecution) Event {
	base := NewBaseEvent(WorkflowExecutionCompletedEvent, execution.WorkflowID)

	if execution.Status == models.ExecutionStatusSuccess {
		return WorkflowExecutionCompleted{
			BaseEvent:       base,
			ExecutionID:     execution.ID,
			Status:          execution.Status,
			TriggeredBy:     execution.TriggeredBy,
			DurationMs:      execution.DurationMs,
			ActionsExecuted: execution.ActionsExecuted,
			ActionsSuccess:  execution.ActionsSuccess,
			ActionsFailed:   execution.ActionsFailed,
		}
	}

	base.Type = WorkflowExecutionFailedEvent

	failed := WorkflowExecutionFailed{
		BaseEvent:     base,
		ExecutionID:   execution.ID,
		Status:        execution.Status,
		TriggeredBy:   execution.TriggeredBy,
		DurationMs:    execution.DurationMs,
		ActionsFailed: execution.ActionsFailed,
		Errors:        []WorkflowError{},
	}

	for _, outcome := range execution.ActionResults {
		if !outcome.Success {
			failed.Errors = append(failed.Errors, WorkflowError{
				ActionID: outcome.ActionID,
				Type:     outcome.Type,
				Message:  outcome.Error,
			})
		}
	}

	return failed
}
