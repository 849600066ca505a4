// Package dispatcher turns domain events from the event bus into EVENT workflow executions.
package dispatcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/trigger"
)

// Executor runs a loaded workflow. *services.Execution implements it.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) (*engine.Result, error)
}

type Dispatcher struct {
	workflows persistence.WorkflowRepository
	executor  Executor
	logger    *slog.Logger
}

// Summary reports what one domain event did.
type Summary struct {
	Matched  int
	Executed int
	Skipped  int
	Failed   int
}

func New(workflows persistence.WorkflowRepository, executor Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		workflows: workflows,
		executor:  executor,
		logger:    logger.With("module", "dispatcher"),
	}
}

// Register subscribes the dispatcher to domain events on the bus.
func (d *Dispatcher) Register(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.DomainEventType, d.HandleDomainEvent)
}

func (d *Dispatcher) HandleDomainEvent(ctx context.Context, event any) error {
	var domainEvent events.DomainEvent

	switch e := event.(type) {
	case *events.DomainEvent:
		domainEvent = *e
	case events.DomainEvent:
		domainEvent = e
	default:
		return fmt.Errorf("unexpected event %T", event)
	}

	_, err := d.Dispatch(ctx, domainEvent)

	return err
}

// Dispatch runs every enabled workflow whose triggers match the event, highest priority first.
// A failing workflow does not stop the others; only loading the workflows is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.DomainEvent) (Summary, error) {
	var summary Summary

	logger := d.logger.With("event", event.Event, "entity_type", event.EntityType, "event_id", event.ID)

	workflows, err := d.workflows.GetAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading workflows: %w", err)
	}

	execCtx := event.ExecutionContext()
	candidates := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Enabled && trigger.Matches(workflow.Triggers, execCtx) {
			candidates = append(candidates, workflow)
		}
	}

	slices.SortStableFunc(candidates, func(a, b *models.Workflow) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	summary.Matched = len(candidates)

	for _, workflow := range candidates {
		result, err := d.executor.ExecuteWorkflow(ctx, workflow, execCtx)

		switch {
		case errors.Is(err, services.ErrWorkflowDisabled), errors.Is(err, services.ErrExecutionInProgress):
			summary.Skipped++

			logger.InfoContext(ctx, "Workflow not started", "workflow_id", workflow.ID, "reason", err)
		case err != nil:
			summary.Failed++

			logger.ErrorContext(ctx, "Workflow dispatch failed", "workflow_id", workflow.ID, "error", err)
		case result.Skipped():
			summary.Skipped++
		default:
			summary.Executed++

			logger.InfoContext(ctx, "Workflow executed",
				"workflow_id", workflow.ID,
				"execution_id", result.ExecutionID,
				"status", result.Status,
			)
		}
	}

	logger.DebugContext(ctx, "Domain event dispatched",
		"matched", summary.Matched,
		"executed", summary.Executed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}
