// Package recorder persists workflow executions and keeps workflow counters in step with them.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// ErrAlreadySealed is returned by Finish for an execution that already reached a terminal status.
var ErrAlreadySealed = errors.New("execution already sealed")

type Recorder struct {
	executions persistence.ExecutionRepository
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a recorder. A nil clock means time.Now in UTC.
func New(executions persistence.ExecutionRepository, logger *slog.Logger, clock func() time.Time) *Recorder {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Recorder{
		executions: executions,
		logger:     logger.With("module", "execution_recorder"),
		now:        clock,
	}
}

// Begin stores the execution in RUNNING state before any action runs.
func (r *Recorder) Begin(ctx context.Context, execution *models.WorkflowExecution) error {
	execution.Status = models.ExecutionStatusRunning
	execution.CreatedAt = execution.StartedAt

	err := r.executions.Create(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to record execution start: %w", err)
	}

	r.logger.DebugContext(ctx, "Execution started",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
	)

	return nil
}

// Abandon seals a stale RUNNING execution as FAILED and counts it as a failure.
func (r *Recorder) Abandon(ctx context.Context, execution *models.WorkflowExecution) error {
	if !execution.Abandon(r.now()) {
		return fmt.Errorf("%w: %s", ErrAlreadySealed, execution.ID)
	}

	err := r.executions.Complete(ctx, execution, models.DeltaFor(execution.Status, execution.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to record abandoned execution: %w", err)
	}

	r.logger.WarnContext(ctx, "Execution abandoned",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"started_at", execution.StartedAt,
	)

	return nil
}

// Finish seals the execution and stores it together with the workflow counter delta.
func (r *Recorder) Finish(ctx context.Context, execution *models.WorkflowExecution) error {
	if !execution.Seal(r.now()) {
		return fmt.Errorf("%w: %s", ErrAlreadySealed, execution.ID)
	}

	delta := models.DeltaFor(execution.Status, execution.StartedAt)

	err := r.executions.Complete(ctx, execution, delta)
	if err != nil {
		return fmt.Errorf("failed to record execution completion: %w", err)
	}

	r.logger.InfoContext(ctx, "Execution recorded",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"status", execution.Status,
		"duration_ms", execution.DurationMs,
	)

	return nil
}
