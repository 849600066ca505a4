package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// AutoDisablePolicy is a completion hook that disables a workflow after Threshold consecutive
// non-SUCCESS executions. A zero Threshold disables the policy.
type AutoDisablePolicy struct {
	Threshold   int
	Persistence persistence.Persistence
	Logger      *slog.Logger
}

func (p *AutoDisablePolicy) OnExecutionCompleted(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
) error {
	if p.Threshold <= 0 || execution.Status == models.ExecutionStatusSuccess {
		return nil
	}

	recent, err := p.Persistence.ExecutionRepository().List(ctx, persistence.ExecutionQuery{
		WorkflowID: workflow.ID,
		Limit:      p.Threshold,
	})
	if err != nil {
		return fmt.Errorf("loading recent executions: %w", err)
	}

	if len(recent.Executions) < p.Threshold {
		return nil
	}

	for _, e := range recent.Executions {
		if e.Status != models.ExecutionStatusFailed && e.Status != models.ExecutionStatusPartial {
			return nil
		}
	}

	stored, err := p.Persistence.WorkflowRepository().GetByID(ctx, workflow.ID)
	if err != nil {
		return err
	}

	if !stored.Enabled {
		return nil
	}

	stored.Enabled = false
	stored.UpdatedAt = time.Now().UTC()

	err = p.Persistence.WorkflowRepository().Save(ctx, stored)
	if err != nil {
		return fmt.Errorf("disabling workflow: %w", err)
	}

	if p.Logger != nil {
		p.Logger.WarnContext(ctx, "Workflow disabled after consecutive failures",
			"workflow_id", workflow.ID,
			"threshold", p.Threshold,
		)
	}

	return nil
}
