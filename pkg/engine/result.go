package engine

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/trigger"
)

// Result summarizes an Execute call. Skipped results carry a Reason and no execution id.
type Result struct {
	ExecutionID     string                 `json:"execution_id,omitempty"`
	WorkflowID      string                 `json:"workflow_id"`
	Status          models.ExecutionStatus `json:"status"`
	Reason          string                 `json:"reason,omitempty"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	DurationMs      int64                  `json:"duration"`
	ActionsExecuted int                    `json:"actions_executed"`
	ActionsSuccess  int                    `json:"actions_success"`
	ActionsFailed   int                    `json:"actions_failed"`
	DryRun          *TestResult            `json:"dry_run,omitempty"`

	Execution *models.WorkflowExecution `json:"-"`
}

// Skipped reports whether the run did not execute any action.
func (r *Result) Skipped() bool {
	return r.Status == models.ExecutionStatusSkipped
}

func skipped(workflow *models.Workflow, reason string) *Result {
	return &Result{
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusSkipped,
		Reason:     reason,
	}
}

func resultFor(execution *models.WorkflowExecution) *Result {
	startedAt := execution.StartedAt

	return &Result{
		ExecutionID:     execution.ID,
		WorkflowID:      execution.WorkflowID,
		Status:          execution.Status,
		StartedAt:       &startedAt,
		CompletedAt:     execution.CompletedAt,
		DurationMs:      execution.DurationMs,
		ActionsExecuted: execution.ActionsExecuted,
		ActionsSuccess:  execution.ActionsSuccess,
		ActionsFailed:   execution.ActionsFailed,
		Execution:       execution,
	}
}

// TestResult explains a dry run.
type TestResult struct {
	WorkflowID       string          `json:"workflow_id"`
	WouldExecute     bool            `json:"would_execute"`
	TriggerMatched   bool            `json:"trigger_matched"`
	ConditionsPassed bool            `json:"conditions_passed"`
	PerTrigger       []trigger.Match `json:"per_trigger"`
	PerAction        []ActionPlan    `json:"per_action"`
}

// ActionPlan is one action as it would run in a dry run.
type ActionPlan struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Order       int    `json:"order"`
	Registered  bool   `json:"registered"`
	WillExecute bool   `json:"will_execute"`
}

// Hook is notified after an execution has been recorded. Hook errors are logged and never change the result.
type Hook interface {
	OnExecutionCompleted(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) error

func (f HookFunc) OnExecutionCompleted(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution) error {
	return f(ctx, workflow, execution)
}
