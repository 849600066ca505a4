package models

import "time"

// ExecutionStatus is the state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
	ExecutionStatusPartial ExecutionStatus = "PARTIAL"

	// ExecutionStatusSkipped is reported to callers only; skipped runs are never recorded.
	ExecutionStatusSkipped ExecutionStatus = "SKIPPED"
)

// RecordedStatuses lists statuses that can appear on a stored execution.
var RecordedStatuses = []ExecutionStatus{
	ExecutionStatusRunning,
	ExecutionStatusSuccess,
	ExecutionStatusFailed,
	ExecutionStatusPartial,
}

// IsTerminal reports whether the status seals an execution.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusPartial
}

// TerminalStatus derives the final status from action counts.
func TerminalStatus(succeeded, failed int) ExecutionStatus {
	switch {
	case failed == 0:
		return ExecutionStatusSuccess
	case succeeded == 0:
		return ExecutionStatusFailed
	default:
		return ExecutionStatusPartial
	}
}

// WorkflowExecution is the audit record of one run. It is created RUNNING and sealed once.
type WorkflowExecution struct {
	ID              string           `json:"id"`
	WorkflowID      string           `json:"workflow_id"`
	WorkflowVersion int              `json:"workflow_version"`
	Status          ExecutionStatus  `json:"status"`
	TriggeredBy     TriggerType      `json:"triggered_by"`
	TriggerSource   string           `json:"trigger_source,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	DurationMs      int64            `json:"duration_ms"`
	ActionsExecuted int              `json:"actions_executed"`
	ActionsSuccess  int              `json:"actions_success"`
	ActionsFailed   int              `json:"actions_failed"`
	RetryCount      int              `json:"retry_count"`
	ActionResults   []*ActionOutcome `json:"action_results,omitempty"`
	ContextSummary  map[string]any   `json:"context_summary,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Seal moves a running execution to its terminal state. It returns false if already sealed.
func (e *WorkflowExecution) Seal(completedAt time.Time) bool {
	if e.Status.IsTerminal() {
		return false
	}

	e.Status = TerminalStatus(e.ActionsSuccess, e.ActionsFailed)
	e.CompletedAt = &completedAt
	e.DurationMs = completedAt.Sub(e.StartedAt).Milliseconds()

	return true
}

// Abandon seals a running execution as FAILED whatever its action counts. It is used for runs whose
// process stopped before they could be sealed. It returns false if already sealed.
func (e *WorkflowExecution) Abandon(completedAt time.Time) bool {
	if e.Status.IsTerminal() {
		return false
	}

	e.Status = ExecutionStatusFailed
	e.CompletedAt = &completedAt
	e.DurationMs = completedAt.Sub(e.StartedAt).Milliseconds()

	return true
}

// Record adds one action outcome to the execution counters.
func (e *WorkflowExecution) Record(outcome *ActionOutcome) {
	e.ActionResults = append(e.ActionResults, outcome)
	e.ActionsExecuted++

	if outcome.Success {
		e.ActionsSuccess++
	} else {
		e.ActionsFailed++
	}

	if outcome.Attempts > 1 {
		e.RetryCount += outcome.Attempts - 1
	}
}
