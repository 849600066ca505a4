package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/stats"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Runner executes and explains workflows. *engine.Engine implements it.
type Runner interface {
	Execute(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) (*engine.Result, error)
	Test(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) *engine.TestResult
}

// StatsProvider computes execution statistics. *stats.Aggregator implements it.
type StatsProvider interface {
	Stats(ctx context.Context, workflowID string, days int) (*stats.Stats, error)
}

// SkipObserver is told about executions that were skipped before anything was recorded.
type SkipObserver interface {
	ObserveSkip(workflowID, reason string)
}

// Execution runs workflows on behalf of callers and reads their execution history.
type Execution struct {
	persistence persistence.Persistence
	runner      Runner
	stats       StatsProvider
	skips       SkipObserver
	logger      *slog.Logger
}

// NewExecution creates the execution service. skips may be nil.
func NewExecution(
	persistence persistence.Persistence,
	runner Runner,
	stats StatsProvider,
	skips SkipObserver,
	logger *slog.Logger,
) *Execution {
	return &Execution{
		persistence: persistence,
		runner:      runner,
		stats:       stats,
		skips:       skips,
		logger:      logger.With("module", "execution_service"),
	}
}

// ExecuteRequest is the caller-supplied part of an execution context.
type ExecuteRequest struct {
	TriggeredBy   models.TriggerType `json:"triggered_by,omitempty"`
	TriggerSource string             `json:"trigger_source,omitempty"`
	Event         string             `json:"event,omitempty"`
	EntityType    string             `json:"entity_type,omitempty"`
	Entity        map[string]any     `json:"entity,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	User          *models.Actor      `json:"user,omitempty"`
	Timestamp     time.Time          `json:"timestamp,omitzero"`
}

// ExecutionContext builds the engine context. triggered_by defaults to fallback and is upper-cased.
func (r ExecuteRequest) ExecutionContext(fallback models.TriggerType) (models.ExecutionContext, error) {
	triggeredBy := models.TriggerType(strings.ToUpper(string(r.TriggeredBy)))
	if triggeredBy == "" {
		triggeredBy = fallback
	}

	if !slices.Contains(models.TriggerTypes, triggeredBy) {
		return models.ExecutionContext{}, NewValidationError(
			"ExecutionContext",
			"INVALID_TRIGGERED_BY",
			fmt.Sprintf("invalid triggered_by '%s'", r.TriggeredBy),
			ErrInvalidTriggeredBy,
		)
	}

	return models.ExecutionContext{
		TriggeredBy:   triggeredBy,
		TriggerSource: r.TriggerSource,
		Event:         r.Event,
		EntityType:    r.EntityType,
		Entity:        r.Entity,
		Metadata:      r.Metadata,
		User:          r.User,
		Timestamp:     r.Timestamp,
	}, nil
}

// Execute runs a stored workflow. Unknown workflows, disabled workflows and executions already in
// flight are returned as errors and leave no record.
func (e *Execution) Execute(ctx context.Context, workflowID string, req ExecuteRequest) (*engine.Result, error) {
	execCtx, err := req.ExecutionContext(models.TriggerTypeManual)
	if err != nil {
		return nil, err
	}

	return e.ExecuteWithContext(ctx, workflowID, execCtx)
}

// ExecuteWithContext is Execute for callers that already built the context, such as the dispatcher.
func (e *Execution) ExecuteWithContext(
	ctx context.Context,
	workflowID string,
	execCtx models.ExecutionContext,
) (*engine.Result, error) {
	workflow, err := e.fetch(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, workflow, execCtx)
}

// ExecuteWorkflow runs an already loaded workflow through the same checks as Execute.
func (e *Execution) ExecuteWorkflow(
	ctx context.Context,
	workflow *models.Workflow,
	execCtx models.ExecutionContext,
) (*engine.Result, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	return e.run(ctx, workflow, execCtx)
}

func (e *Execution) run(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) (*engine.Result, error) {
	if !workflow.Enabled && execCtx.TriggeredBy != models.TriggerTypeTest {
		return nil, newConflictError(
			"Execute",
			"WORKFLOW_DISABLED",
			fmt.Sprintf("workflow %s is disabled", workflow.ID),
			ErrWorkflowDisabled,
		)
	}

	result, err := e.runner.Execute(ctx, workflow, execCtx)
	if err != nil {
		if errors.Is(err, ErrExecutionInProgress) {
			return nil, newConflictError("Execute", "EXECUTION_IN_PROGRESS", err.Error(), err)
		}

		e.logger.ErrorContext(ctx, "Workflow execution failed", "workflow_id", workflow.ID, "error", err)

		return nil, fmt.Errorf("failed to execute workflow: %w", err)
	}

	if result.Skipped() && e.skips != nil {
		e.skips.ObserveSkip(workflow.ID, result.Reason)
	}

	return result, nil
}

// Test explains what Execute would do for the context. It never writes and works on disabled workflows.
func (e *Execution) Test(ctx context.Context, workflowID string, req ExecuteRequest) (*engine.TestResult, error) {
	execCtx, err := req.ExecutionContext(models.TriggerTypeTest)
	if err != nil {
		return nil, err
	}

	workflow, err := e.fetch(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return e.runner.Test(ctx, workflow, execCtx), nil
}

// Stats aggregates the workflow's executions over the last days. days is clamped to [1, 365], 0 means 30.
func (e *Execution) Stats(ctx context.Context, workflowID string, days int) (*stats.Stats, error) {
	_, err := e.fetch(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	result, err := e.stats.Stats(ctx, workflowID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	return result, nil
}

// HistoryRequest selects one page of a workflow's executions.
type HistoryRequest struct {
	Page   int
	Limit  int
	Status string
}

// Pagination describes the page returned by History.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// HistoryResponse is one page of executions, newest first.
type HistoryResponse struct {
	Executions []*models.WorkflowExecution `json:"executions"`
	Pagination Pagination                  `json:"pagination"`
}

// History lists a workflow's executions. page defaults to 1, limit to 20 (at most 100).
func (e *Execution) History(ctx context.Context, workflowID string, req HistoryRequest) (*HistoryResponse, error) {
	err := normalizeHistoryRequest(&req)
	if err != nil {
		return nil, err
	}

	_, err = e.fetch(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	result, err := e.persistence.ExecutionRepository().List(ctx, persistence.ExecutionQuery{
		WorkflowID: workflowID,
		Status:     models.ExecutionStatus(req.Status),
		Limit:      req.Limit,
		Offset:     (req.Page - 1) * req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	limit := int64(req.Limit)

	return &HistoryResponse{
		Executions: result.Executions,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      result.TotalCount,
			TotalPages: (result.TotalCount + limit - 1) / limit,
		},
	}, nil
}

// FetchExecution retrieves one execution record.
func (e *Execution) FetchExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

func normalizeHistoryRequest(req *HistoryRequest) error {
	if req.Page == 0 {
		req.Page = 1
	}

	if req.Page < 0 {
		return NewValidationError("History", "INVALID_PAGE", "page must be at least 1", ErrInvalidRequest)
	}

	switch {
	case req.Limit == 0:
		req.Limit = defaultPageSize
	case req.Limit < 0:
		return NewValidationError("History", "INVALID_LIMIT", "limit must be positive", ErrInvalidRequest)
	case req.Limit > maxPageSize:
		req.Limit = maxPageSize
	}

	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))

	if req.Status != "" && !slices.Contains(models.RecordedStatuses, models.ExecutionStatus(req.Status)) {
		return NewValidationError(
			"History",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s', allowed: RUNNING, SUCCESS, FAILED, PARTIAL", req.Status),
			ErrInvalidStatus,
		)
	}

	return nil
}

func (e *Execution) fetch(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}
