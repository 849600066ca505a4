// Package persistence provides the storage abstraction for workflows and their execution history.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. Counter fields are owned by ExecutionRepository.Complete:
// Save writes them on insert only.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores the execution audit trail.
type ExecutionRepository interface {
	// Create inserts a RUNNING execution.
	Create(ctx context.Context, execution *models.WorkflowExecution) error

	// Complete stores the sealed execution and applies delta to the workflow counters in one unit.
	// It fails with ErrExecutionSealed when the stored execution is no longer RUNNING.
	Complete(ctx context.Context, execution *models.WorkflowExecution, delta models.CounterDelta) error

	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)

	// List returns one page of a workflow's executions, newest first.
	List(ctx context.Context, query ExecutionQuery) (*ExecutionListResult, error)

	// ListSince returns a workflow's executions started at or after since.
	ListSince(ctx context.Context, workflowID string, since time.Time) ([]*models.WorkflowExecution, error)

	// ListRunningBefore returns executions of every workflow still RUNNING that started before cutoff,
	// oldest first.
	ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*models.WorkflowExecution, error)

	// DeleteBefore removes sealed executions created before cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ListWorkflowsOptions struct {
	Limit     int
	Offset    int
	Enabled   *bool
	SortBy    string // "created_at", "updated_at", "name" or "priority"
	SortOrder string // "asc" or "desc"
}

type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// SortableWorkflowFields is the allowlist for ListWorkflowsOptions.SortBy.
var SortableWorkflowFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"priority":   true,
}

type ExecutionQuery struct {
	WorkflowID string
	Status     models.ExecutionStatus // empty means any
	Limit      int
	Offset     int
}

type ExecutionListResult struct {
	Executions []*models.WorkflowExecution
	TotalCount int64
}
