package file

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// WorkflowRepository stores one JSON document per workflow under <root>/workflows.
type WorkflowRepository struct {
	root   string
	mu     *sync.Mutex
	logger *slog.Logger
}

// NewWorkflowRepository creates a standalone workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root, mu: &sync.Mutex{}, logger: defaultLogger()}
}

func (wr *WorkflowRepository) path(id string) string {
	return filepath.Join(wr.root, "workflows", filepath.Base(id)+".json")
}

// GetAll returns every stored workflow ordered by creation time. Documents that cannot be decoded
// are logged and left out.
func (wr *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.loadAll(ctx)
}

func (wr *WorkflowRepository) loadAll(ctx context.Context) ([]*models.Workflow, error) {
	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(wr.root, "workflows")), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := wr.load(strings.TrimSuffix(file, ".json"))
		if isNotExist(err) {
			continue
		}

		if err != nil {
			wr.logger.ErrorContext(ctx, "Skipping unreadable workflow", "file", file, "error", err)

			continue
		}

		workflows = append(workflows, workflow)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	if !persistence.SortableWorkflowFields[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	all, err := wr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if opts.Enabled != nil && workflow.Enabled != *opts.Enabled {
			continue
		}

		filtered = append(filtered, workflow)
	}

	sortWorkflows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))

	if opts.Offset >= len(filtered) {
		return &persistence.WorkflowListResult{
			Workflows:  make([]*models.Workflow, 0),
			TotalCount: totalCount,
		}, nil
	}

	endIdx := min(opts.Offset+opts.Limit, len(filtered))

	return &persistence.WorkflowListResult{
		Workflows:   filtered[opts.Offset:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	sort.SliceStable(workflows, func(i, j int) bool {
		a, b := workflows[i], workflows[j]
		if sortOrder == "desc" {
			a, b = b, a
		}

		switch sortBy {
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "name":
			return a.Name < b.Name
		case "priority":
			return a.Priority < b.Priority
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

// GetByID retrieves a workflow by its ID.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.load(workflowID)
	if isNotExist(err) {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) load(workflowID string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(wr.path(workflowID), &workflow)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// Save writes the workflow definition. Counters of an existing workflow are kept as stored.
// Timestamps set by the caller are stored as given.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = workflow.CreatedAt
	}

	existing, err := wr.load(workflow.ID)
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to read workflow %s: %w", workflow.ID, err)
	}

	if existing != nil {
		workflow.ExecutionCount = existing.ExecutionCount
		workflow.SuccessCount = existing.SuccessCount
		workflow.FailureCount = existing.FailureCount
		workflow.LastExecutionAt = existing.LastExecutionAt
	}

	err = writeJSON(wr.path(workflow.ID), workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow and its execution history.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(wr.path(id))
	if isNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	err = os.RemoveAll(filepath.Join(wr.root, "executions", filepath.Base(id)))
	if err != nil {
		return fmt.Errorf("failed to delete executions of workflow %s: %w", id, err)
	}

	return nil
}

// applyDelta adds delta to the stored counters. Callers hold mu.
func (wr *WorkflowRepository) applyDelta(workflowID string, delta models.CounterDelta) error {
	workflow, err := wr.load(workflowID)
	if isNotExist(err) {
		return persistence.NewWorkflowError("Complete", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return err
	}

	workflow.Apply(delta)

	return writeJSON(wr.path(workflowID), workflow)
}
