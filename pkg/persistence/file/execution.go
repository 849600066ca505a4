package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// ExecutionRepository stores executions under <root>/executions/<workflow_id>/<execution_id>.json.
type ExecutionRepository struct {
	root string
	mu   *sync.Mutex
}

func (er *ExecutionRepository) dir(workflowID string) string {
	return filepath.Join(er.root, "executions", filepath.Base(workflowID))
}

func (er *ExecutionRepository) path(workflowID, executionID string) string {
	return filepath.Join(er.dir(workflowID), filepath.Base(executionID)+".json")
}

func (er *ExecutionRepository) workflows() *WorkflowRepository {
	return &WorkflowRepository{root: er.root, mu: er.mu, logger: defaultLogger()}
}

// Create inserts a RUNNING execution. The workflow must exist.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	_, err := os.Stat(er.workflows().path(execution.WorkflowID))
	if isNotExist(err) {
		return persistence.NewWorkflowError("CreateExecution", execution.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	err = writeJSON(er.path(execution.WorkflowID, execution.ID), execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// Complete stores the sealed execution and applies delta to the workflow counters while holding the store lock.
// When the counters cannot be written the execution is put back as it was.
func (er *ExecutionRepository) Complete(_ context.Context, execution *models.WorkflowExecution, delta models.CounterDelta) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	var stored models.WorkflowExecution

	err := readJSON(er.path(execution.WorkflowID, execution.ID), &stored)
	if isNotExist(err) {
		return persistence.NewExecutionError("Complete", execution.ID, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return persistence.NewExecutionError("Complete", execution.ID, err)
	}

	if stored.Status != models.ExecutionStatusRunning {
		return persistence.NewExecutionError("Complete", execution.ID, persistence.ErrExecutionSealed)
	}

	path := er.path(execution.WorkflowID, execution.ID)

	err = writeJSON(path, execution)
	if err != nil {
		return persistence.NewExecutionError("Complete", execution.ID, err)
	}

	err = er.workflows().applyDelta(execution.WorkflowID, delta)
	if err != nil {
		restoreErr := writeJSON(path, &stored)
		if restoreErr != nil {
			return errors.Join(err, persistence.NewExecutionError("Complete", execution.ID, restoreErr))
		}

		return err
	}

	return nil
}

// GetByID finds an execution in any workflow directory.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(er.root, "executions", "*", filepath.Base(id)+".json"))
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if len(matches) == 0 {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	var execution models.WorkflowExecution

	err = readJSON(matches[0], &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

// List returns one page of a workflow's executions, newest first.
func (er *ExecutionRepository) List(_ context.Context, query persistence.ExecutionQuery) (*persistence.ExecutionListResult, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	all, err := er.loadWorkflow(query.WorkflowID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowExecution, 0, len(all))

	for _, execution := range all {
		if query.Status != "" && execution.Status != query.Status {
			continue
		}

		filtered = append(filtered, execution)
	}

	sortNewestFirst(filtered)

	result := &persistence.ExecutionListResult{
		Executions: make([]*models.WorkflowExecution, 0),
		TotalCount: int64(len(filtered)),
	}

	if query.Offset >= len(filtered) {
		return result, nil
	}

	end := len(filtered)
	if query.Limit > 0 {
		end = min(query.Offset+query.Limit, len(filtered))
	}

	result.Executions = filtered[query.Offset:end]

	return result, nil
}

// ListSince returns a workflow's executions started at or after since, oldest first.
func (er *ExecutionRepository) ListSince(_ context.Context, workflowID string, since time.Time) ([]*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	all, err := er.loadWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0, len(all))

	for _, execution := range all {
		if !execution.StartedAt.Before(since) {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}

// ListRunningBefore returns RUNNING executions of every workflow started before cutoff, oldest first.
func (er *ExecutionRepository) ListRunningBefore(_ context.Context, cutoff time.Time) ([]*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(er.root, "executions", "*", "*.json"))
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, file := range files {
		var execution models.WorkflowExecution

		err := readJSON(file, &execution)
		if err != nil {
			return nil, fmt.Errorf("failed to read execution %s: %w", file, err)
		}

		if execution.Status == models.ExecutionStatusRunning && execution.StartedAt.Before(cutoff) {
			executions = append(executions, &execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}

// DeleteBefore removes sealed executions created before cutoff.
func (er *ExecutionRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(er.root, "executions", "*", "*.json"))
	if err != nil {
		return 0, err
	}

	var deleted int64

	for _, file := range files {
		var execution models.WorkflowExecution

		err := readJSON(file, &execution)
		if err != nil {
			return deleted, fmt.Errorf("failed to read execution %s: %w", file, err)
		}

		if !execution.Status.IsTerminal() || !execution.CreatedAt.Before(cutoff) {
			continue
		}

		err = os.Remove(file)
		if err != nil && !isNotExist(err) {
			return deleted, fmt.Errorf("failed to delete execution %s: %w", execution.ID, err)
		}

		deleted++
	}

	return deleted, nil
}

func (er *ExecutionRepository) loadWorkflow(workflowID string) ([]*models.WorkflowExecution, error) {
	entries, err := os.ReadDir(er.dir(workflowID))
	if isNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list executions of workflow %s: %w", workflowID, err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var execution models.WorkflowExecution

		err := readJSON(filepath.Join(er.dir(workflowID), entry.Name()), &execution)
		if err != nil {
			return nil, fmt.Errorf("failed to read execution %s: %w", entry.Name(), err)
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}

func sortNewestFirst(executions []*models.WorkflowExecution) {
	sort.SliceStable(executions, func(i, j int) bool {
		if executions[i].CreatedAt.Equal(executions[j].CreatedAt) {
			return executions[i].StartedAt.After(executions[j].StartedAt)
		}

		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})
}
