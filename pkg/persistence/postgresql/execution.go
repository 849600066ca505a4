package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/lib/pq"
)

const foreignKeyViolation pq.ErrorCode = "23503"

const executionColumns = `
			id
		  , workflow_id
		  , workflow_version
		  , status
		  , triggered_by
		  , trigger_source
		  , started_at
		  , completed_at
		  , duration_ms
		  , actions_executed
		  , actions_success
		  , actions_failed
		  , retry_count
		  , action_results
		  , context_summary
		  , created_at`

// ExecutionRepository handles the execution audit trail.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a RUNNING execution.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	resultsJSON, summaryJSON, err := marshalExecution(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, workflow_version, status, triggered_by, trigger_source,
			started_at, completed_at, duration_ms, actions_executed, actions_success, actions_failed, retry_count,
			action_results, context_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.WorkflowVersion,
		execution.Status,
		execution.TriggeredBy,
		execution.TriggerSource,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationMs,
		execution.ActionsExecuted,
		execution.ActionsSuccess,
		execution.ActionsFailed,
		execution.RetryCount,
		resultsJSON,
		summaryJSON,
		execution.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return persistence.NewWorkflowError("CreateExecution", execution.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

// Complete seals the stored row and bumps the workflow counters in one transaction.
// The status guard on the UPDATE makes a second Complete for the same execution a no-op that reports ErrExecutionSealed.
func (r *ExecutionRepository) Complete(ctx context.Context, execution *models.WorkflowExecution, delta models.CounterDelta) (err error) {
	resultsJSON, summaryJSON, err := marshalExecution(execution)
	if err != nil {
		return persistence.NewExecutionError("Complete", execution.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_executions SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			actions_executed = $5,
			actions_success = $6,
			actions_failed = $7,
			retry_count = $8,
			action_results = $9,
			context_summary = $10
		WHERE id = $1 AND status = 'RUNNING'
	`,
		execution.ID,
		execution.Status,
		execution.CompletedAt,
		execution.DurationMs,
		execution.ActionsExecuted,
		execution.ActionsSuccess,
		execution.ActionsFailed,
		execution.RetryCount,
		resultsJSON,
		summaryJSON,
	)
	if err != nil {
		return persistence.NewExecutionError("Complete", execution.ID, err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Complete", execution.ID, err)
	}

	if updated == 0 {
		err = r.missingOrSealed(ctx, tx, execution.ID)

		return err
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE workflows SET
			execution_count = execution_count + $2,
			success_count = success_count + $3,
			failure_count = failure_count + $4,
			last_execution_at = GREATEST(COALESCE(last_execution_at, $5), $5)
		WHERE id = $1
	`, execution.WorkflowID, delta.Executions, delta.Successes, delta.Failures, delta.At)
	if err != nil {
		return fmt.Errorf("failed to update workflow counters: %w", err)
	}

	updated, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if updated == 0 {
		err = persistence.NewWorkflowError("Complete", execution.WorkflowID, persistence.ErrWorkflowNotFound)

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) missingOrSealed(ctx context.Context, tx *sql.Tx, id string) error {
	var status string

	err := tx.QueryRowContext(ctx, `SELECT status FROM workflow_executions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewExecutionError("Complete", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return persistence.NewExecutionError("Complete", id, err)
	}

	return persistence.NewExecutionError("Complete", id, persistence.ErrExecutionSealed)
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// List returns one page of a workflow's executions, newest first.
func (r *ExecutionRepository) List(ctx context.Context, query persistence.ExecutionQuery) (*persistence.ExecutionListResult, error) {
	where := ` WHERE workflow_id = $1`
	args := []any{query.WorkflowID}

	if query.Status != "" {
		where += ` AND status = $2`

		args = append(args, query.Status)
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_executions`+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	limit := any(nil)
	if query.Limit > 0 {
		limit = query.Limit
	}

	pageQuery := `SELECT ` + executionColumns + ` FROM workflow_executions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, started_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	executions, err := r.query(ctx, pageQuery, append(args, limit, query.Offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.ExecutionListResult{Executions: executions, TotalCount: totalCount}, nil
}

// ListSince returns a workflow's executions started at or after since, oldest first.
func (r *ExecutionRepository) ListSince(ctx context.Context, workflowID string, since time.Time) ([]*models.WorkflowExecution, error) {
	return r.query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE workflow_id = $1 AND started_at >= $2
		ORDER BY started_at ASC`, workflowID, since)
}

func (r *ExecutionRepository) ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*models.WorkflowExecution, error) {
	return r.query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE status = 'RUNNING' AND started_at < $1
		ORDER BY started_at ASC`, cutoff)
}

// DeleteBefore removes sealed executions created before cutoff.
func (r *ExecutionRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_executions WHERE created_at < $1 AND status <> 'RUNNING'`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func marshalExecution(execution *models.WorkflowExecution) ([]byte, []byte, error) {
	results := execution.ActionResults
	if results == nil {
		results = []*models.ActionOutcome{}
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal action results: %w", err)
	}

	summary := execution.ContextSummary
	if summary == nil {
		summary = map[string]any{}
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal context summary: %w", err)
	}

	return resultsJSON, summaryJSON, nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		completedAt sql.NullTime
		resultsJSON []byte
		summaryJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.WorkflowVersion,
		&execution.Status,
		&execution.TriggeredBy,
		&execution.TriggerSource,
		&execution.StartedAt,
		&completedAt,
		&execution.DurationMs,
		&execution.ActionsExecuted,
		&execution.ActionsSuccess,
		&execution.ActionsFailed,
		&execution.RetryCount,
		&resultsJSON,
		&summaryJSON,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		at := completedAt.Time.UTC()
		execution.CompletedAt = &at
	}

	execution.StartedAt = execution.StartedAt.UTC()
	execution.CreatedAt = execution.CreatedAt.UTC()

	err = json.Unmarshal(resultsJSON, &execution.ActionResults)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal action results: %w", err)
	}

	err = json.Unmarshal(summaryJSON, &execution.ContextSummary)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal context summary: %w", err)
	}

	return &execution, nil
}
