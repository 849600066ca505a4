package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
)

const workflowColumns = `
			id
		  , name
		  , description
		  , enabled
		  , version
		  , triggers
		  , conditions
		  , actions
		  , priority
		  , created_by
		  , execution_count
		  , success_count
		  , failure_count
		  , last_execution_at
		  , created_at
		  , updated_at`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns all workflows from the database.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	return r.scanWorkflows(ctx, rows)
}

// ListWorkflows returns paginated and filtered workflows.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	query, args, err := r.buildListQuery(opts)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows, err := r.scanWorkflows(ctx, rows)
	if err != nil {
		return nil, err
	}

	countQuery, countArgs := r.buildCountQuery(opts)

	var totalCount int64

	err = r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

func (r *WorkflowRepository) buildListQuery(opts persistence.ListWorkflowsOptions) (string, []any, error) {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}

	if !persistence.SortableWorkflowFields[sortBy] {
		return "", nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, sortBy)
	}

	sortOrder := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	where, args := r.buildFilter(opts)

	query := `SELECT ` + workflowColumns + ` FROM workflows` + where +
		fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d", sortBy, sortOrder, len(args)+1, len(args)+2)

	return query, append(args, opts.Limit, opts.Offset), nil
}

func (r *WorkflowRepository) buildCountQuery(opts persistence.ListWorkflowsOptions) (string, []any) {
	where, args := r.buildFilter(opts)

	return `SELECT COUNT(*) FROM workflows` + where, args
}

func (r *WorkflowRepository) buildFilter(opts persistence.ListWorkflowsOptions) (string, []any) {
	if opts.Enabled == nil {
		return "", nil
	}

	return " WHERE enabled = $1", []any{*opts.Enabled}
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	workflow, err := r.scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts the workflow definition. Counter columns are written on insert only; caller timestamps are kept.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = workflow.CreatedAt
	}

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	triggersJSON, err := json.Marshal(workflow.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	var conditionsJSON []byte
	if workflow.Conditions != nil && workflow.Conditions.Root != nil {
		conditionsJSON, err = json.Marshal(workflow.Conditions)
		if err != nil {
			return fmt.Errorf("failed to marshal conditions: %w", err)
		}
	}

	actionsJSON, err := json.Marshal(workflow.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, description, enabled, version, triggers, conditions, actions, priority,
			created_by, execution_count, success_count, failure_count, last_execution_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			version = EXCLUDED.version,
			triggers = EXCLUDED.triggers,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Enabled,
		workflow.Version,
		triggersJSON,
		nullableJSON(conditionsJSON),
		actionsJSON,
		workflow.Priority,
		workflow.CreatedBy,
		workflow.ExecutionCount,
		workflow.SuccessCount,
		workflow.FailureCount,
		workflow.LastExecutionAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete removes a workflow. Its executions go with it through the foreign key cascade.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflows(ctx context.Context, rows *sql.Rows) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if errors.Is(err, errUndecodableWorkflow) {
			r.logger.ErrorContext(ctx, "Skipping unreadable workflow", "error", err)

			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

var errUndecodableWorkflow = errors.New("cannot decode workflow")

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow        models.Workflow
		triggersJSON    []byte
		conditionsJSON  []byte
		actionsJSON     []byte
		lastExecutionAt sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Enabled,
		&workflow.Version,
		&triggersJSON,
		&conditionsJSON,
		&actionsJSON,
		&workflow.Priority,
		&workflow.CreatedBy,
		&workflow.ExecutionCount,
		&workflow.SuccessCount,
		&workflow.FailureCount,
		&lastExecutionAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggersJSON, &workflow.Triggers)
	if err != nil {
		return nil, fmt.Errorf("%w %s: triggers: %w", errUndecodableWorkflow, workflow.ID, err)
	}

	if len(conditionsJSON) > 0 {
		workflow.Conditions = &models.ConditionTree{}

		err = json.Unmarshal(conditionsJSON, workflow.Conditions)
		if err != nil {
			return nil, fmt.Errorf("%w %s: conditions: %w", errUndecodableWorkflow, workflow.ID, err)
		}
	}

	err = json.Unmarshal(actionsJSON, &workflow.Actions)
	if err != nil {
		return nil, fmt.Errorf("%w %s: actions: %w", errUndecodableWorkflow, workflow.ID, err)
	}

	if lastExecutionAt.Valid {
		at := lastExecutionAt.Time.UTC()
		workflow.LastExecutionAt = &at
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return data
}
