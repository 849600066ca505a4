package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ActionCatalog answers which action types exist and whether a configuration fits a type.
type ActionCatalog interface {
	HasAction(actionType string) bool
	ValidateActionConfig(actionType string, config map[string]any) error
}

type Workflow struct {
	persistence persistence.Persistence
	actions     ActionCatalog
	validate    *validator.Validate
	now         func() time.Time
}

// NewWorkflow creates a new workflow service. Action types and configs are checked against actions on save.
func NewWorkflow(persistence persistence.Persistence, actions ActionCatalog) *Workflow {
	return &Workflow{
		persistence: persistence,
		actions:     actions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Enabled *bool

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at name priority"`
	SortOrder string `validate:"oneof=asc desc"`
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	err := w.validateListWorkflowsRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	result, err := w.persistence.WorkflowRepository().ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		Enabled:   req.Enabled,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit == 0 {
		req.Limit = defaultPageSize
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	err := w.validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	switch validationErrors[0].Field() {
	case "SortBy":
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: created_at, updated_at, name, priority", req.SortBy),
			ErrInvalidSortField,
		)
	case "SortOrder":
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	default:
		return NewValidationError("validateListWorkflowsRequest", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create validates and stores a new workflow at version 1 with zeroed counters. An empty id is generated.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	err := w.Validate(workflow)
	if err != nil {
		return nil, err
	}

	now := w.now()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	workflow.Version = 1
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ExecutionCount = 0
	workflow.SuccessCount = 0
	workflow.FailureCount = 0
	workflow.LastExecutionAt = nil

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces a workflow definition. The version is bumped; counters, creator and creation time are kept.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = w.Validate(workflow)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.Version = existing.Version + 1
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.now()
	workflow.ExecutionCount = existing.ExecutionCount
	workflow.SuccessCount = existing.SuccessCount
	workflow.FailureCount = existing.FailureCount
	workflow.LastExecutionAt = existing.LastExecutionAt

	if workflow.CreatedBy == "" {
		workflow.CreatedBy = existing.CreatedBy
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// SetEnabled switches a workflow on or off without touching its definition version.
func (w *Workflow) SetEnabled(ctx context.Context, workflowID string, enabled bool) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Enabled == enabled {
		return workflow, nil
	}

	workflow.Enabled = enabled
	workflow.UpdatedAt = w.now()

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return err
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Validate checks a workflow definition before it is stored. Empty action ids are generated.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return invalidWorkflow("INVALID_WORKFLOW", err.Error(), err)
	}

	for i, t := range workflow.Triggers {
		if t.Trigger == nil {
			return invalidWorkflow("INVALID_TRIGGER", fmt.Sprintf("trigger %d is empty", i), models.ErrInvalidTrigger)
		}

		err = models.ValidateTrigger(t.Trigger)
		if err != nil {
			return invalidWorkflow("INVALID_TRIGGER", fmt.Sprintf("trigger %d: %v", i, err), err)
		}
	}

	if workflow.Conditions != nil && workflow.Conditions.Root != nil {
		err = models.ValidateCondition(workflow.Conditions.Root)
		if err != nil {
			return invalidWorkflow("INVALID_CONDITIONS", err.Error(), err)
		}
	}

	return w.validateActions(workflow.Actions)
}

func (w *Workflow) validateActions(actions []*models.ActionConfig) error {
	seen := make(map[string]bool, len(actions))

	for i, action := range actions {
		if action == nil {
			return invalidWorkflow("INVALID_ACTION", fmt.Sprintf("action %d is empty", i), nil)
		}

		action.ID = strings.TrimSpace(action.ID)
		if action.ID == "" {
			action.ID = uuid.New().String()
		}

		if seen[action.ID] {
			return invalidWorkflow("DUPLICATE_ACTION_ID", fmt.Sprintf("duplicate action id '%s'", action.ID), nil)
		}

		seen[action.ID] = true

		if w.actions == nil {
			continue
		}

		if !w.actions.HasAction(action.Type) {
			return invalidWorkflow(
				"UNKNOWN_ACTION_TYPE",
				fmt.Sprintf("action '%s' has unknown type '%s'", action.ID, action.Type),
				nil,
			)
		}

		err := w.actions.ValidateActionConfig(action.Type, action.Config)
		if err != nil {
			return invalidWorkflow("INVALID_ACTION_CONFIG", fmt.Sprintf("action '%s': %v", action.ID, err), err)
		}
	}

	return nil
}

func invalidWorkflow(code, message string, err error) *ServiceError {
	return NewValidationError("Validate", code, message, errors.Join(ErrInvalidWorkflow, err))
}
