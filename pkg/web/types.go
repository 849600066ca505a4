package web

import "github.com/dukex/flowrun/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"                 validate:"required,min=3"`
	Description string                 `json:"description"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	Triggers    []models.TriggerConfig `json:"triggers"             validate:"required,min=1"`
	Conditions  *models.ConditionTree  `json:"conditions,omitempty"`
	Actions     []*models.ActionConfig `json:"actions"`
	Priority    int                    `json:"priority"`
	CreatedBy   string                 `json:"created_by"`
}

// Workflow builds the model. Workflows are enabled unless the request says otherwise.
func (r CreateWorkflowRequest) Workflow() *models.Workflow {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     enabled,
		Triggers:    r.Triggers,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
		Priority:    r.Priority,
		CreatedBy:   r.CreatedBy,
	}
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	Triggers    []models.TriggerConfig `json:"triggers,omitempty"`
	Conditions  *models.ConditionTree  `json:"conditions,omitempty"`
	Actions     []*models.ActionConfig `json:"actions,omitempty"`
	Priority    *int                   `json:"priority,omitempty"`
}

// Apply merges the request into a copy of the existing workflow.
func (r UpdateWorkflowRequest) Apply(existing *models.Workflow) *models.Workflow {
	updated := *existing

	if r.Name != nil {
		updated.Name = *r.Name
	}

	if r.Description != nil {
		updated.Description = *r.Description
	}

	if r.Enabled != nil {
		updated.Enabled = *r.Enabled
	}

	if r.Triggers != nil {
		updated.Triggers = r.Triggers
	}

	if r.Conditions != nil {
		updated.Conditions = r.Conditions
	}

	if r.Actions != nil {
		updated.Actions = r.Actions
	}

	if r.Priority != nil {
		updated.Priority = *r.Priority
	}

	return &updated
}
