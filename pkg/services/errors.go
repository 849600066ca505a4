// Package services implements the workflow management and execution operations exposed to callers.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidSortField   = errors.New("invalid sort field")
	ErrInvalidSortOrder   = errors.New("invalid sort order")
	ErrInvalidStatus      = errors.New("invalid execution status")
	ErrInvalidTriggeredBy = errors.New("invalid triggered_by")
	ErrInvalidWorkflow    = errors.New("invalid workflow")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowDisabled    = errors.New("workflow is disabled")
	ErrExecutionInProgress = engine.ErrExecutionInProgress

	// Not found (404).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTriggeredBy) ||
		errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowDisabled) ||
		errors.Is(err, ErrExecutionInProgress)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsWorkflowNotFound(err) || persistence.IsExecutionNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func newConflictError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
