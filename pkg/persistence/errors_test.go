package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		executionErr := persistence.NewExecutionError("Complete", "exec-1", persistence.ErrExecutionSealed)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsExecutionSealed(executionErr))
		assert.False(t, persistence.IsExecutionNotFound(executionErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", executionErr), persistence.ErrExecutionSealed))
	})

	t.Run("errors contain context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Delete", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")

		execErr := persistence.NewExecutionError("GetByID", "exec-9", persistence.ErrExecutionNotFound)
		assert.Contains(t, execErr.Error(), "exec-9")
		assert.True(t, persistence.IsExecutionNotFound(execErr))
	})

	t.Run("invalid sort field", func(t *testing.T) {
		err := fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, "owner")

		assert.True(t, persistence.IsInvalidSortField(err))
	})
}
