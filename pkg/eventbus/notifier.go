package eventbus

import (
	"context"
	"fmt"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
)

// ExecutionNotifier is an engine completion hook that publishes workflow.execution.completed for
// SUCCESS executions and workflow.execution.failed otherwise.
type ExecutionNotifier struct {
	publisher EventPublisher
}

func NewExecutionNotifier(publisher EventPublisher) *ExecutionNotifier {
	return &ExecutionNotifier{publisher: publisher}
}

func (n *ExecutionNotifier) OnExecutionCompleted(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
) error {
	event := events.ExecutionEvent(execution)

	err := n.publisher.Publish(ctx, workflow.ID, event)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", event.GetType(), err)
	}

	return nil
}
