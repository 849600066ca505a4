package mocks

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Workflows  *MockWorkflowRepository
	Executions *MockExecutionRepository
}

// NewMockPersistence returns a MockPersistence whose repositories are fresh mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:  &MockWorkflowRepository{},
		Executions: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListWorkflows(
	ctx context.Context,
	opts persistence.ListWorkflowsOptions,
) (*persistence.WorkflowListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.WorkflowListResult), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Complete(
	ctx context.Context,
	execution *models.WorkflowExecution,
	delta models.CounterDelta,
) error {
	args := m.Called(ctx, execution, delta)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) List(
	ctx context.Context,
	query persistence.ExecutionQuery,
) (*persistence.ExecutionListResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.ExecutionListResult), args.Error(1)
}

func (m *MockExecutionRepository) ListSince(
	ctx context.Context,
	workflowID string,
	since time.Time,
) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, cutoff)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)

	return args.Get(0).(int64), args.Error(1)
}
