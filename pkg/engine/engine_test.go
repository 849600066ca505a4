package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/lock"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/recorder"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyFactory builds actions that record their invocation order. A config with "fail": true makes the action fail.
type spyFactory struct {
	mu      sync.Mutex
	calls   atomic.Int32
	order   []string
	started chan struct{}
	release chan struct{}
}

func (f *spyFactory) ID() string             { return "spy" }
func (f *spyFactory) Name() string           { return "Spy" }
func (f *spyFactory) Description() string    { return "Records calls" }
func (f *spyFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *spyFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	name, _ := config["name"].(string)
	fail, _ := config["fail"].(bool)

	return &spyAction{factory: f, name: name, fail: fail}, nil
}

type spyAction struct {
	factory *spyFactory
	name    string
	fail    bool
}

func (a *spyAction) Execute(ctx context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	a.factory.calls.Add(1)

	a.factory.mu.Lock()
	a.factory.order = append(a.factory.order, a.name)
	a.factory.mu.Unlock()

	if a.factory.started != nil {
		a.factory.started <- struct{}{}
		<-a.factory.release
	}

	if a.fail {
		return nil, errors.New("integration down")
	}

	return map[string]any{"name": a.name}, nil
}

type fixture struct {
	engine      *Engine
	spy         *spyFactory
	persistence persistence.Persistence
	ctx         context.Context
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	spy := &spyFactory{}
	reg := registry.NewRegistry(logger)
	reg.RegisterAction(spy)

	p := file.NewPersistence(t.TempDir())
	rec := recorder.New(p.ExecutionRepository(), logger, nil)

	opts = append([]Option{
		WithLogger(logger),
		WithMaxAttempts(2),
		WithBackoff(time.Millisecond, time.Millisecond),
	}, opts...)

	return &fixture{
		engine:      New(reg, rec, opts...),
		spy:         spy,
		persistence: p,
		ctx:         ctx,
	}
}

func (f *fixture) save(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.persistence.WorkflowRepository().Save(f.ctx, workflow))
}

func (f *fixture) reload(t *testing.T, id string) *models.Workflow {
	t.Helper()

	workflow, err := f.persistence.WorkflowRepository().GetByID(f.ctx, id)
	require.NoError(t, err)

	return workflow
}

func spy(id, name string, order int, fail bool) *models.ActionConfig {
	return &models.ActionConfig{
		ID:     id,
		Type:   "spy",
		Order:  order,
		Config: map[string]any{"name": name, "fail": fail},
	}
}

func largeInvoiceWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:         "wf-invoices",
		Name:       "Flag large invoices",
		Enabled:    true,
		Version:    1,
		Triggers:   []models.TriggerConfig{models.NewTriggerConfig(&models.ManualTrigger{})},
		Conditions: models.NewConditionTree(models.Compare("entity.amount", models.OperatorGreaterThan, 1000)),
		Actions: []*models.ActionConfig{
			spy("notify", "notify", 1, false),
			spy("flag", "flag", 2, false),
		},
	}
}

func manual(entity map[string]any) models.ExecutionContext {
	return models.ExecutionContext{TriggeredBy: models.TriggerTypeManual, TriggerSource: "api", Entity: entity}
}

func TestEngine_LargeInvoiceScenario(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, manual(map[string]any{"id": "inv-1", "amount": 1500}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, 2, result.ActionsExecuted)
	assert.Equal(t, 2, result.ActionsSuccess)
	assert.NotEmpty(t, result.ExecutionID)
	require.NotNil(t, result.CompletedAt)

	stored := f.reload(t, workflow.ID)
	assert.Equal(t, int64(1), stored.ExecutionCount)
	assert.Equal(t, int64(1), stored.SuccessCount)

	execution, err := f.persistence.ExecutionRepository().GetByID(f.ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", execution.ContextSummary["entity_id"])
	assert.Equal(t, "api", execution.TriggerSource)

	result, err = f.engine.Execute(f.ctx, workflow, manual(map[string]any{"id": "inv-2", "amount": 500}))
	require.NoError(t, err)

	assert.True(t, result.Skipped())
	assert.Equal(t, ReasonConditionsFailed, result.Reason)
	assert.Empty(t, result.ExecutionID)
	assert.Equal(t, int64(1), f.reload(t, workflow.ID).ExecutionCount)

	list, err := f.persistence.ExecutionRepository().List(f.ctx, persistence.ExecutionQuery{WorkflowID: workflow.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalCount, "skips are never recorded")
}

func TestEngine_TriggerMissIsSkipped(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, models.ExecutionContext{
		TriggeredBy: models.TriggerTypeEvent,
		Event:       "invoice.created",
		Entity:      map[string]any{"amount": 5000},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSkipped, result.Status)
	assert.Equal(t, ReasonNoTriggerMatched, result.Reason)
	assert.Equal(t, int32(0), f.spy.calls.Load())
}

func TestEngine_NilConditionsAlwaysPass(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
}

func TestEngine_ActionsRunInOrder(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	workflow.Actions = []*models.ActionConfig{
		spy("c", "third", 3, false),
		spy("a", "first", 1, false),
		spy("b", "second", 2, false),
	}
	f.save(t, workflow)

	_, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, f.spy.order)
}

func TestEngine_AllFailedCountsFailure(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	workflow.Actions = []*models.ActionConfig{spy("a", "a", 1, true), spy("b", "b", 2, true)}
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, 2, result.ActionsFailed)

	stored := f.reload(t, workflow.ID)
	assert.Equal(t, int64(1), stored.ExecutionCount)
	assert.Equal(t, int64(0), stored.SuccessCount)
	assert.Equal(t, int64(1), stored.FailureCount)

	execution := result.Execution
	assert.Equal(t, 2, execution.RetryCount, "each failed action retried once")
	assert.Equal(t, "integration down", execution.ActionResults[0].Error)
}

func TestEngine_ContinueOnErrorGivesPartial(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	workflow.Actions = []*models.ActionConfig{
		spy("a", "a", 1, true),
		spy("b", "b", 2, false),
		{ID: "c", Type: "teleport", Order: 3},
	}
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPartial, result.Status)
	assert.Equal(t, 3, result.ActionsExecuted)
	assert.Equal(t, 1, result.ActionsSuccess)
	assert.Equal(t, 2, result.ActionsFailed)
	assert.Equal(t, "unknown action type", result.Execution.ActionResults[2].Error)

	stored := f.reload(t, workflow.ID)
	assert.Equal(t, int64(1), stored.FailureCount, "PARTIAL counts as failure")
}

func TestEngine_StopOnError(t *testing.T) {
	f := setup(t, WithStopOnError(true))
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	workflow.Actions = []*models.ActionConfig{spy("a", "a", 1, true), spy("b", "b", 2, false)}
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Equal(t, []string{"a", "a"}, f.spy.order)
}

func TestEngine_TestNeverWritesOrCallsHandlers(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	workflow.Triggers = append(workflow.Triggers, models.NewTriggerConfig(&models.TestTrigger{}))
	workflow.Actions = append(workflow.Actions, &models.ActionConfig{ID: "x", Type: "teleport", Order: 0})
	f.save(t, workflow)

	execCtx := models.ExecutionContext{TriggeredBy: models.TriggerTypeTest, Entity: map[string]any{"amount": 1500}}

	report := f.engine.Test(f.ctx, workflow, execCtx)

	assert.True(t, report.WouldExecute)
	assert.True(t, report.TriggerMatched)
	assert.True(t, report.ConditionsPassed)
	require.Len(t, report.PerTrigger, 2)
	assert.False(t, report.PerTrigger[0].Matched)
	assert.True(t, report.PerTrigger[1].Matched)

	require.Len(t, report.PerAction, 3)
	assert.Equal(t, ActionPlan{ID: "x", Type: "teleport", Order: 0, Registered: false, WillExecute: false}, report.PerAction[0])
	assert.Equal(t, "notify", report.PerAction[1].ID)
	assert.True(t, report.PerAction[1].WillExecute)

	result, err := f.engine.Execute(f.ctx, workflow, execCtx)
	require.NoError(t, err)
	assert.Equal(t, ReasonDryRun, result.Reason)
	require.NotNil(t, result.DryRun)

	assert.Equal(t, int32(0), f.spy.calls.Load())
	assert.Equal(t, int64(0), f.reload(t, workflow.ID).ExecutionCount)

	list, err := f.persistence.ExecutionRepository().List(f.ctx, persistence.ExecutionQuery{WorkflowID: workflow.ID})
	require.NoError(t, err)
	assert.Zero(t, list.TotalCount)
}

func TestEngine_TestReportsConditionFailure(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()

	report := f.engine.Test(f.ctx, workflow, manual(map[string]any{"amount": 10}))

	assert.True(t, report.TriggerMatched)
	assert.False(t, report.ConditionsPassed)
	assert.False(t, report.WouldExecute)

	for _, plan := range report.PerAction {
		assert.False(t, plan.WillExecute)
	}
}

func TestEngine_SingleFlight(t *testing.T) {
	f := setup(t, WithLocker(lock.NewMemoryLocker()))
	f.spy.started = make(chan struct{})
	f.spy.release = make(chan struct{})

	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	workflow.Actions = []*models.ActionConfig{spy("a", "a", 1, false)}
	f.save(t, workflow)

	done := make(chan error, 1)

	go func() {
		_, err := f.engine.Execute(f.ctx, workflow, manual(nil))
		done <- err
	}()

	<-f.spy.started

	_, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	assert.ErrorIs(t, err, ErrExecutionInProgress)

	close(f.spy.release)
	require.NoError(t, <-done)

	assert.Equal(t, int64(1), f.reload(t, workflow.ID).ExecutionCount, "rejected run leaves no record")
}

func TestEngine_HooksSeeRecordedExecution(t *testing.T) {
	var seen []models.ExecutionStatus

	hook := HookFunc(func(_ context.Context, _ *models.Workflow, execution *models.WorkflowExecution) error {
		seen = append(seen, execution.Status)

		return errors.New("hook failures are only logged")
	})

	f := setup(t, WithHooks(hook))
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	f.save(t, workflow)

	result, err := f.engine.Execute(f.ctx, workflow, manual(nil))
	require.NoError(t, err)

	assert.Equal(t, []models.ExecutionStatus{models.ExecutionStatusSuccess}, seen)
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
}

func TestEngine_ConcurrentExecutionsKeepCounters(t *testing.T) {
	f := setup(t)
	workflow := largeInvoiceWorkflow()
	workflow.Conditions = nil
	f.save(t, workflow)

	const runs = 10

	var wg sync.WaitGroup

	for range runs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.engine.Execute(f.ctx, workflow, manual(nil))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored := f.reload(t, workflow.ID)
	assert.Equal(t, int64(runs), stored.ExecutionCount)
	assert.Equal(t, stored.ExecutionCount, stored.SuccessCount+stored.FailureCount)
}

func TestEngine_MissingWorkflowRecordIsAnError(t *testing.T) {
	f := setup(t)

	_, err := f.engine.Execute(f.ctx, largeInvoiceWorkflow(), manual(map[string]any{"amount": 2000}))
	assert.True(t, persistence.IsWorkflowNotFound(err))

	_, err = f.engine.Execute(f.ctx, nil, manual(nil))
	assert.ErrorIs(t, err, ErrNilWorkflow)
}
