package dispatcher_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/dispatcher"
	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu       sync.Mutex
	order    []string
	contexts []models.ExecutionContext
	errs     map[string]error
	skip     map[string]bool
}

func (f *fakeExecutor) ExecuteWorkflow(
	_ context.Context,
	workflow *models.Workflow,
	execCtx models.ExecutionContext,
) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.order = append(f.order, workflow.ID)
	f.contexts = append(f.contexts, execCtx)

	if err := f.errs[workflow.ID]; err != nil {
		return nil, err
	}

	if f.skip[workflow.ID] {
		return &engine.Result{WorkflowID: workflow.ID, Status: models.ExecutionStatusSkipped}, nil
	}

	return &engine.Result{WorkflowID: workflow.ID, ExecutionID: "ex-" + workflow.ID, Status: models.ExecutionStatusSuccess}, nil
}

func (f *fakeExecutor) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.order...)
}

func eventWorkflow(id, event string, priority int, enabled bool) *models.Workflow {
	now := time.Now().UTC()

	return &models.Workflow{
		ID:       id,
		Name:     "workflow " + id,
		Enabled:  enabled,
		Priority: priority,
		Triggers: []models.TriggerConfig{
			{Trigger: &models.EventTrigger{Event: event, EntityType: "invoice"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newDispatcher(t *testing.T, workflows ...*models.Workflow) (*dispatcher.Dispatcher, *fakeExecutor) {
	t.Helper()

	repo := file.NewWorkflowRepository(t.TempDir())
	for _, w := range workflows {
		require.NoError(t, repo.Save(t.Context(), w))
	}

	executor := &fakeExecutor{errs: map[string]error{}, skip: map[string]bool{}}

	return dispatcher.New(repo, executor, slog.New(slog.DiscardHandler)), executor
}

func invoiceCreated() events.DomainEvent {
	return events.DomainEvent{
		BaseEvent:  events.NewBaseEvent(events.DomainEventType, ""),
		Event:      "invoice.created",
		EntityType: "invoice",
		Entity:     map[string]any{"id": "inv-1", "amount": 1500},
	}
}

func TestDispatcher_Dispatch_PriorityOrder(t *testing.T) {
	d, executor := newDispatcher(t,
		eventWorkflow("low", "invoice.created", 1, true),
		eventWorkflow("high", "invoice.created", 10, true),
		eventWorkflow("mid", "invoice.created", 5, true),
		eventWorkflow("disabled", "invoice.created", 100, false),
		eventWorkflow("other-event", "invoice.paid", 50, true),
	)

	summary, err := d.Dispatch(t.Context(), invoiceCreated())
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "mid", "low"}, executor.executed())
	assert.Equal(t, dispatcher.Summary{Matched: 3, Executed: 3}, summary)

	for _, execCtx := range executor.contexts {
		assert.Equal(t, models.TriggerTypeEvent, execCtx.TriggeredBy)
		assert.Equal(t, "invoice.created", execCtx.Event)
		assert.Equal(t, "inv-1", execCtx.Entity["id"])
	}
}

func TestDispatcher_Dispatch_FailuresDoNotStopOthers(t *testing.T) {
	d, executor := newDispatcher(t,
		eventWorkflow("a", "invoice.created", 3, true),
		eventWorkflow("b", "invoice.created", 2, true),
		eventWorkflow("c", "invoice.created", 1, true),
		eventWorkflow("d", "invoice.created", 0, true),
	)
	executor.errs["a"] = errors.New("boom")
	executor.errs["b"] = fmt.Errorf("run: %w", services.ErrExecutionInProgress)
	executor.skip["c"] = true

	summary, err := d.Dispatch(t.Context(), invoiceCreated())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, executor.executed())
	assert.Equal(t, dispatcher.Summary{Matched: 4, Executed: 1, Skipped: 2, Failed: 1}, summary)
}

func TestDispatcher_Dispatch_NoMatch(t *testing.T) {
	d, executor := newDispatcher(t, eventWorkflow("paid", "invoice.paid", 0, true))

	summary, err := d.Dispatch(t.Context(), invoiceCreated())
	require.NoError(t, err)

	assert.Empty(t, executor.executed())
	assert.Equal(t, dispatcher.Summary{}, summary)
}

func TestDispatcher_HandleDomainEvent_RejectsOtherEvents(t *testing.T) {
	d, _ := newDispatcher(t)

	err := d.HandleDomainEvent(t.Context(), events.EntityFieldSet{})
	require.Error(t, err)
}

func TestDispatcher_ConsumesFromEventBus(t *testing.T) {
	d, executor := newDispatcher(t, eventWorkflow("wf-1", "invoice.created", 0, true))

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, d.Register(bus))
	require.NoError(t, bus.Subscribe(ctx))
	require.NoError(t, bus.Publish(ctx, "inv-1", invoiceCreated()))

	assert.Eventually(t, func() bool {
		return len(executor.executed()) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatcher_Dispatch_LoadError(t *testing.T) {
	repo := &mocks.MockWorkflowRepository{}
	repo.On("GetAll", mock.Anything).Return(nil, errors.New("db down"))

	executor := &fakeExecutor{}
	d := dispatcher.New(repo, executor, slog.New(slog.DiscardHandler))

	_, err := d.Dispatch(t.Context(), invoiceCreated())
	require.ErrorContains(t, err, "db down")
	assert.Empty(t, executor.executed())
	repo.AssertExpectations(t)
}

func TestDispatcher_Dispatch_BadScheduleDoesNotBlockOthers(t *testing.T) {
	broken := eventWorkflow("broken", "invoice.created", 9, true)
	broken.Triggers = append(broken.Triggers, models.TriggerConfig{
		Trigger: &models.ScheduleTrigger{Cron: "not a cron", Timezone: "Mars/Olympus"},
	})

	d, executor := newDispatcher(t, eventWorkflow("good", "invoice.created", 1, true), broken)

	summary, err := d.Dispatch(t.Context(), invoiceCreated())
	require.NoError(t, err)

	assert.Equal(t, []string{"broken", "good"}, executor.executed())
	assert.Equal(t, dispatcher.Summary{Matched: 2, Executed: 2}, summary)
}
