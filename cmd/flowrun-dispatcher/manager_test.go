package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *cmd.Runtime {
	t.Helper()

	rt, err := cmd.NewRuntime(t.Context(), slog.New(slog.DiscardHandler), cmd.Options{
		ServiceName:   "flowrun-dispatcher-test",
		DatabaseURL:   "file://" + t.TempDir(),
		EventBus:      "gochannel",
		StatsTimezone: "UTC",
		Engine:        engine.DefaultConfig(),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	return rt
}

func TestManager_RunsEventWorkflows(t *testing.T) {
	rt := newTestRuntime(t)

	workflow, err := rt.Workflows.Create(t.Context(), &models.Workflow{
		Name:    "Log invoices",
		Enabled: true,
		Triggers: []models.TriggerConfig{
			models.NewTriggerConfig(&models.EventTrigger{Event: "invoice.created", EntityType: "invoice"}),
		},
		Actions: []*models.ActionConfig{
			{Type: "log", Config: map[string]any{"message": "invoice {{.entity.id}}"}},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	reload := make(chan os.Signal, 1)
	done := make(chan error, 1)

	go func() {
		done <- NewManager(rt, slog.New(slog.DiscardHandler), 0).Run(ctx, reload)
	}()

	reload <- syscall.SIGHUP

	assert.Eventually(t, func() bool {
		err := rt.EventBus.Publish(ctx, "inv-1", events.DomainEvent{
			BaseEvent:  events.NewBaseEvent(events.DomainEventType, ""),
			Event:      "invoice.created",
			EntityType: "invoice",
			Entity:     map[string]any{"id": "inv-1"},
		})
		if err != nil {
			return false
		}

		page, err := rt.Persistence.ExecutionRepository().List(ctx, persistence.ExecutionQuery{
			WorkflowID: workflow.ID,
			Limit:      10,
		})

		return err == nil && len(page.Executions) > 0
	}, 3*time.Second, 100*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("manager did not stop")
	}

	page, err := rt.Persistence.ExecutionRepository().List(t.Context(), persistence.ExecutionQuery{
		WorkflowID: workflow.ID,
		Limit:      10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.Executions)
	assert.Equal(t, models.TriggerTypeEvent, page.Executions[0].TriggeredBy)
}
