package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/dispatcher"
	"github.com/dukex/flowrun/pkg/scheduler"
)

// Manager runs the event dispatcher and the scheduler until its context is cancelled.
type Manager struct {
	runtime        *cmd.Runtime
	logger         *slog.Logger
	dispatcher     *dispatcher.Dispatcher
	scheduler      *scheduler.Scheduler
	reloadInterval time.Duration
}

func NewManager(rt *cmd.Runtime, logger *slog.Logger, reloadInterval time.Duration) *Manager {
	workflows := rt.Persistence.WorkflowRepository()

	return &Manager{
		runtime:        rt,
		logger:         logger,
		dispatcher:     dispatcher.New(workflows, rt.Executions, logger),
		scheduler:      scheduler.New(workflows, rt.Executions, logger),
		reloadInterval: reloadInterval,
	}
}

// Run subscribes to domain events, starts the scheduler and reloads schedules on every tick or
// signal received on reload.
func (m *Manager) Run(ctx context.Context, reload <-chan os.Signal) error {
	err := m.dispatcher.Register(m.runtime.EventBus)
	if err != nil {
		return fmt.Errorf("failed to register dispatcher: %w", err)
	}

	err = m.runtime.EventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	err = m.scheduler.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	m.logger.InfoContext(ctx, "Dispatcher started")

	var tick <-chan time.Time

	if m.reloadInterval > 0 {
		ticker := time.NewTicker(m.reloadInterval)
		defer ticker.Stop()

		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "Shutting down gracefully...")

			return nil
		case sig := <-reload:
			m.logger.InfoContext(ctx, "Received signal, reloading schedules", "signal", sig)
			m.reload(ctx)
		case <-tick:
			m.reload(ctx)
		}
	}
}

func (m *Manager) reload(ctx context.Context) {
	count, err := m.scheduler.Reload(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to reload schedules", "error", err)

		return
	}

	m.logger.DebugContext(ctx, "Schedules reloaded", "entries", count)
}
