// Package scheduler fires SCHEDULE triggers. It runs outside the engine and calls the same execute
// entry point as every other caller.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/robfig/cron/v3"
)

// TriggerSource is recorded on executions started by the scheduler.
const TriggerSource = "scheduler"

// Executor runs a loaded workflow. *services.Execution implements it.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) (*engine.Result, error)
}

type Scheduler struct {
	workflows persistence.WorkflowRepository
	executor  Executor
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries []cron.EntryID
	ctx     context.Context
}

func New(workflows persistence.WorkflowRepository, executor Executor, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")

	return &Scheduler{
		workflows: workflows,
		executor:  executor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{logger}),
			cron.Recover(cronLogger{logger}),
		)),
		ctx: context.Background(),
	}
}

// Start loads the schedules and starts firing them until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	count, err := s.Reload(ctx)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "entries", count)
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops firing and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reload replaces every cron entry with the SCHEDULE triggers of the enabled workflows.
// It returns the number of registered entries.
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	workflows, err := s.workflows.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries {
		s.cron.Remove(id)
	}

	s.entries = s.entries[:0]

	for _, workflow := range workflows {
		if !workflow.Enabled {
			continue
		}

		for _, schedule := range workflow.ScheduleTriggers() {
			spec := schedule.Spec()

			id, err := s.cron.AddJob(spec, s.job(workflow.ID, spec))
			if err != nil {
				s.logger.ErrorContext(ctx, "Skipping invalid schedule",
					"workflow_id", workflow.ID,
					"cron", spec,
					"error", err,
				)

				continue
			}

			s.entries = append(s.entries, id)
		}
	}

	return len(s.entries), nil
}

// Entries returns the number of registered schedules.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Scheduler) job(workflowID, spec string) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		s.Fire(ctx, workflowID, spec)
	})
}

// Fire executes one workflow as a SCHEDULE run. The stored definition is reloaded so edits made
// since the last Reload apply.
func (s *Scheduler) Fire(ctx context.Context, workflowID, spec string) {
	logger := s.logger.With("workflow_id", workflowID, "cron", spec)

	workflow, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load scheduled workflow", "error", err)

		return
	}

	now := s.now()

	result, err := s.executor.ExecuteWorkflow(ctx, workflow, models.ExecutionContext{
		TriggeredBy:   models.TriggerTypeSchedule,
		TriggerSource: TriggerSource,
		Timestamp:     now,
		Metadata: map[string]any{
			"cron":         spec,
			"scheduled_at": now.Format(time.RFC3339),
		},
	})

	switch {
	case errors.Is(err, services.ErrWorkflowDisabled), errors.Is(err, services.ErrExecutionInProgress):
		logger.InfoContext(ctx, "Scheduled run not started", "reason", err)
	case err != nil:
		logger.ErrorContext(ctx, "Scheduled run failed", "error", err)
	default:
		logger.InfoContext(ctx, "Scheduled run finished", "status", result.Status, "execution_id", result.ExecutionID)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
