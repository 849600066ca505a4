// Package engine runs workflows: it matches triggers, gates on conditions, executes actions in order
// and records the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/condition"
	"github.com/dukex/flowrun/pkg/executor"
	"github.com/dukex/flowrun/pkg/lock"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/trigger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrExecutionInProgress is returned when single-flight locking is enabled and the workflow is already running.
	ErrExecutionInProgress = errors.New("workflow execution already in progress")

	ErrNilWorkflow = errors.New("workflow is nil")
)

const (
	ReasonNoTriggerMatched = "no trigger matched"
	ReasonConditionsFailed = "conditions not met"
	ReasonDryRun           = "dry run"
)

// ActionRegistry resolves action types to runnable handlers.
type ActionRegistry interface {
	executor.ActionCreator
	HasAction(actionType string) bool
}

// Recorder persists the execution lifecycle.
type Recorder interface {
	Begin(ctx context.Context, execution *models.WorkflowExecution) error
	Finish(ctx context.Context, execution *models.WorkflowExecution) error
}

type Engine struct {
	registry ActionRegistry
	recorder Recorder
	executor *executor.Executor

	config Config
	locker lock.Locker
	hooks  []Hook
	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New builds an engine. It is safe for concurrent use.
func New(registry ActionRegistry, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		recorder: recorder,
		config:   DefaultConfig(),
		tracer:   otelhelper.NoopTracer(),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "workflow_engine")
	e.executor = executor.New(registry, executor.Config{
		MaxAttempts:     e.config.MaxAttempts,
		ActionTimeout:   e.config.ActionTimeout,
		InitialInterval: e.config.InitialInterval,
		MaxInterval:     e.config.MaxInterval,
	}, e.logger, e.tracer)

	return e
}

// Execute runs the workflow for the context. Skips are reported in the result and are never recorded.
// A TEST context is answered with a dry run.
func (e *Engine) Execute(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) (*Result, error) {
	if workflow == nil {
		return nil, ErrNilWorkflow
	}

	if execCtx.Timestamp.IsZero() {
		execCtx.Timestamp = e.now()
	}

	if execCtx.TriggeredBy == models.TriggerTypeTest {
		return &Result{
			WorkflowID: workflow.ID,
			Status:     models.ExecutionStatusSkipped,
			Reason:     ReasonDryRun,
			DryRun:     e.Test(ctx, workflow, execCtx),
		}, nil
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.Int(otelhelper.WorkflowVersionKey, workflow.Version),
		attribute.String(otelhelper.TriggeredByKey, string(execCtx.TriggeredBy)),
	)
	defer span.End()

	logger := e.logger.With("workflow_id", workflow.ID, "triggered_by", execCtx.TriggeredBy)

	if !trigger.Matches(workflow.Triggers, execCtx) {
		logger.DebugContext(ctx, "Workflow skipped", "reason", ReasonNoTriggerMatched)

		return skipped(workflow, ReasonNoTriggerMatched), nil
	}

	if !condition.Evaluate(workflow.Conditions, execCtx) {
		logger.DebugContext(ctx, "Workflow skipped", "reason", ReasonConditionsFailed)

		return skipped(workflow, ReasonConditionsFailed), nil
	}

	if e.locker != nil {
		unlock, err := e.locker.TryLock(ctx, workflow.ID)
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionInProgress, workflow.ID)
		}

		if err != nil {
			otelhelper.SetError(span, err)

			return nil, fmt.Errorf("failed to acquire workflow lock: %w", err)
		}

		defer func() {
			// The run may have been cancelled; release on a fresh context.
			_ = unlock(context.WithoutCancel(ctx))
		}()
	}

	execution := &models.WorkflowExecution{
		ID:              e.newID(),
		WorkflowID:      workflow.ID,
		WorkflowVersion: workflow.Version,
		TriggeredBy:     execCtx.TriggeredBy,
		TriggerSource:   execCtx.TriggerSource,
		StartedAt:       e.now(),
		ContextSummary:  execCtx.Summary(),
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	logger = logger.With("execution_id", execution.ID)

	err := e.recorder.Begin(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	logger.InfoContext(ctx, "Executing workflow")

	e.runActions(ctx, workflow, execCtx, execution, logger)

	// Recording must survive a caller that gave up while actions were running.
	err = e.recorder.Finish(context.WithoutCancel(ctx), execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionStatusKey, string(execution.Status)))

	if execution.Status != models.ExecutionStatusSuccess {
		otelhelper.SetError(span, fmt.Errorf("execution finished with status %s", execution.Status))
	}

	logger.InfoContext(ctx, "Workflow executed",
		"status", execution.Status,
		"actions_success", execution.ActionsSuccess,
		"actions_failed", execution.ActionsFailed,
		"duration_ms", execution.DurationMs,
	)

	e.runHooks(context.WithoutCancel(ctx), workflow, execution, logger)

	return resultFor(execution), nil
}

func (e *Engine) runActions(
	ctx context.Context,
	workflow *models.Workflow,
	execCtx models.ExecutionContext,
	execution *models.WorkflowExecution,
	logger *slog.Logger,
) {
	for _, action := range workflow.OrderedActions() {
		result := e.executor.Execute(ctx, action, execCtx)
		execution.Record(result.Outcome(action))

		if !result.Success && e.config.StopOnError {
			logger.WarnContext(ctx, "Stopping after failed action", "action_id", action.ID)

			return
		}
	}
}

func (e *Engine) runHooks(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution, logger *slog.Logger) {
	for _, hook := range e.hooks {
		err := hook.OnExecutionCompleted(ctx, workflow, execution)
		if err != nil {
			logger.ErrorContext(ctx, "Completion hook failed", "error", err)
		}
	}
}

// Test explains what Execute would do without writing anything or calling any handler.
func (e *Engine) Test(ctx context.Context, workflow *models.Workflow, execCtx models.ExecutionContext) *TestResult {
	_, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.test",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.TriggeredByKey, string(execCtx.TriggeredBy)),
	)
	defer span.End()

	perTrigger := trigger.Explain(workflow.Triggers, execCtx)

	result := &TestResult{
		WorkflowID:       workflow.ID,
		TriggerMatched:   trigger.AnyMatched(perTrigger),
		ConditionsPassed: condition.Evaluate(workflow.Conditions, execCtx),
		PerTrigger:       perTrigger,
		PerAction:        make([]ActionPlan, 0, len(workflow.Actions)),
	}

	result.WouldExecute = result.TriggerMatched && result.ConditionsPassed

	for _, action := range workflow.OrderedActions() {
		registered := e.registry.HasAction(action.Type)

		result.PerAction = append(result.PerAction, ActionPlan{
			ID:          action.ID,
			Type:        action.Type,
			Order:       action.Order,
			Registered:  registered,
			WillExecute: result.WouldExecute && registered,
		})
	}

	return result
}
