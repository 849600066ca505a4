// Package executor runs a single configured action with timeout, retry and panic recovery.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxAttempts     = 3
	DefaultActionTimeout   = 30 * time.Second
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// ErrActionPanicked wraps a panic raised by an action handler.
var ErrActionPanicked = errors.New("action panicked")

// ActionCreator builds action instances by type. *registry.Registry implements it.
type ActionCreator interface {
	CreateAction(ctx context.Context, actionType string, config map[string]any) (protocol.Action, error)
}

// ActionResult is the outcome of running one action, across all of its attempts.
type ActionResult struct {
	Success  bool
	Error    string
	Output   any
	Attempts int
	Duration time.Duration
}

// Outcome converts the result into the record stored on an execution.
func (r ActionResult) Outcome(action *models.ActionConfig) *models.ActionOutcome {
	return &models.ActionOutcome{
		ActionID:   action.ID,
		Type:       action.Type,
		Order:      action.Order,
		Success:    r.Success,
		Attempts:   r.Attempts,
		Error:      r.Error,
		Output:     r.Output,
		DurationMs: r.Duration.Milliseconds(),
	}
}

// Config tunes retries and timeouts.
type Config struct {
	MaxAttempts     int
	ActionTimeout   time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     DefaultMaxAttempts,
		ActionTimeout:   DefaultActionTimeout,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

type Executor struct {
	creator ActionCreator
	config  Config
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates an executor. Zero fields in config fall back to DefaultConfig.
func New(creator ActionCreator, config Config, logger *slog.Logger, tracer trace.Tracer) *Executor {
	defaults := DefaultConfig()

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}

	if config.ActionTimeout <= 0 {
		config.ActionTimeout = defaults.ActionTimeout
	}

	if config.InitialInterval <= 0 {
		config.InitialInterval = defaults.InitialInterval
	}

	if config.MaxInterval <= 0 {
		config.MaxInterval = defaults.MaxInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Executor{
		creator: creator,
		config:  config,
		logger:  logger.With("module", "action_executor"),
		tracer:  tracer,
	}
}

// Execute runs the action. It never returns an error: every failure is described by the result.
func (e *Executor) Execute(ctx context.Context, action *models.ActionConfig, execCtx models.ExecutionContext) ActionResult {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "action.execute",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, action.Type),
	)
	defer span.End()

	logger := e.logger.With("action_id", action.ID, "action_type", action.Type)

	result := e.run(ctx, action, execCtx, logger)
	result.Duration = time.Since(started)

	span.SetAttributes(attribute.Int(otelhelper.ActionAttemptsKey, result.Attempts))

	if !result.Success {
		otelhelper.SetError(span, errors.New(result.Error))
		logger.ErrorContext(ctx, "Action failed", "error", result.Error, "attempts", result.Attempts)
	} else {
		logger.DebugContext(ctx, "Action completed", "attempts", result.Attempts)
	}

	return result
}

func (e *Executor) run(ctx context.Context, action *models.ActionConfig, execCtx models.ExecutionContext, logger *slog.Logger) ActionResult {
	instance, err := e.creator.CreateAction(ctx, action.Type, action.Config)
	if errors.Is(err, registry.ErrActionNotRegistered) {
		return ActionResult{Error: registry.ErrActionNotRegistered.Error()}
	}

	if err != nil {
		return ActionResult{Error: err.Error()}
	}

	var (
		output   any
		attempts int
	)

	operation := func() error {
		attempts++

		out, err := e.attempt(ctx, instance, execCtx, logger)
		if err == nil {
			output = out

			return nil
		}

		if !protocol.IsRetryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "Retrying action", "attempt", attempts, "wait", wait, "error", err)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(e.backoff(), ctx), notify)
	if err != nil {
		return ActionResult{Error: err.Error(), Attempts: attempts}
	}

	return ActionResult{Success: true, Output: output, Attempts: attempts}
}

func (e *Executor) backoff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.config.InitialInterval
	policy.MaxInterval = e.config.MaxInterval
	policy.MaxElapsedTime = 0

	return backoff.WithMaxRetries(policy, uint64(e.config.MaxAttempts-1))
}

type attemptResult struct {
	output any
	err    error
}

// attempt runs the handler once under the per-action timeout. A handler that ignores
// cancellation is abandoned when the deadline passes.
func (e *Executor) attempt(ctx context.Context, instance protocol.Action, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ActionTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("%w: %v", ErrActionPanicked, r)}
			}
		}()

		output, err := instance.Execute(ctx, execCtx, logger)
		done <- attemptResult{output: output, err: err}
	}()

	select {
	case result := <-done:
		return result.output, result.err
	case <-ctx.Done():
		return nil, fmt.Errorf("action timed out after %s: %w", e.config.ActionTimeout, ctx.Err())
	}
}
