package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/lock"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/recorder"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/stats"
)

// Options configures a Runtime.
type Options struct {
	ServiceName      string
	DatabaseURL      string
	EventBus         string
	RedisURL         string
	PluginsPath      string
	StatsTimezone    string
	AutoDisableAfter int
	Tracing          bool
	Engine           engine.Config
}

// Runtime is the wired set of components a binary runs on.
type Runtime struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Registry    *registry.Registry
	Metrics     *metrics.Metrics
	Engine      *engine.Engine
	Workflows   *services.Workflow
	Executions  *services.Execution

	closers []func(context.Context) error
}

// NewRuntime opens the stores and transports and wires the engine and services. The caller must Close it.
func NewRuntime(ctx context.Context, logger *slog.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Logger: logger}

	err := rt.init(ctx, opts)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	return rt, nil
}

func (rt *Runtime) init(ctx context.Context, opts Options) error {
	location, err := time.LoadLocation(opts.StatsTimezone)
	if err != nil {
		return fmt.Errorf("invalid stats timezone %q: %w", opts.StatsTimezone, err)
	}

	rt.EventBus, err = NewEventBus(opts.EventBus, opts.ServiceName, rt.Logger)
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, func(context.Context) error { return rt.EventBus.Close() })

	rt.Persistence, err = NewPersistence(ctx, rt.Logger, opts.DatabaseURL)
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, rt.Persistence.Close)

	rt.Registry, err = NewRegistry(ctx, rt.Logger, opts.PluginsPath, rt.EventBus)
	if err != nil {
		return err
	}

	rt.Metrics = metrics.New()

	engineOpts := []engine.Option{
		engine.WithConfig(opts.Engine),
		engine.WithLogger(rt.Logger.With("module", "engine")),
		engine.WithHooks(
			rt.Metrics,
			eventbus.NewExecutionNotifier(rt.EventBus),
			&services.AutoDisablePolicy{
				Threshold:   opts.AutoDisableAfter,
				Persistence: rt.Persistence,
				Logger:      rt.Logger,
			},
		),
	}

	if opts.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return err
		}

		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		engineOpts = append(engineOpts, engine.WithLocker(lock.NewRedisLocker(client, lock.DefaultTTL, rt.Logger)))
	}

	if opts.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, opts.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.closers = append(rt.closers, shutdown)
		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	executions := rt.Persistence.ExecutionRepository()

	rt.Engine = engine.New(rt.Registry, recorder.New(executions, rt.Logger, nil), engineOpts...)
	rt.Workflows = services.NewWorkflow(rt.Persistence, rt.Registry)
	rt.Executions = services.NewExecution(
		rt.Persistence,
		rt.Engine,
		stats.NewAggregator(executions, location, nil),
		rt.Metrics,
		rt.Logger,
	)

	return nil
}

// Close releases everything in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
