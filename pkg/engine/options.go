package engine

import (
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/executor"
	"github.com/dukex/flowrun/pkg/lock"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the engine's failure policy.
type Config struct {
	StopOnError     bool
	MaxAttempts     int
	ActionTimeout   time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	defaults := executor.DefaultConfig()

	return Config{
		MaxAttempts:     defaults.MaxAttempts,
		ActionTimeout:   defaults.ActionTimeout,
		InitialInterval: defaults.InitialInterval,
		MaxInterval:     defaults.MaxInterval,
	}
}

type Option func(*Engine)

// WithConfig replaces the whole policy. Zero durations and attempts fall back to the defaults.
func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithStopOnError stops a run at the first failed action instead of continuing.
func WithStopOnError(stop bool) Option {
	return func(e *Engine) {
		e.config.StopOnError = stop
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(e *Engine) {
		e.config.MaxAttempts = attempts
	}
}

func WithActionTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.config.ActionTimeout = timeout
	}
}

func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(e *Engine) {
		e.config.InitialInterval = initial
		e.config.MaxInterval = maxInterval
	}
}

// WithLocker enables single-flight execution per workflow.
func WithLocker(locker lock.Locker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

func WithHooks(hooks ...Hook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks...)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how execution ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}
