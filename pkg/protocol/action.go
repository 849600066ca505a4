// Package protocol defines the contracts for pluggable action handlers.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
)

var (
	// ErrInvalidConfig marks configuration errors. They fail the action without retries.
	ErrInvalidConfig = errors.New("invalid action configuration")

	// ErrPermanent marks handler failures that a retry cannot fix.
	ErrPermanent = errors.New("permanent failure")
)

// Action is a configured handler ready to run against an execution context.
type Action interface {
	Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error)
}

// ActionFactory creates Action instances and provides metadata about the action type.
type ActionFactory interface {
	// Create parses the stored configuration into a runnable action
	Create(ctx context.Context, config map[string]any) (Action, error)

	// ID returns the action type, as referenced by ActionConfig.Type
	ID() string

	// Name returns the human-readable name for this action type
	Name() string

	// Description returns a description of what this action does
	Description() string

	// Schema returns the JSON schema for configuring this action
	Schema() map[string]any
}

// ConfigError wraps a message as an ErrInvalidConfig error.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidConfig) && !errors.Is(err, ErrPermanent)
}
