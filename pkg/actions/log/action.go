package log

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Action logs a templated message.
type Action struct {
	Message string
	Level   string
}

// NewAction creates a log action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, protocol.ConfigError("missing required field 'message'")
	}

	level := "info"
	if lvl, ok := config["level"].(string); ok && lvl != "" {
		level = lvl
	}

	if _, ok := levels[level]; !ok {
		return nil, protocol.ConfigError("invalid log level '%s' (must be debug, info, warn, or error)", level)
	}

	return &Action{Message: message, Level: level}, nil
}

// Execute renders the message and logs it.
func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	message, err := template.RenderString(a.Message, &execCtx)
	if err != nil {
		return nil, protocol.ConfigError("render message: %v", err)
	}

	logger.With("action_type", "log").Log(ctx, levels[a.Level], message)

	return map[string]any{
		"message": message,
		"level":   a.Level,
		"logged":  true,
	}, nil
}
