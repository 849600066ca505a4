package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionFactory(t *testing.T) {
	factory := NewActionFactory()

	assert.Equal(t, "log", factory.ID())
	assert.NotEmpty(t, factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.Equal(t, "object", factory.Schema()["type"])
}

func TestNewAction(t *testing.T) {
	tests := []struct {
		name          string
		config        map[string]any
		expectedLevel string
		wantErr       bool
	}{
		{name: "defaults to info", config: map[string]any{"message": "hi"}, expectedLevel: "info"},
		{name: "explicit level", config: map[string]any{"message": "hi", "level": "warn"}, expectedLevel: "warn"},
		{name: "missing message", config: map[string]any{}, wantErr: true},
		{name: "invalid level", config: map[string]any{"message": "hi", "level": "trace"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := NewAction(tt.config)
			if tt.wantErr {
				assert.True(t, protocol.IsConfigError(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedLevel, action.Level)
		})
	}
}

func TestAction_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	action, err := NewActionFactory().Create(context.Background(), map[string]any{
		"message": "Invoice {{.entity.id}} over {{.entity.amount}}",
		"level":   "warn",
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), models.ExecutionContext{
		Entity: map[string]any{"id": "inv-7", "amount": 1200},
	}, logger)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"message": "Invoice inv-7 over 1200",
		"level":   "warn",
		"logged":  true,
	}, result)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Invoice inv-7 over 1200")
}

func TestAction_Execute_BadTemplate(t *testing.T) {
	action := &Action{Message: "{{ .entity.id ", Level: "info"}

	_, err := action.Execute(context.Background(), models.ExecutionContext{}, slog.Default())
	assert.True(t, protocol.IsConfigError(err))
}
