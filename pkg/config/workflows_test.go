package config

import (
	"log/slog"
	"testing"

	logaction "github.com/dukex/flowrun/pkg/actions/log"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkflows(t *testing.T) {
	workflows, err := LoadWorkflows("testdata/workflows.yaml")
	require.NoError(t, err)
	require.Len(t, workflows, 2)

	invoices := workflows[0]
	assert.Equal(t, "flag-large-invoices", invoices.ID)
	assert.True(t, invoices.Enabled, "enabled defaults to true")
	assert.Equal(t, 10, invoices.Priority)
	require.Len(t, invoices.Triggers, 2)
	assert.Equal(t, &models.EventTrigger{Event: "invoice.created", EntityType: "invoice"}, invoices.Triggers[0].Trigger)
	assert.IsType(t, &models.ManualTrigger{}, invoices.Triggers[1].Trigger)

	require.NotNil(t, invoices.Conditions)
	branch, ok := invoices.Conditions.Root.(*models.Branch)
	require.True(t, ok)
	assert.Equal(t, models.BranchAnd, branch.Op)
	assert.Len(t, branch.Children, 2)

	require.Len(t, invoices.Actions, 1)
	assert.Equal(t, "invoice {{.entity.id}} needs review", invoices.Actions[0].Config["message"])

	digest := workflows[1]
	assert.False(t, digest.Enabled)
	require.Len(t, digest.ScheduleTriggers(), 1)
	assert.Equal(t, "CRON_TZ=Europe/Berlin 0 2 * * *", digest.ScheduleTriggers()[0].Spec())
}

func TestParseWorkflows_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  string
	}{
		{"empty", "workflows: []", "no workflows defined"},
		{"not yaml", "workflows: [", "failed to parse YAML"},
		{"unknown trigger", "workflows:\n  - name: x\n    triggers:\n      - type: WEBHOOK\n", "workflows[0]"},
		{"bad condition", "workflows:\n  - name: x\n    conditions:\n      op: XOR\n      children: []\n", "workflows[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorkflows([]byte(tt.data))
			require.ErrorContains(t, err, tt.err)
		})
	}
}

func TestLoadWorkflows_MissingFile(t *testing.T) {
	_, err := LoadWorkflows("testdata/missing.yaml")
	require.ErrorContains(t, err, "failed to read workflows file")
}

func TestImport_Upserts(t *testing.T) {
	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))
	reg.RegisterAction(logaction.NewActionFactory())

	store := services.NewWorkflow(file.NewPersistence(t.TempDir()), reg)

	workflows, err := LoadWorkflows("testdata/workflows.yaml")
	require.NoError(t, err)

	result, err := Import(t.Context(), store, workflows)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 2}, result)

	stored, err := store.FetchByID(t.Context(), "flag-large-invoices")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)

	again, err := LoadWorkflows("testdata/workflows.yaml")
	require.NoError(t, err)

	result, err = Import(t.Context(), store, again[:1])
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Updated: 1}, result)

	stored, err = store.FetchByID(t.Context(), "flag-large-invoices")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestImport_StopsAtInvalidWorkflow(t *testing.T) {
	store := services.NewWorkflow(file.NewPersistence(t.TempDir()), registry.NewRegistry(slog.New(slog.DiscardHandler)))

	workflows, err := LoadWorkflows("testdata/workflows.yaml")
	require.NoError(t, err)

	_, err = Import(t.Context(), store, workflows)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}
