package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requiredTag = "required"

func validWorkflow() *Workflow {
	return &Workflow{
		ID:       "wf-1",
		Name:     "Flag large invoices",
		Enabled:  true,
		Version:  1,
		Triggers: []TriggerConfig{NewTriggerConfig(&ManualTrigger{})},
		Actions: []*ActionConfig{
			{ID: "a1", Type: "log", Order: 1},
		},
	}
}

func TestWorkflow_Validation_Valid(t *testing.T) {
	err := validator.New().Struct(validWorkflow())
	assert.NoError(t, err)
}

func TestWorkflow_Validation_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *Workflow)
		field  string
		tag    string
	}{
		{"missing name", func(w *Workflow) { w.Name = "" }, "Name", requiredTag},
		{"short name", func(w *Workflow) { w.Name = "ab" }, "Name", "min"},
		{"no triggers", func(w *Workflow) { w.Triggers = nil }, "Triggers", requiredTag},
		{"action without type", func(w *Workflow) { w.Actions[0].Type = "" }, "Type", requiredTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := validWorkflow()
			tt.mutate(workflow)

			err := validator.New().Struct(workflow)
			require.Error(t, err)

			var validationErrors validator.ValidationErrors
			require.True(t, errors.As(err, &validationErrors))

			found := false

			for _, fieldErr := range validationErrors {
				if fieldErr.Field() == tt.field && fieldErr.Tag() == tt.tag {
					found = true

					break
				}
			}

			assert.True(t, found, "expected %s error on %s, got %v", tt.tag, tt.field, err)
		})
	}
}

func TestWorkflow_OrderedActionsIsStable(t *testing.T) {
	workflow := &Workflow{
		Actions: []*ActionConfig{
			{ID: "c", Order: 2},
			{ID: "a", Order: 1},
			{ID: "d", Order: 2},
			{ID: "b", Order: 1},
		},
	}

	ordered := workflow.OrderedActions()

	ids := make([]string, 0, len(ordered))
	for _, action := range ordered {
		ids = append(ids, action.ID)
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, "c", workflow.Actions[0].ID, "original slice must not be reordered")
}

func TestWorkflow_ApplyCounters(t *testing.T) {
	workflow := validWorkflow()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	workflow.Apply(DeltaFor(ExecutionStatusSuccess, second))
	workflow.Apply(DeltaFor(ExecutionStatusPartial, first))
	workflow.Apply(DeltaFor(ExecutionStatusFailed, first))

	assert.Equal(t, int64(3), workflow.ExecutionCount)
	assert.Equal(t, int64(1), workflow.SuccessCount)
	assert.Equal(t, int64(2), workflow.FailureCount)
	assert.Equal(t, workflow.ExecutionCount, workflow.SuccessCount+workflow.FailureCount)
	require.NotNil(t, workflow.LastExecutionAt)
	assert.Equal(t, second, *workflow.LastExecutionAt)
}

func TestTerminalStatus(t *testing.T) {
	assert.Equal(t, ExecutionStatusSuccess, TerminalStatus(0, 0))
	assert.Equal(t, ExecutionStatusSuccess, TerminalStatus(3, 0))
	assert.Equal(t, ExecutionStatusFailed, TerminalStatus(0, 2))
	assert.Equal(t, ExecutionStatusPartial, TerminalStatus(1, 1))
}

func TestWorkflowExecution_RecordAndSeal(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	execution := &WorkflowExecution{ID: "ex-1", Status: ExecutionStatusRunning, StartedAt: started}

	execution.Record(&ActionOutcome{ActionID: "a1", Success: true, Attempts: 1})
	execution.Record(&ActionOutcome{ActionID: "a2", Success: false, Attempts: 3})

	assert.Equal(t, 2, execution.ActionsExecuted)
	assert.Equal(t, 1, execution.ActionsSuccess)
	assert.Equal(t, 1, execution.ActionsFailed)
	assert.Equal(t, 2, execution.RetryCount)
	assert.Len(t, execution.ActionResults, 2)

	assert.True(t, execution.Seal(started.Add(1500*time.Millisecond)))
	assert.Equal(t, ExecutionStatusPartial, execution.Status)
	assert.Equal(t, int64(1500), execution.DurationMs)
	require.NotNil(t, execution.CompletedAt)

	assert.False(t, execution.Seal(started.Add(time.Hour)), "sealed executions stay sealed")
	assert.Equal(t, int64(1500), execution.DurationMs)
}

func TestExecutionContext_Summary(t *testing.T) {
	execCtx := ExecutionContext{
		TriggeredBy: TriggerTypeEvent,
		Event:       "invoice.created",
		EntityType:  "invoice",
		Entity:      map[string]any{"id": "inv-9", "amount": 10},
		User:        &Actor{ID: "u-1", Email: "ops@example.com"},
		Metadata:    map[string]any{"secret": "x"},
	}

	assert.Equal(t, map[string]any{
		"triggered_by": "EVENT",
		"event":        "invoice.created",
		"entity_type":  "invoice",
		"entity_id":    "inv-9",
		"user_id":      "u-1",
	}, execCtx.Summary())
}

func TestParseCondition_Valid(t *testing.T) {
	raw := map[string]any{
		"op": "and",
		"children": []any{
			map[string]any{"field": "amount", "operator": "greaterThan", "value": 10},
			map[string]any{
				"op":       "NOT",
				"children": []any{map[string]any{"field": "status", "operator": "in", "value": []any{"closed"}}},
			},
		},
	}

	condition, err := ParseCondition(raw)
	require.NoError(t, err)

	branch, ok := condition.(*Branch)
	require.True(t, ok)
	assert.Equal(t, BranchAnd, branch.Op)
	require.Len(t, branch.Children, 2)
	assert.Equal(t, Compare("amount", OperatorGreaterThan, 10), branch.Children[0])
}

func TestParseCondition_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"not an object", "amount > 10"},
		{"empty field", map[string]any{"field": "", "operator": "equals", "value": 1}},
		{"unknown operator", map[string]any{"field": "a", "operator": "startsWith", "value": "x"}},
		{"in without list", map[string]any{"field": "a", "operator": "in", "value": "x"}},
		{"not with two children", map[string]any{"op": "NOT", "children": []any{
			map[string]any{"field": "a", "operator": "exists"},
			map[string]any{"field": "b", "operator": "exists"},
		}}},
		{"empty and", map[string]any{"op": "AND", "children": []any{}}},
		{"missing children", map[string]any{"op": "OR"}},
		{"unknown op", map[string]any{"op": "XOR", "children": []any{map[string]any{"field": "a", "operator": "exists"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidCondition)
		})
	}
}

func TestParseCondition_DepthLimit(t *testing.T) {
	var node any = map[string]any{"field": "a", "operator": "exists"}

	for range MaxConditionDepth {
		node = map[string]any{"op": "NOT", "children": []any{node}}
	}

	_, err := ParseCondition(node)
	assert.ErrorIs(t, err, ErrInvalidCondition)
	assert.Contains(t, err.Error(), "deeper than")
}

func TestConditionTree_JSONRoundTrip(t *testing.T) {
	tree := NewConditionTree(Or(
		Compare("amount", OperatorGreaterThan, 1000.0),
		Not(Compare("tags", OperatorContains, "vip")),
	))

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var decoded ConditionTree

	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, tree.Root, decoded.Root)

	err = json.Unmarshal([]byte("null"), &decoded)
	require.NoError(t, err)
	assert.Nil(t, decoded.Root)
}

func TestParseTrigger(t *testing.T) {
	trigger, err := ParseTrigger(map[string]any{
		"type":        "event",
		"event":       "invoice.created",
		"entity_type": "invoice",
		"fields":      []any{map[string]any{"field": "amount", "operator": "greaterThan", "value": 100}},
	})
	require.NoError(t, err)

	event, ok := trigger.(*EventTrigger)
	require.True(t, ok)
	assert.Equal(t, "invoice.created", event.Event)
	assert.Equal(t, "invoice", event.EntityType)
	require.Len(t, event.Fields, 1)

	trigger, err = ParseTrigger(map[string]any{"type": "SCHEDULE", "cron": "0 9 * * 1", "timezone": "Europe/Lisbon"})
	require.NoError(t, err)
	assert.Equal(t, TriggerTypeSchedule, trigger.Type())
}

func TestParseTrigger_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown type", map[string]any{"type": "WEBHOOK"}},
		{"event without name", map[string]any{"type": "EVENT"}},
		{"event with bad field", map[string]any{"type": "EVENT", "event": "x", "fields": []any{
			map[string]any{"field": "a", "operator": "like"},
		}}},
		{"invalid cron", map[string]any{"type": "SCHEDULE", "cron": "every day"}},
		{"invalid timezone", map[string]any{"type": "SCHEDULE", "cron": "@daily", "timezone": "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrigger(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidTrigger)
		})
	}
}

func TestTriggerConfig_UnmarshalDefersScheduleChecks(t *testing.T) {
	var decoded []TriggerConfig

	err := json.Unmarshal([]byte(`[{"type":"SCHEDULE","cron":"not a cron","timezone":"Mars/Olympus"}]`), &decoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	schedule, ok := decoded[0].Trigger.(*ScheduleTrigger)
	require.True(t, ok)
	assert.Equal(t, "not a cron", schedule.Cron)
	assert.ErrorIs(t, ValidateTrigger(schedule), ErrInvalidTrigger)

	err = json.Unmarshal([]byte(`[{"type":"WEBHOOK"}]`), &decoded)
	assert.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestTriggerConfig_JSONRoundTrip(t *testing.T) {
	triggers := []TriggerConfig{
		NewTriggerConfig(&EventTrigger{Event: "order.paid", EntityType: "order"}),
		NewTriggerConfig(&ManualTrigger{}),
		NewTriggerConfig(&TestTrigger{}),
		NewTriggerConfig(&ScheduleTrigger{Cron: "*/5 * * * *"}),
	}

	data, err := json.Marshal(triggers)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"type":"SCHEDULE"`))

	var decoded []TriggerConfig

	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, triggers, decoded)
}

func TestScheduleTrigger_NextAfter(t *testing.T) {
	schedule := &ScheduleTrigger{Cron: "0 9 * * *", Timezone: "America/Sao_Paulo"}

	next, err := schedule.NextAfter(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), next)
	assert.Equal(t, "CRON_TZ=America/Sao_Paulo 0 9 * * *", schedule.Spec())
}
