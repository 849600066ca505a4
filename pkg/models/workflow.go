// Package models defines the core domain models for rule-based workflow automation
package models

import (
	"sort"
	"time"
)

// Workflow represents a named automation rule: triggers, an optional condition tree and ordered actions.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                 validate:"required,min=3"`
	Description string          `json:"description"`
	Enabled     bool            `json:"enabled"`
	Version     int             `json:"version"`
	Triggers    []TriggerConfig `json:"triggers"             validate:"required,min=1"`
	Conditions  *ConditionTree  `json:"conditions,omitempty"`
	Actions     []*ActionConfig `json:"actions"              validate:"dive"`
	Priority    int             `json:"priority"`
	CreatedBy   string          `json:"created_by"`

	// Counters are written only by the execution recorder.
	ExecutionCount  int64      `json:"execution_count"`
	SuccessCount    int64      `json:"success_count"`
	FailureCount    int64      `json:"failure_count"`
	LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderedActions returns the actions sorted by Order, ties keeping list position.
func (w *Workflow) OrderedActions() []*ActionConfig {
	ordered := make([]*ActionConfig, len(w.Actions))
	copy(ordered, w.Actions)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	return ordered
}

// ScheduleTriggers returns the SCHEDULE triggers of the workflow.
func (w *Workflow) ScheduleTriggers() []*ScheduleTrigger {
	var schedules []*ScheduleTrigger

	for _, t := range w.Triggers {
		if s, ok := t.Trigger.(*ScheduleTrigger); ok {
			schedules = append(schedules, s)
		}
	}

	return schedules
}

// CounterDelta is the change applied to workflow counters when an execution is sealed.
type CounterDelta struct {
	Executions int64
	Successes  int64
	Failures   int64
	At         time.Time
}

// DeltaFor returns the counter delta for a terminal status. PARTIAL counts as a failure.
func DeltaFor(status ExecutionStatus, at time.Time) CounterDelta {
	delta := CounterDelta{Executions: 1, At: at}

	if status == ExecutionStatusSuccess {
		delta.Successes = 1
	} else {
		delta.Failures = 1
	}

	return delta
}

// Apply adds the delta to the workflow counters.
func (w *Workflow) Apply(delta CounterDelta) {
	w.ExecutionCount += delta.Executions
	w.SuccessCount += delta.Successes
	w.FailureCount += delta.Failures

	if w.LastExecutionAt == nil || delta.At.After(*w.LastExecutionAt) {
		at := delta.At
		w.LastExecutionAt = &at
	}
}
