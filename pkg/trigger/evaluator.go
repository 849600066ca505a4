// Package trigger decides whether a workflow's triggers match an execution context.
package trigger

import (
	"github.com/dukex/flowrun/pkg/condition"
	"github.com/dukex/flowrun/pkg/models"
)

// Match reports whether a single trigger matched, by position in the workflow's trigger list.
type Match struct {
	Index   int                `json:"index"`
	Type    models.TriggerType `json:"type"`
	Event   string             `json:"event,omitempty"`
	Matched bool               `json:"matched"`
}

// Matches reports whether any trigger matches the context.
func Matches(triggers []models.TriggerConfig, execCtx models.ExecutionContext) bool {
	for _, t := range triggers {
		if MatchOne(t.Trigger, execCtx) {
			return true
		}
	}

	return false
}

// Explain evaluates every trigger and reports each result. Unlike Matches it never stops early.
func Explain(triggers []models.TriggerConfig, execCtx models.ExecutionContext) []Match {
	matches := make([]Match, 0, len(triggers))

	for i, t := range triggers {
		match := Match{Index: i, Matched: MatchOne(t.Trigger, execCtx)}

		if t.Trigger != nil {
			match.Type = t.Type()
		}

		if event, ok := t.Trigger.(*models.EventTrigger); ok {
			match.Event = event.Event
		}

		matches = append(matches, match)
	}

	return matches
}

// AnyMatched reports whether an explanation contains a match.
func AnyMatched(matches []Match) bool {
	for _, m := range matches {
		if m.Matched {
			return true
		}
	}

	return false
}

// MatchOne evaluates a single trigger.
func MatchOne(t models.Trigger, execCtx models.ExecutionContext) bool {
	switch trig := t.(type) {
	case *models.EventTrigger:
		return matchEvent(trig, execCtx)
	case *models.ManualTrigger:
		return execCtx.TriggeredBy == models.TriggerTypeManual
	case *models.TestTrigger:
		return execCtx.TriggeredBy == models.TriggerTypeTest
	case *models.ScheduleTrigger:
		return execCtx.TriggeredBy == models.TriggerTypeSchedule
	default:
		return false
	}
}

func matchEvent(t *models.EventTrigger, execCtx models.ExecutionContext) bool {
	if execCtx.TriggeredBy != models.TriggerTypeEvent {
		return false
	}

	if execCtx.Event != t.Event {
		return false
	}

	if t.EntityType != "" && execCtx.EntityType != t.EntityType {
		return false
	}

	for _, field := range t.Fields {
		if !condition.EvaluateLeaf(field, execCtx) {
			return false
		}
	}

	return true
}
