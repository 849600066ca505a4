package models

import "time"

// Actor identifies the user behind an invocation.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// ExecutionContext is built per invocation and never persisted verbatim.
type ExecutionContext struct {
	TriggeredBy   TriggerType    `json:"triggered_by"`
	TriggerSource string         `json:"trigger_source,omitempty"`
	Event         string         `json:"event,omitempty"`
	EntityType    string         `json:"entity_type,omitempty"`
	Entity        map[string]any `json:"entity,omitempty"`
	User          *Actor         `json:"user,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Summary returns the subset of the context stored on an execution record.
func (c ExecutionContext) Summary() map[string]any {
	summary := map[string]any{
		"triggered_by": string(c.TriggeredBy),
	}

	if c.Event != "" {
		summary["event"] = c.Event
	}

	if c.EntityType != "" {
		summary["entity_type"] = c.EntityType
	}

	if id, ok := c.Entity["id"]; ok {
		summary["entity_id"] = id
	}

	if c.User != nil {
		summary["user_id"] = c.User.ID
	}

	return summary
}

// TemplateData exposes the context to action templates.
func (c ExecutionContext) TemplateData() map[string]any {
	data := map[string]any{
		"entity":         c.Entity,
		"metadata":       c.Metadata,
		"event":          c.Event,
		"entity_type":    c.EntityType,
		"triggered_by":   string(c.TriggeredBy),
		"trigger_source": c.TriggerSource,
		"timestamp":      c.Timestamp,
	}

	if c.User != nil {
		data["user"] = map[string]any{
			"id":    c.User.ID,
			"email": c.User.Email,
			"role":  c.User.Role,
		}
	}

	return data
}
