package models

// ActionConfig is one configured action of a workflow. Config is validated against the
// handler's schema when the workflow is saved.
type ActionConfig struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"   validate:"required"`
	Order  int            `json:"order"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config"`
}

// ActionOutcome is the recorded result of one action within an execution.
type ActionOutcome struct {
	ActionID   string `json:"action_id"`
	Type       string `json:"type"`
	Order      int    `json:"order"`
	Success    bool   `json:"success"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	Output     any    `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
