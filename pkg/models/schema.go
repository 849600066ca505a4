package models

// RegisteredComponent describes a registered action type and the JSON schema of its configuration.
type RegisteredComponent struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
