package models

import (
	"encoding/json"
	"errors"
)

// TriggerType tags both trigger configurations and the origin of an execution context.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "EVENT"
	TriggerTypeManual   TriggerType = "MANUAL"
	TriggerTypeTest     TriggerType = "TEST"
	TriggerTypeSchedule TriggerType = "SCHEDULE"
)

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{
	TriggerTypeEvent,
	TriggerTypeManual,
	TriggerTypeTest,
	TriggerTypeSchedule,
}

var ErrInvalidTrigger = errors.New("invalid trigger")

// Trigger is one of *EventTrigger, *ManualTrigger, *TestTrigger or *ScheduleTrigger.
type Trigger interface {
	Type() TriggerType
}

// EventTrigger matches a domain event by name and entity type, optionally narrowed by field leaves.
type EventTrigger struct {
	Event      string  `json:"event"`
	EntityType string  `json:"entity_type,omitempty"`
	Fields     []*Leaf `json:"fields,omitempty"`
}

// ManualTrigger matches contexts triggered by MANUAL.
type ManualTrigger struct{}

// TestTrigger matches contexts triggered by TEST.
type TestTrigger struct{}

// ScheduleTrigger matches contexts triggered by SCHEDULE. Cron is dispatched by an external scheduler.
type ScheduleTrigger struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

func (*EventTrigger) Type() TriggerType    { return TriggerTypeEvent }
func (*ManualTrigger) Type() TriggerType   { return TriggerTypeManual }
func (*TestTrigger) Type() TriggerType     { return TriggerTypeTest }
func (*ScheduleTrigger) Type() TriggerType { return TriggerTypeSchedule }

// TriggerConfig is the stored form of a trigger.
type TriggerConfig struct {
	Trigger
}

// NewTriggerConfig wraps a trigger.
func NewTriggerConfig(t Trigger) TriggerConfig {
	return TriggerConfig{Trigger: t}
}

type triggerWire struct {
	Type       TriggerType `json:"type"`
	Event      string      `json:"event,omitempty"`
	EntityType string      `json:"entity_type,omitempty"`
	Fields     []*Leaf     `json:"fields,omitempty"`
	Cron       string      `json:"cron,omitempty"`
	Timezone   string      `json:"timezone,omitempty"`
}

func (c TriggerConfig) MarshalJSON() ([]byte, error) {
	if c.Trigger == nil {
		return []byte("null"), nil
	}

	wire := triggerWire{Type: c.Type()}

	switch t := c.Trigger.(type) {
	case *EventTrigger:
		wire.Event = t.Event
		wire.EntityType = t.EntityType
		wire.Fields = t.Fields
	case *ScheduleTrigger:
		wire.Cron = t.Cron
		wire.Timezone = t.Timezone
	}

	return json.Marshal(wire)
}

// UnmarshalJSON decodes the tagged form. Schedules are not resolved here; see ValidateTrigger.
func (c *TriggerConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	trigger, err := decodeTrigger(raw)
	if err != nil {
		return err
	}

	c.Trigger = trigger

	return nil
}
