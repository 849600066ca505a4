package models

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ParseCondition builds a typed condition tree from its JSON-shaped form and validates it.
// Leaves carry "field" and "operator", branches carry "op" and "children".
func ParseCondition(raw any) (Condition, error) {
	return parseCondition(raw, 1)
}

func parseCondition(raw any, depth int) (Condition, error) {
	if depth > MaxConditionDepth {
		return nil, fmt.Errorf("%w: tree deeper than %d levels", ErrInvalidCondition, MaxConditionDepth)
	}

	node, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidCondition, raw)
	}

	if _, isBranch := node["op"]; isBranch {
		return parseBranch(node, depth)
	}

	return parseLeaf(node)
}

func parseBranch(node map[string]any, depth int) (*Branch, error) {
	opStr, _ := node["op"].(string)
	op := BranchOp(strings.ToUpper(opStr))

	rawChildren, ok := node["children"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s branch requires a children list", ErrInvalidCondition, opStr)
	}

	children := make([]Condition, 0, len(rawChildren))

	for i, rawChild := range rawChildren {
		child, err := parseCondition(rawChild, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s child %d: %w", op, i, err)
		}

		children = append(children, child)
	}

	branch := &Branch{Op: op, Children: children}

	err := ValidateCondition(branch)
	if err != nil {
		return nil, err
	}

	return branch, nil
}

func parseLeaf(node map[string]any) (*Leaf, error) {
	field, _ := node["field"].(string)
	operator, _ := node["operator"].(string)

	leaf := &Leaf{
		Field:    field,
		Operator: Operator(operator),
		Value:    node["value"],
	}

	err := validateLeaf(leaf)
	if err != nil {
		return nil, err
	}

	return leaf, nil
}

// ValidateCondition checks the structural invariants of a typed tree.
func ValidateCondition(c Condition) error {
	return validateCondition(c, 1)
}

func validateCondition(c Condition, depth int) error {
	if depth > MaxConditionDepth {
		return fmt.Errorf("%w: tree deeper than %d levels", ErrInvalidCondition, MaxConditionDepth)
	}

	switch node := c.(type) {
	case *Leaf:
		return validateLeaf(node)
	case *Branch:
		switch node.Op {
		case BranchNot:
			if len(node.Children) != 1 {
				return fmt.Errorf("%w: NOT requires exactly one child, got %d", ErrInvalidCondition, len(node.Children))
			}
		case BranchAnd, BranchOr:
			if len(node.Children) == 0 {
				return fmt.Errorf("%w: %s requires at least one child", ErrInvalidCondition, node.Op)
			}
		default:
			return fmt.Errorf("%w: unknown branch op %q", ErrInvalidCondition, node.Op)
		}

		for _, child := range node.Children {
			err := validateCondition(child, depth+1)
			if err != nil {
				return err
			}
		}

		return nil
	case nil:
		return fmt.Errorf("%w: nil node", ErrInvalidCondition)
	default:
		return fmt.Errorf("%w: unsupported node %T", ErrInvalidCondition, c)
	}
}

func validateLeaf(leaf *Leaf) error {
	if strings.TrimSpace(leaf.Field) == "" {
		return fmt.Errorf("%w: leaf field is required", ErrInvalidCondition)
	}

	if !slices.Contains(Operators, leaf.Operator) {
		return fmt.Errorf("%w: unknown operator %q on field %s", ErrInvalidCondition, leaf.Operator, leaf.Field)
	}

	if leaf.Operator == OperatorIn {
		kind := reflect.ValueOf(leaf.Value).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return fmt.Errorf("%w: operator in requires a list value on field %s", ErrInvalidCondition, leaf.Field)
		}
	}

	return nil
}

// ParseTrigger builds a typed trigger from its JSON-shaped form and validates it.
func ParseTrigger(raw map[string]any) (Trigger, error) {
	trigger, err := decodeTrigger(raw)
	if err != nil {
		return nil, err
	}

	err = ValidateTrigger(trigger)
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

// decodeTrigger builds a typed trigger without resolving its cron expression or timezone, which
// depend on the host and are checked by ValidateTrigger before a workflow is stored.
func decodeTrigger(raw map[string]any) (Trigger, error) {
	typeStr, _ := raw["type"].(string)

	var trigger Trigger

	switch TriggerType(strings.ToUpper(typeStr)) {
	case TriggerTypeEvent:
		event, _ := raw["event"].(string)
		entityType, _ := raw["entity_type"].(string)

		fields, err := parseTriggerFields(raw["fields"])
		if err != nil {
			return nil, err
		}

		trigger = &EventTrigger{Event: event, EntityType: entityType, Fields: fields}
	case TriggerTypeManual:
		trigger = &ManualTrigger{}
	case TriggerTypeTest:
		trigger = &TestTrigger{}
	case TriggerTypeSchedule:
		cronExpr, _ := raw["cron"].(string)
		timezone, _ := raw["timezone"].(string)

		trigger = &ScheduleTrigger{Cron: cronExpr, Timezone: timezone}
	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, typeStr)
	}

	return trigger, nil
}

func parseTriggerFields(raw any) ([]*Leaf, error) {
	if raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: event fields must be a list", ErrInvalidTrigger)
	}

	fields := make([]*Leaf, 0, len(list))

	for i, item := range list {
		node, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: event field %d must be an object", ErrInvalidTrigger, i)
		}

		leaf, err := parseLeaf(node)
		if err != nil {
			return nil, fmt.Errorf("%w: event field %d: %w", ErrInvalidTrigger, i, err)
		}

		fields = append(fields, leaf)
	}

	return fields, nil
}

// ValidateTrigger checks a typed trigger.
func ValidateTrigger(t Trigger) error {
	switch trigger := t.(type) {
	case *EventTrigger:
		if strings.TrimSpace(trigger.Event) == "" {
			return fmt.Errorf("%w: EVENT trigger requires an event name", ErrInvalidTrigger)
		}

		for _, leaf := range trigger.Fields {
			err := validateLeaf(leaf)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
			}
		}
	case *ScheduleTrigger:
		_, err := trigger.Schedule()
		if err != nil {
			return err
		}

		_, err = trigger.Location()
		if err != nil {
			return err
		}
	case *ManualTrigger, *TestTrigger:
	case nil:
		return fmt.Errorf("%w: missing trigger", ErrInvalidTrigger)
	default:
		return fmt.Errorf("%w: unsupported trigger %T", ErrInvalidTrigger, t)
	}

	return nil
}
