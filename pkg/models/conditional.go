package models

import (
	"encoding/json"
	"errors"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "notEquals"
	OperatorGreaterThan Operator = "greaterThan"
	OperatorLessThan    Operator = "lessThan"
	OperatorContains    Operator = "contains"
	OperatorIn          Operator = "in"
	OperatorExists      Operator = "exists"
)

// Operators lists every supported leaf operator.
var Operators = []Operator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorContains,
	OperatorIn,
	OperatorExists,
}

// BranchOp is a boolean combinator.
type BranchOp string

const (
	BranchAnd BranchOp = "AND"
	BranchOr  BranchOp = "OR"
	BranchNot BranchOp = "NOT"
)

// MaxConditionDepth bounds the nesting accepted by the parser.
const MaxConditionDepth = 32

var ErrInvalidCondition = errors.New("invalid condition")

// Condition is a node of a condition tree: either a *Leaf or a *Branch.
type Condition interface {
	condition()
}

// Leaf compares the value found at Field against Value.
type Leaf struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Branch combines child conditions. NOT has exactly one child, AND/OR one or more.
type Branch struct {
	Op       BranchOp    `json:"op"`
	Children []Condition `json:"children"`
}

func (*Leaf) condition()   {}
func (*Branch) condition() {}

// ConditionTree wraps the root condition so it can be stored and decoded as JSON.
// A nil tree, or a tree with a nil Root, always passes.
type ConditionTree struct {
	Root Condition
}

// NewConditionTree wraps root in a tree.
func NewConditionTree(root Condition) *ConditionTree {
	return &ConditionTree{Root: root}
}

// And builds an AND branch.
func And(children ...Condition) *Branch {
	return &Branch{Op: BranchAnd, Children: children}
}

// Or builds an OR branch.
func Or(children ...Condition) *Branch {
	return &Branch{Op: BranchOr, Children: children}
}

// Not builds a NOT branch.
func Not(child Condition) *Branch {
	return &Branch{Op: BranchNot, Children: []Condition{child}}
}

// Compare builds a leaf.
func Compare(field string, op Operator, value any) *Leaf {
	return &Leaf{Field: field, Operator: op, Value: value}
}

func (t ConditionTree) MarshalJSON() ([]byte, error) {
	if t.Root == nil {
		return []byte("null"), nil
	}

	return json.Marshal(t.Root)
}

func (t *ConditionTree) UnmarshalJSON(data []byte) error {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	if raw == nil {
		t.Root = nil

		return nil
	}

	root, err := ParseCondition(raw)
	if err != nil {
		return err
	}

	t.Root = root

	return nil
}
