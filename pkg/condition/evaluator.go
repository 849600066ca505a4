// Package condition evaluates condition trees against an execution context.
package condition

import "github.com/dukex/flowrun/pkg/models"

// Evaluate reports whether the tree holds for the context. A nil tree always holds.
// Evaluation is pure and short-circuits: AND stops at the first false child, OR at the first true one.
func Evaluate(tree *models.ConditionTree, execCtx models.ExecutionContext) bool {
	if tree == nil || tree.Root == nil {
		return true
	}

	return EvaluateNode(tree.Root, execCtx)
}

// EvaluateNode evaluates a single condition node.
func EvaluateNode(node models.Condition, execCtx models.ExecutionContext) bool {
	switch n := node.(type) {
	case *models.Leaf:
		return EvaluateLeaf(n, execCtx)
	case *models.Branch:
		return evaluateBranch(n, execCtx)
	default:
		return false
	}
}

// EvaluateLeaf resolves the leaf's field and applies its operator.
func EvaluateLeaf(leaf *models.Leaf, execCtx models.ExecutionContext) bool {
	resolved, found := Resolve(leaf.Field, execCtx)

	return Compare(resolved, found, leaf)
}

func evaluateBranch(branch *models.Branch, execCtx models.ExecutionContext) bool {
	switch branch.Op {
	case models.BranchAnd:
		for _, child := range branch.Children {
			if !EvaluateNode(child, execCtx) {
				return false
			}
		}

		return len(branch.Children) > 0
	case models.BranchOr:
		for _, child := range branch.Children {
			if EvaluateNode(child, execCtx) {
				return true
			}
		}

		return false
	case models.BranchNot:
		if len(branch.Children) != 1 {
			return false
		}

		return !EvaluateNode(branch.Children[0], execCtx)
	default:
		return false
	}
}
