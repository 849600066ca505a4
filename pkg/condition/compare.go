package condition

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
)

// Compare applies a leaf operator to a resolved value. found reports whether the
// leaf's field was present; a missing field fails every operator.
// A field present with a null value is a value for equals and notEquals only:
// exists and the other operators fail on it.
func Compare(resolved any, found bool, leaf *models.Leaf) bool {
	if !found {
		return false
	}

	if resolved == nil {
		switch leaf.Operator {
		case models.OperatorEquals:
			return leaf.Value == nil
		case models.OperatorNotEquals:
			return leaf.Value != nil
		default:
			return false
		}
	}

	switch leaf.Operator {
	case models.OperatorExists:
		return true
	case models.OperatorEquals:
		return equal(resolved, leaf.Value)
	case models.OperatorNotEquals:
		return !equal(resolved, leaf.Value)
	case models.OperatorGreaterThan:
		left, right, ok := numbers(resolved, leaf.Value)

		return ok && left > right
	case models.OperatorLessThan:
		left, right, ok := numbers(resolved, leaf.Value)

		return ok && left < right
	case models.OperatorContains:
		return contains(resolved, leaf.Value)
	case models.OperatorIn:
		return member(resolved, leaf.Value)
	default:
		return false
	}
}

func numbers(left, right any) (float64, float64, bool) {
	l, ok := toNumber(left)
	if !ok {
		return 0, 0, false
	}

	r, ok := toNumber(right)
	if !ok {
		return 0, 0, false
	}

	return l, r, true
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func isNumeric(value any) bool {
	if _, ok := value.(string); ok {
		return false
	}

	_, ok := toNumber(value)

	return ok
}

// equal compares numbers numerically when either side is a number, everything else structurally.
func equal(left, right any) bool {
	if isNumeric(left) || isNumeric(right) {
		l, r, ok := numbers(left, right)

		return ok && l == r
	}

	return reflect.DeepEqual(left, right)
}

func contains(resolved, value any) bool {
	if s, ok := resolved.(string); ok {
		needle, ok := value.(string)

		return ok && strings.Contains(s, needle)
	}

	items, ok := sequence(resolved)
	if !ok {
		return false
	}

	for _, item := range items {
		if equal(item, value) {
			return true
		}
	}

	return false
}

func member(resolved, value any) bool {
	items, ok := sequence(value)
	if !ok {
		return false
	}

	for _, item := range items {
		if equal(resolved, item) {
			return true
		}
	}

	return false
}

func sequence(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}

	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}

	return items, true
}
