package condition

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
)

const (
	rootEntity   = "entity"
	rootMetadata = "metadata"
	rootUser     = "user"
)

// Resolve looks up a dotted path in the execution context. Paths may be rooted explicitly
// ("entity.amount", "metadata.source", "user.id"); unrooted paths are looked up in the
// entity first and then in the metadata.
func Resolve(field string, execCtx models.ExecutionContext) (any, bool) {
	segments := strings.Split(field, ".")

	if len(segments) > 1 {
		switch segments[0] {
		case rootEntity:
			return lookup(execCtx.Entity, segments[1:])
		case rootMetadata:
			return lookup(execCtx.Metadata, segments[1:])
		case rootUser:
			if execCtx.User == nil {
				return nil, false
			}

			return lookup(map[string]any{
				"id":    execCtx.User.ID,
				"email": execCtx.User.Email,
				"role":  execCtx.User.Role,
			}, segments[1:])
		}
	}

	if value, ok := lookup(execCtx.Entity, segments); ok {
		return value, true
	}

	return lookup(execCtx.Metadata, segments)
}

func lookup(root map[string]any, segments []string) (any, bool) {
	if root == nil {
		return nil, false
	}

	var current any = root

	for _, segment := range segments {
		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func step(current any, segment string) (any, bool) {
	switch node := current.(type) {
	case map[string]any:
		value, ok := node[segment]

		return value, ok
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(node) {
			return nil, false
		}

		return node[index], true
	case nil:
		return nil, false
	}

	v := reflect.ValueOf(current)

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		value := v.MapIndex(reflect.ValueOf(segment).Convert(v.Type().Key()))
		if !value.IsValid() {
			return nil, false
		}

		return value.Interface(), true
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= v.Len() {
			return nil, false
		}

		return v.Index(index).Interface(), true
	default:
		return nil, false
	}
}
