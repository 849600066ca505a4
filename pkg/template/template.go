// Package template renders action configuration strings against an execution context.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(maxValue int) int {
		if maxValue <= 0 {
			return 0
		}

		num := make([]byte, 1)

		_, err := rand.Read(num)
		if err != nil {
			return 0
		}

		return int(num[0]) % maxValue
	},
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)

		return string(b), err
	},
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}

		return v
	},
}

// RenderWithContext renders input with entity, metadata, user and event fields of the context.
func RenderWithContext(input string, execCtx *models.ExecutionContext) (any, error) {
	return Render(input, execCtx.TemplateData())
}

// RenderString renders input and always returns the raw text output.
func RenderString(input string, execCtx *models.ExecutionContext) (string, error) {
	if !NeedsTemplating(input) {
		return input, nil
	}

	return execute(input, execCtx.TemplateData())
}

// RenderValue renders every string inside value, walking nested maps and lists.
func RenderValue(value any, execCtx *models.ExecutionContext) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return RenderWithContext(v, execCtx)
	case map[string]any:
		rendered := make(map[string]any, len(v))

		for key, item := range v {
			out, err := RenderValue(item, execCtx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			rendered[key] = out
		}

		return rendered, nil
	case []any:
		rendered := make([]any, len(v))

		for i, item := range v {
			out, err := RenderValue(item, execCtx)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}

			rendered[i] = out
		}

		return rendered, nil
	default:
		return value, nil
	}
}

// NeedsTemplating reports whether input contains a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Render executes the template and decodes JSON objects, numbers and booleans out of the result.
func Render(templateStr string, data any) (any, error) {
	result, err := execute(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return result, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func execute(templateStr string, data any) (string, error) {
	tmpl, err := template.New("action").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
