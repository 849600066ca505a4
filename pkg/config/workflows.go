// Package config loads workflow definitions from YAML files so they can be kept in version control.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"gopkg.in/yaml.v3"
)

var ErrNoWorkflows = errors.New("no workflows defined")

// WorkflowFile is the layout of a workflows YAML file. Each entry uses the same fields as the
// JSON API; "enabled" defaults to true.
type WorkflowFile struct {
	Workflows []map[string]any `yaml:"workflows"`
}

// LoadWorkflows reads and parses a workflows YAML file.
func LoadWorkflows(path string) ([]*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows file %s: %w", path, err)
	}

	return ParseWorkflows(data)
}

// ParseWorkflows decodes YAML workflow definitions through the JSON form of models.Workflow,
// so triggers and condition trees are parsed by the same code as API requests.
func ParseWorkflows(data []byte) ([]*models.Workflow, error) {
	var file WorkflowFile

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(file.Workflows) == 0 {
		return nil, ErrNoWorkflows
	}

	workflows := make([]*models.Workflow, 0, len(file.Workflows))

	for i, definition := range file.Workflows {
		if _, ok := definition["enabled"]; !ok {
			definition["enabled"] = true
		}

		raw, err := json.Marshal(definition)
		if err != nil {
			return nil, fmt.Errorf("workflows[%d]: %w", i, err)
		}

		var workflow models.Workflow

		err = json.Unmarshal(raw, &workflow)
		if err != nil {
			return nil, fmt.Errorf("workflows[%d]: %w", i, err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

// WorkflowStore is the part of services.Workflow used by Import.
type WorkflowStore interface {
	FetchByID(ctx context.Context, id string) (*models.Workflow, error)
	Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error)
}

type ImportResult struct {
	Created int
	Updated int
}

// Import upserts the workflows: entries with the id of a stored workflow update it, others are created.
// It stops at the first invalid workflow.
func Import(ctx context.Context, store WorkflowStore, workflows []*models.Workflow) (ImportResult, error) {
	var result ImportResult

	for _, workflow := range workflows {
		if workflow.ID != "" {
			_, err := store.FetchByID(ctx, workflow.ID)

			switch {
			case err == nil:
				_, err = store.Update(ctx, workflow.ID, workflow)
				if err != nil {
					return result, fmt.Errorf("updating workflow %s: %w", workflow.ID, err)
				}

				result.Updated++

				continue
			case !errors.Is(err, persistence.ErrWorkflowNotFound):
				return result, err
			}
		}

		_, err := store.Create(ctx, workflow)
		if err != nil {
			return result, fmt.Errorf("creating workflow %q: %w", workflow.Name, err)
		}

		result.Created++
	}

	return result, nil
}
