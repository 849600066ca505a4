// Package registry keeps the action factories known to the engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var ErrActionNotRegistered = errors.New("unknown action type")

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

// LoadActionPlugins opens every *.so under pluginsPath/actions and looks up its exported "Action" factory.
func (r *Registry) LoadActionPlugins(ctx context.Context, pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](ctx, r.logger, pluginsPath, "Action")
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
}

// HasAction reports whether a factory is registered for the action type.
func (r *Registry) HasAction(actionType string) bool {
	_, ok := r.factory(actionType)

	return ok
}

// CreateAction builds an action from its stored configuration.
func (r *Registry) CreateAction(ctx context.Context, actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.factory(actionType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotRegistered, actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	return factory.Create(ctx, config)
}

// ValidateActionConfig checks an action configuration against the factory's JSON schema.
func (r *Registry) ValidateActionConfig(actionType string, config map[string]any) error {
	factory, ok := r.factory(actionType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionNotRegistered, actionType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("validating %s config: %w", actionType, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return protocol.ConfigError("%s: %s", actionType, strings.Join(messages, "; "))
}

// AvailableActions describes every registered action type, sorted by type.
func (r *Registry) AvailableActions() []*models.RegisteredComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]*models.RegisteredComponent, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		components = append(components, &models.RegisteredComponent{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].Type < components[j].Type
	})

	return components
}

// HealthCheck reports whether any action type is available.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.actionFactories) == 0 {
		return "No action types registered", false
	}

	return fmt.Sprintf("%d action types registered", len(r.actionFactories)), true
}

func (r *Registry) factory(actionType string) (protocol.ActionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.actionFactories[actionType]

	return factory, ok
}

func loadPlugin[T any](ctx context.Context, logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	_, err := os.Stat(rootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.InfoContext(ctx, "Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("opening plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		castV, ok := v.(T)
		if !ok {
			castPtr, ok := v.(*T)
			if !ok {
				return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
			}

			castV = *castPtr
		}

		pluginList = append(pluginList, castV)

		l.InfoContext(ctx, "Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
