// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/actions/httprequest"
	logaction "github.com/dukex/flowrun/pkg/actions/log"
	"github.com/dukex/flowrun/pkg/actions/notify"
	"github.com/dukex/flowrun/pkg/actions/publish"
	"github.com/dukex/flowrun/pkg/actions/setfield"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/registry"
)

func registerActionPlugins(ctx context.Context, reg *registry.Registry, pluginsPath string) error {
	actionPlugins, err := reg.LoadActionPlugins(ctx, pluginsPath)
	if err != nil {
		return fmt.Errorf("failed to load action plugins: %w", err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry, logger *slog.Logger, publisher eventbus.EventPublisher) {
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(httprequest.NewActionFactory(nil))
	reg.RegisterAction(notify.NewActionFactory(notify.LogSender{Logger: logger.With("module", "notify")}))
	reg.RegisterAction(setfield.NewActionFactory(setfield.EventMutator{Publisher: publisher}))
	reg.RegisterAction(publish.NewActionFactory(publisher))
}

// NewRegistry registers the built-in actions and any plugins found under pluginsPath.
// Plugins may replace built-ins with the same type.
func NewRegistry(
	ctx context.Context,
	logger *slog.Logger,
	pluginsPath string,
	publisher eventbus.EventPublisher,
) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	registerNativeActions(reg, logger, publisher)

	if pluginsPath != "" {
		err := registerActionPlugins(ctx, reg, pluginsPath)
		if err != nil {
			return nil, err
		}
	}

	return reg, nil
}
