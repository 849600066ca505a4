package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowrun-dispatcher",
		Usage:                 "Run EVENT and SCHEDULE workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRetentionCommand(),
			NewImportCommand(),
		},
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Sources: cli.EnvVars("DISPATCHER_ID"),
			},
			&cli.DurationFlag{
				Name:    "reload-interval",
				Usage:   "How often schedules are reloaded from the database (SIGHUP also reloads)",
				Value:   time.Minute,
				Sources: cli.EnvVars("RELOAD_INTERVAL"),
			},
		}, cmd.RuntimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			dispatcherID := command.String("dispatcher-id")
			if dispatcherID == "" {
				dispatcherID = fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("flowrun-dispatcher").With("dispatcher_id", dispatcherID)

			logger.InfoContext(ctx, "Initializing flowrun dispatcher")

			rt, err := cmd.NewRuntime(ctx, logger, cmd.OptionsFromCommand(command, "flowrun-dispatcher"))
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					logger.Error("Failed to close runtime", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reload := make(chan os.Signal, 1)
			signal.Notify(reload, syscall.SIGHUP)

			defer signal.Stop(reload)

			return NewManager(rt, logger, command.Duration("reload-interval")).Run(ctx, reload)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
