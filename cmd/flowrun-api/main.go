package main

import (
	"context"
	"os"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowrun-api",
		Usage:                 "Create, manage and execute workflows over HTTP",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.RuntimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("flowrun-api")

			logger.InfoContext(ctx, "Initializing flowrun API")

			rt, err := cmd.NewRuntime(ctx, logger, cmd.OptionsFromCommand(command, "flowrun-api"))
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			api := NewAPI(logger, rt.Workflows, rt.Executions, rt.Registry, rt.Metrics.Handler())

			return api.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
