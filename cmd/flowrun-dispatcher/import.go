package main

import (
	"context"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/config"
	"github.com/dukex/flowrun/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Create or update workflows from a YAML file",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflows YAML file",
				Required: true,
			},
		}, cmd.RuntimeFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("flowrun-dispatcher").With("action", "import")

			workflows, err := config.LoadWorkflows(command.String("file"))
			if err != nil {
				return err
			}

			rt, err := cmd.NewRuntime(ctx, logger, cmd.OptionsFromCommand(command, "flowrun-import"))
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			result, err := config.Import(ctx, rt.Workflows, workflows)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Workflows imported", "created", result.Created, "updated", result.Updated)

			return nil
		},
	}
}
