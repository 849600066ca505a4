package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/recorder"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultRetention  = 90 * 24 * time.Hour
	defaultStaleAfter = 24 * time.Hour
)

func NewRetentionCommand() *cli.Command {
	return &cli.Command{
		Name:  "retention",
		Usage: "Fail executions stuck in RUNNING and delete sealed executions older than a cutoff",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.DurationFlag{
				Name:    "older-than",
				Usage:   "Age of the oldest execution to keep",
				Value:   defaultRetention,
				Sources: cli.EnvVars("RETENTION_OLDER_THAN"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age after which a RUNNING execution is sealed as FAILED",
				Value:   defaultStaleAfter,
				Sources: cli.EnvVars("RETENTION_STALE_AFTER"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("flowrun-dispatcher").With("action", "retention")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			executions := store.ExecutionRepository()
			now := time.Now().UTC()
			olderThan := command.Duration("older-than")
			staleAfter := command.Duration("stale-after")

			abandoned, err := abandonStaleExecutions(ctx, executions, recorder.New(executions, logger, nil), staleAfter, now)
			if err != nil {
				return err
			}

			deleted, err := purgeExecutions(ctx, executions, olderThan, now)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Retention finished",
				"abandoned", abandoned,
				"deleted", deleted,
				"older_than", olderThan,
			)

			return nil
		},
	}
}

func purgeExecutions(
	ctx context.Context,
	executions persistence.ExecutionRepository,
	olderThan time.Duration,
	now time.Time,
) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("older-than must be positive, got %s", olderThan)
	}

	deleted, err := executions.DeleteBefore(ctx, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	return deleted, nil
}

type abandoner interface {
	Abandon(ctx context.Context, execution *models.WorkflowExecution) error
}

// abandonStaleExecutions seals executions left RUNNING for longer than staleAfter as FAILED, so their
// workflow counters are updated and later retention runs can delete them.
func abandonStaleExecutions(
	ctx context.Context,
	executions persistence.ExecutionRepository,
	rec abandoner,
	staleAfter time.Duration,
	now time.Time,
) (int, error) {
	if staleAfter <= 0 {
		return 0, fmt.Errorf("stale-after must be positive, got %s", staleAfter)
	}

	stale, err := executions.ListRunningBefore(ctx, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale executions: %w", err)
	}

	abandoned := 0

	for _, execution := range stale {
		err := rec.Abandon(ctx, execution)
		if err != nil {
			if persistence.IsExecutionSealed(err) {
				continue
			}

			return abandoned, err
		}

		abandoned++
	}

	return abandoned, nil
}
