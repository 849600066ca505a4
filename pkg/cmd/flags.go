package cmd

import (
	"github.com/dukex/flowrun/pkg/engine"
	cli "github.com/urfave/cli/v3"
)

// RuntimeFlags are shared by every binary that runs workflows.
func RuntimeFlags() []cli.Flag {
	defaults := engine.DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://path or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL; enables single-flight execution per workflow",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing action plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "stop-on-error",
			Usage:   "Stop a workflow at the first failed action",
			Sources: cli.EnvVars("STOP_ON_ERROR"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Attempts per action, first try included",
			Value:   defaults.MaxAttempts,
			Sources: cli.EnvVars("MAX_ATTEMPTS"),
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "Timeout for a single action attempt",
			Value:   defaults.ActionTimeout,
			Sources: cli.EnvVars("ACTION_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "auto-disable-after",
			Usage:   "Disable a workflow after this many consecutive failed executions (0 = never)",
			Sources: cli.EnvVars("AUTO_DISABLE_AFTER"),
		},
		&cli.StringFlag{
			Name:    "stats-timezone",
			Usage:   "Timezone used to bucket daily statistics",
			Value:   "UTC",
			Sources: cli.EnvVars("STATS_TIMEZONE"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP (configured with the standard OTEL_* variables)",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// OptionsFromCommand reads RuntimeFlags.
func OptionsFromCommand(command *cli.Command, serviceName string) Options {
	return Options{
		ServiceName:      serviceName,
		DatabaseURL:      command.String("database-url"),
		EventBus:         command.String("event-bus"),
		RedisURL:         command.String("redis-url"),
		PluginsPath:      command.String("plugins-path"),
		StatsTimezone:    command.String("stats-timezone"),
		AutoDisableAfter: command.Int("auto-disable-after"),
		Tracing:          command.Bool("otel"),
		Engine: engine.Config{
			StopOnError:   command.Bool("stop-on-error"),
			MaxAttempts:   command.Int("max-attempts"),
			ActionTimeout: command.Duration("action-timeout"),
		},
	}
}
