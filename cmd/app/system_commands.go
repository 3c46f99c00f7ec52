package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/userevents/cmd/app/commands"
	"github.com/allisson/userevents/internal/app"
	"github.com/allisson/userevents/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "worker",
			Usage: "Start the publish workers, the outbox sweeper and the health server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations and create the event log table",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "skip-event-log",
					Value: false,
					Usage: "Only migrate the relational database",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				logger := container.Logger()
				if err := commands.RunMigrations(logger, cfg.DBDriver, cfg.DBConnectionString); err != nil {
					return err
				}

				if cmd.Bool("skip-event-log") {
					return nil
				}

				eventLog, err := container.EventLog()
				if err != nil {
					return err
				}
				return commands.RunEventLogMigration(ctx, eventLog, logger)
			},
		},
	}
}
