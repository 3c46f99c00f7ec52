package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/userevents/cmd/app/commands"
	"github.com/allisson/userevents/internal/app"
	"github.com/allisson/userevents/internal/config"
)

func newFormatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getOutboxCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "outbox-list",
			Usage: "Show outbox counts and list records with a given status",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "status",
					Aliases: []string{"s"},
					Value:   "failed",
					Usage:   "Record status: 'pending', 'failed' or 'processed'",
				},
				&cli.IntFlag{
					Name:  "offset",
					Value: 0,
					Usage: "Number of records to skip",
				},
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   50,
					Usage:   "Maximum number of records to list",
				},
				newFormatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				admin, err := container.OutboxAdmin()
				if err != nil {
					return err
				}

				return commands.RunOutboxList(
					ctx,
					admin,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("status"),
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "outbox-replay",
			Usage: "Reset failed outbox records to pending and enqueue them again",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "Outbox record ID (UUID)",
				},
				&cli.BoolFlag{
					Name:  "all-failed",
					Value: false,
					Usage: "Replay every failed record up to --limit",
				},
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   100,
					Usage:   "Maximum number of records replayed with --all-failed",
				},
				newFormatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				admin, err := container.OutboxAdmin()
				if err != nil {
					return err
				}

				return commands.RunOutboxReplay(
					ctx,
					admin,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.Bool("all-failed"),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "outbox-sweep",
			Usage: "Enqueue stranded outbox records once",
			Flags: []cli.Flag{newFormatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				sweeper, err := container.Sweeper()
				if err != nil {
					return err
				}

				return commands.RunOutboxSweep(
					ctx,
					sweeper,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
