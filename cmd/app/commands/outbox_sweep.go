package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// OutboxSweeper re-enqueues stranded outbox records.
type OutboxSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RunOutboxSweep runs a single sweep and prints how many records were enqueued.
func RunOutboxSweep(
	ctx context.Context,
	sweeper OutboxSweeper,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	enqueued, err := sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep outbox: %w", err)
	}

	logger.Info("outbox sweep completed", slog.Int("enqueued", enqueued))

	if format == "json" {
		return writeJSON(writer, map[string]int{"enqueued": enqueued})
	}

	_, _ = fmt.Fprintf(writer, "Enqueued %d stranded outbox record(s)\n", enqueued)
	return nil
}
