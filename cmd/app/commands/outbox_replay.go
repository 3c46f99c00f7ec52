package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// OutboxReplayer resets failed outbox records to pending and enqueues them again.
type OutboxReplayer interface {
	Replay(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error)
	ReplayAllFailed(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
}

// RunOutboxReplay replays a single failed record when rawID is set, or up to limit failed
// records when allFailed is true.
func RunOutboxReplay(
	ctx context.Context,
	replayer OutboxReplayer,
	logger *slog.Logger,
	writer io.Writer,
	rawID string,
	allFailed bool,
	limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	if (rawID == "") == !allFailed {
		return errors.New("exactly one of --id or --all-failed must be set")
	}

	var records []*domain.OutboxRecord

	if allFailed {
		if limit < 1 {
			return fmt.Errorf("invalid limit: %d (must be at least 1)", limit)
		}

		replayed, err := replayer.ReplayAllFailed(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to replay outbox records: %w", err)
		}
		records = replayed
	} else {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return fmt.Errorf("invalid outbox record id: %w", err)
		}

		record, err := replayer.Replay(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to replay outbox record: %w", err)
		}
		records = []*domain.OutboxRecord{record}
	}

	logger.Info("outbox records replayed", slog.Int("count", len(records)))

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"replayed": len(records),
			"records":  toRecordOutputs(records),
		})
	}

	_, _ = fmt.Fprintf(writer, "Replayed %d outbox record(s)\n", len(records))
	for _, record := range records {
		_, _ = fmt.Fprintf(writer, "%s  %s  key=%s\n", record.ID, record.EventType, record.IdempotencyKey)
	}

	return nil
}
