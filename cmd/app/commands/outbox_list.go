package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// OutboxLister lists outbox records and their per-status counts.
type OutboxLister interface {
	List(ctx context.Context, status domain.OutboxStatus, offset, limit int) ([]*domain.OutboxRecord, error)
	Stats(ctx context.Context) (map[domain.OutboxStatus]int64, error)
}

type outboxRecordOutput struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	EventType      string    `json:"event_type"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      *string   `json:"last_error,omitempty"`
	CorrelationID  string    `json:"correlation_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type outboxListOutput struct {
	Counts  map[string]int64     `json:"counts"`
	Records []outboxRecordOutput `json:"records"`
}

func toRecordOutputs(records []*domain.OutboxRecord) []outboxRecordOutput {
	outputs := make([]outboxRecordOutput, 0, len(records))
	for _, record := range records {
		outputs = append(outputs, outboxRecordOutput{
			ID:             record.ID,
			IdempotencyKey: record.IdempotencyKey,
			EventType:      record.EventType,
			Status:         record.Status.String(),
			Attempts:       record.Attempts,
			LastError:      record.LastError,
			CorrelationID:  record.CorrelationID,
			CreatedAt:      record.CreatedAt,
			UpdatedAt:      record.UpdatedAt,
		})
	}
	return outputs
}

// RunOutboxList prints the outbox counts per status followed by the records with the
// given status.
func RunOutboxList(
	ctx context.Context,
	lister OutboxLister,
	logger *slog.Logger,
	writer io.Writer,
	rawStatus string,
	offset, limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	status, err := domain.ParseOutboxStatus(rawStatus)
	if err != nil {
		return err
	}

	logger.Debug("listing outbox records",
		slog.String("status", status.String()),
		slog.Int("offset", offset),
		slog.Int("limit", limit),
	)

	counts, err := lister.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to count outbox records: %w", err)
	}

	records, err := lister.List(ctx, status, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list outbox records: %w", err)
	}

	output := outboxListOutput{
		Counts: map[string]int64{
			domain.OutboxStatusPending.String():   counts[domain.OutboxStatusPending],
			domain.OutboxStatusFailed.String():    counts[domain.OutboxStatusFailed],
			domain.OutboxStatusProcessed.String(): counts[domain.OutboxStatusProcessed],
		},
		Records: toRecordOutputs(records),
	}

	if format == "json" {
		return writeJSON(writer, output)
	}

	_, _ = fmt.Fprintf(writer, "Pending: %d\nFailed: %d\nProcessed: %d\n\n",
		output.Counts[domain.OutboxStatusPending.String()],
		output.Counts[domain.OutboxStatusFailed.String()],
		output.Counts[domain.OutboxStatusProcessed.String()],
	)

	if len(output.Records) == 0 {
		_, _ = fmt.Fprintf(writer, "No %s outbox records found\n", status)
		return nil
	}

	for _, record := range output.Records {
		_, _ = fmt.Fprintf(writer, "%s  %s  %s  attempts=%d  key=%s\n",
			record.ID,
			record.EventType,
			record.Status,
			record.Attempts,
			record.IdempotencyKey,
		)
		if record.LastError != nil {
			_, _ = fmt.Fprintf(writer, "    last error: %s\n", *record.LastError)
		}
	}

	return nil
}
