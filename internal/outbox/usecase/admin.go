package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/database"
	apperrors "github.com/allisson/userevents/internal/errors"
	"github.com/allisson/userevents/internal/outbox/domain"
)

// Admin implements operator actions on the outbox: inspection and manual replay of
// records whose retries were exhausted or that the sink rejected.
type Admin struct {
	txManager  database.TxManager
	outboxRepo OutboxRepository
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewAdmin creates a new Admin
func NewAdmin(
	txManager database.TxManager,
	outboxRepo OutboxRepository,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Admin {
	return &Admin{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		dispatcher: dispatcher,
		logger:     loggerOrDiscard(logger),
	}
}

// List returns records with the given status, oldest first.
func (a *Admin) List(
	ctx context.Context,
	status domain.OutboxStatus,
	offset, limit int,
) ([]*domain.OutboxRecord, error) {
	if !status.IsValid() {
		return nil, apperrors.Wrapf(domain.ErrInvalidStatus, "%q", status)
	}
	return a.outboxRepo.ListByStatus(ctx, status, offset, limit)
}

// Stats returns the number of records per status.
func (a *Admin) Stats(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	return a.outboxRepo.CountByStatus(ctx)
}

// Replay resets a failed record to pending with a fresh retry budget and enqueues it.
// Records that are not failed are rejected with ErrInvalidTransition.
func (a *Admin) Replay(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	var record *domain.OutboxRecord

	err := a.txManager.WithTx(ctx, func(ctx context.Context) error {
		current, err := a.outboxRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(current.Status, domain.OutboxStatusPending); err != nil {
			return err
		}

		reset, err := a.outboxRepo.ResetFailed(ctx, id)
		if err != nil {
			return err
		}
		if !reset {
			return apperrors.Wrapf(domain.ErrInvalidTransition, "record %s changed concurrently", id)
		}

		current.Status = domain.OutboxStatusPending
		current.Attempts = 0
		current.LastError = nil
		record = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := a.dispatcher.Enqueue(ctx, record.Task()); err != nil {
		a.logger.Error("replayed record not enqueued, leaving it to the sweeper",
			slog.String("record_id", id.String()),
			slog.Any("error", err),
		)
	}

	a.logger.Info("outbox record replayed",
		slog.String("record_id", id.String()),
		slog.String("correlation_id", record.CorrelationID),
	)
	return record, nil
}

// ReplayAllFailed replays up to limit failed records and returns the replayed records.
func (a *Admin) ReplayAllFailed(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	failed, err := a.outboxRepo.ListByStatus(ctx, domain.OutboxStatusFailed, 0, limit)
	if err != nil {
		return nil, err
	}

	replayed := make([]*domain.OutboxRecord, 0, len(failed))
	for _, record := range failed {
		r, err := a.Replay(ctx, record.ID)
		if err != nil {
			if apperrors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return replayed, err
		}
		replayed = append(replayed, r)
	}

	return replayed, nil
}
