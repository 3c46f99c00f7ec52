package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/userevents/internal/database"
	apperrors "github.com/allisson/userevents/internal/errors"
	"github.com/allisson/userevents/internal/outbox/domain"
	appValidation "github.com/allisson/userevents/internal/validation"
)

// MaxPayloadBytes bounds the serialized event body stored in the outbox.
const MaxPayloadBytes = 1 << 20

// Mutation changes business state inside the outbox transaction and returns the events
// describing the change.
type Mutation[T any] func(ctx context.Context) (T, []domain.Event, error)

// Coordinator couples business mutations with the outbox records of their events.
type Coordinator struct {
	txManager  database.TxManager
	outboxRepo OutboxRepository
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewCoordinator creates a new Coordinator. dispatcher may be nil, in which case staged
// records are only picked up by the sweeper.
func NewCoordinator(
	txManager database.TxManager,
	outboxRepo OutboxRepository,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		dispatcher: dispatcher,
		logger:     loggerOrDiscard(logger),
	}
}

// RunWithOutbox runs mutation in a transaction and stores one pending outbox record per
// returned event in that same transaction.
//
// If mutation fails or panics nothing is stored and nothing is published; the error (or
// panic) reaches the caller unchanged. After a successful commit a publish task is
// enqueued for every new record. Enqueue failures are logged only: the record is
// durable and the sweeper will find it. When ctx already carries a transaction the
// commit belongs to the caller, so enqueueing is left to the sweeper as well.
func RunWithOutbox[T any](ctx context.Context, c *Coordinator, mutation Mutation[T]) (T, error) {
	var (
		result T
		staged []*domain.OutboxRecord
	)

	correlationID := CorrelationID(ctx)
	if correlationID == "" {
		correlationID = newCorrelationID()
		ctx = WithCorrelationID(ctx, correlationID)
	}
	joined := database.InTx(ctx)

	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		value, events, err := mutation(ctx)
		if err != nil {
			return err
		}

		records, err := c.stage(ctx, correlationID, events)
		if err != nil {
			return err
		}

		result = value
		staged = records
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	if !joined {
		c.dispatch(ctx, correlationID, staged)
	}

	return result, nil
}

// stage inserts the outbox records for events. Events whose idempotency key already has
// a record are skipped.
func (c *Coordinator) stage(
	ctx context.Context,
	correlationID string,
	events []domain.Event,
) ([]*domain.OutboxRecord, error) {
	records := make([]*domain.OutboxRecord, 0, len(events))

	for _, event := range events {
		record, err := newRecord(event, correlationID)
		if err != nil {
			return nil, err
		}

		created, err := c.outboxRepo.Create(ctx, record)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to create outbox record")
		}
		if !created {
			c.logger.Warn("outbox record already exists, skipping",
				slog.String("correlation_id", correlationID),
				slog.String("idempotency_key", record.IdempotencyKey),
				slog.String("event_type", record.EventType),
			)
			continue
		}

		records = append(records, record)
	}

	return records, nil
}

func (c *Coordinator) dispatch(ctx context.Context, correlationID string, records []*domain.OutboxRecord) {
	if len(records) == 0 || c.dispatcher == nil {
		return
	}

	tasks := make([]domain.PublishTask, 0, len(records))
	for _, record := range records {
		tasks = append(tasks, record.Task())
	}

	if err := c.dispatcher.Enqueue(context.WithoutCancel(ctx), tasks...); err != nil {
		c.logger.Error("failed to enqueue publish tasks, leaving them to the sweeper",
			slog.String("correlation_id", correlationID),
			slog.Int("count", len(tasks)),
			slog.Any("error", err),
		)
		return
	}

	c.logger.Debug("publish tasks enqueued",
		slog.String("correlation_id", correlationID),
		slog.Int("count", len(tasks)),
	)
}

func newRecord(event domain.Event, correlationID string) (*domain.OutboxRecord, error) {
	if event == nil {
		return nil, apperrors.Wrap(domain.ErrInvalidEvent, "nil event")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.Wrap(domain.ErrInvalidEvent, err.Error())
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	record := &domain.OutboxRecord{
		ID:             id,
		IdempotencyKey: event.IdempotencyKey(),
		EventType:      domain.CanonicalEventType(event.EventName()),
		Payload:        payload,
		Status:         domain.OutboxStatusPending,
		CorrelationID:  correlationID,
	}

	if err := validateRecord(record); err != nil {
		return nil, err
	}

	return record, nil
}

func validateRecord(record *domain.OutboxRecord) error {
	err := validation.ValidateStruct(record,
		validation.Field(&record.IdempotencyKey, validation.Required, appValidation.NotBlank,
			validation.Length(1, 255)),
		validation.Field(&record.EventType, validation.Required, appValidation.SnakeCase,
			validation.Length(1, 255)),
		validation.Field(&record.Payload, validation.Required, appValidation.JSONObject,
			appValidation.MaxBytes(MaxPayloadBytes)),
	)
	if err != nil {
		return apperrors.Wrap(domain.ErrInvalidEvent, err.Error())
	}
	return nil
}
