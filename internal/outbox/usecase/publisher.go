package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/allisson/userevents/internal/errors"
	"github.com/allisson/userevents/internal/outbox/domain"
)

// PublisherConfig holds publisher settings.
type PublisherConfig struct {
	// Environment tags every envelope.
	Environment string
	// BatchSize is passed through to the sink.
	BatchSize int
}

// Publisher performs one publish attempt for an outbox record and owns every status
// change of the record.
type Publisher struct {
	config     PublisherConfig
	outboxRepo OutboxRepository
	sink       Sink
	classifier FailureClassifier
	clock      func() time.Time
	logger     *slog.Logger
}

// NewPublisher creates a new Publisher. A nil classifier treats every sink failure as
// transient.
func NewPublisher(
	config PublisherConfig,
	outboxRepo OutboxRepository,
	sink Sink,
	classifier FailureClassifier,
	logger *slog.Logger,
) *Publisher {
	if classifier == nil {
		classifier = FailureClassifierFunc(func(error) bool { return false })
	}
	return &Publisher{
		config:     config,
		outboxRepo: outboxRepo,
		sink:       sink,
		classifier: classifier,
		clock:      time.Now,
		logger:     loggerOrDiscard(logger),
	}
}

// Publish re-reads the record for task and, unless it is already processed, inserts its
// envelope into the sink. Success settles the record with a conditional update, so two
// concurrent attempts cannot both mark it processed. Failures mark the record failed
// and are returned as a Failed outcome; Publish never returns an error or panics.
func (p *Publisher) Publish(ctx context.Context, task domain.PublishTask) (outcome domain.PublishOutcome) {
	logger := p.logger.With(
		slog.String("correlation_id", task.CorrelationID),
		slog.String("idempotency_key", task.IdempotencyKey),
		slog.String("event_type", task.EventType),
		slog.Int("attempt", task.Attempt),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("publish attempt panicked", slog.Any("panic", r))
			outcome = domain.Failed(domain.FailureTransient, fmt.Errorf("publish panicked: %v", r), task.Attempt+1)
		}
	}()

	record, err := p.outboxRepo.GetByIdempotencyKey(ctx, task.IdempotencyKey)
	if err != nil {
		if errors.Is(err, domain.ErrOutboxRecordNotFound) {
			logger.Error("outbox record not found")
			return domain.Failed(domain.FailurePermanent, err, task.Attempt+1)
		}
		logger.Error("failed to load outbox record", slog.Any("error", err))
		return domain.Failed(domain.FailureTransient, apperrors.Wrap(err, "failed to load outbox record"), task.Attempt+1)
	}

	if record.IsTerminal() {
		logger.Info("outbox record already processed, skipping publish")
		return domain.AlreadyProcessed(record.Attempts)
	}

	if record.Status == domain.OutboxStatusFailed {
		reopened, err := p.outboxRepo.Reopen(ctx, record.ID)
		if err != nil {
			logger.Error("failed to reopen outbox record", slog.Any("error", err))
			return domain.Failed(domain.FailureTransient, apperrors.Wrap(err, "failed to reopen outbox record"), record.Attempts)
		}
		if !reopened {
			if settled, ok := p.settled(ctx, record); ok {
				logger.Info("outbox record settled concurrently, skipping publish")
				return settled
			}
		}
		record.Status = domain.OutboxStatusPending
	}

	now := p.clock().UTC()
	envelope, err := domain.NewEventEnvelope(record, p.config.Environment, now)
	if err != nil {
		return p.fail(ctx, logger, record, err, domain.FailurePermanent)
	}

	if err := p.sink.Insert(ctx, []domain.EventEnvelope{envelope}, p.config.BatchSize); err != nil {
		kind := domain.FailureTransient
		if p.classifier.IsPermanent(err) {
			kind = domain.FailurePermanent
		}
		return p.fail(ctx, logger, record, err, kind)
	}

	applied, err := p.outboxRepo.MarkProcessed(ctx, record.ID, now)
	if err != nil {
		// The event is in the sink already; a retry may publish it again.
		logger.Error("event published but outbox record could not be settled", slog.Any("error", err))
		return domain.Failed(domain.FailureTransient, apperrors.Wrap(err, "failed to mark outbox record processed"), record.Attempts)
	}
	if !applied {
		logger.Warn("outbox record processed by a concurrent attempt")
		return domain.AlreadyProcessed(record.Attempts)
	}

	logger.Info("event published", slog.String("record_id", record.ID.String()))
	return domain.Published(record.Attempts)
}

// fail marks record failed and returns the matching outcome. The attempt is counted even
// when the status update fails so that the retry budget still shrinks.
func (p *Publisher) fail(
	ctx context.Context,
	logger *slog.Logger,
	record *domain.OutboxRecord,
	cause error,
	kind domain.FailureKind,
) domain.PublishOutcome {
	attempts := record.Attempts + 1
	logger.Warn("publish attempt failed",
		slog.String("record_id", record.ID.String()),
		slog.String("failure", kind.String()),
		slog.Int("attempts", attempts),
		slog.String("error", domain.SanitizeError(cause)),
	)

	applied, err := p.outboxRepo.MarkFailed(ctx, record.ID, domain.SanitizeError(cause))
	if err != nil {
		logger.Error("failed to mark outbox record failed", slog.Any("error", err))
		return domain.Failed(kind, cause, attempts)
	}
	if !applied {
		if settled, ok := p.settled(ctx, record); ok {
			return settled
		}
	}

	return domain.Failed(kind, cause, attempts)
}

// settled re-reads record after a conditional update did not apply and reports whether
// a concurrent attempt processed it.
func (p *Publisher) settled(ctx context.Context, record *domain.OutboxRecord) (domain.PublishOutcome, bool) {
	current, err := p.outboxRepo.GetByID(ctx, record.ID)
	if err != nil || !current.IsTerminal() {
		return domain.PublishOutcome{}, false
	}
	return domain.AlreadyProcessed(current.Attempts), true
}
