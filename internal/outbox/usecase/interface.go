// Package usecase implements the outbox business logic: staging events next to the
// business change that produced them, publishing them to the event log and deciding
// when a failed publish is retried.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// OutboxRepository defines outbox record persistence operations. Status changes are
// conditional and report whether they were applied.
type OutboxRepository interface {
	Create(ctx context.Context, record *domain.OutboxRecord) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) (bool, error)
	Reopen(ctx context.Context, id uuid.UUID) (bool, error)
	ResetFailed(ctx context.Context, id uuid.UUID) (bool, error)
	Touch(ctx context.Context, id uuid.UUID) error
	ListByStatus(ctx context.Context, status domain.OutboxStatus, offset, limit int) ([]*domain.OutboxRecord, error)
	ListStale(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*domain.OutboxRecord, error)
	CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error)
}

// Sink writes event envelopes to the event log.
type Sink interface {
	Insert(ctx context.Context, rows []domain.EventEnvelope, batchSize int) error
}

// Dispatcher hands publish tasks to the task runner for immediate execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, tasks ...domain.PublishTask) error
}

// TaskScheduler hands a publish task to the task runner for execution after delay.
type TaskScheduler interface {
	Schedule(ctx context.Context, task domain.PublishTask, delay time.Duration) error
}

// Publishing performs a single publish attempt.
type Publishing interface {
	Publish(ctx context.Context, task domain.PublishTask) domain.PublishOutcome
}

// TaskHandler runs one publish task and decides what happens next.
type TaskHandler interface {
	Handle(ctx context.Context, task domain.PublishTask) (Decision, error)
}

// FailureClassifier tells permanent sink failures apart from transient ones.
type FailureClassifier interface {
	IsPermanent(err error) bool
}

// FailureClassifierFunc adapts a function to FailureClassifier.
type FailureClassifierFunc func(err error) bool

// IsPermanent calls f(err).
func (f FailureClassifierFunc) IsPermanent(err error) bool {
	return f(err)
}
