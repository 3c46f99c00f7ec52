package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// Decision is what the retry scheduler did with a publish task.
type Decision int

const (
	// DecisionDone means the event is in the event log.
	DecisionDone Decision = iota + 1
	// DecisionRescheduled means another attempt was scheduled.
	DecisionRescheduled
	// DecisionGaveUp means no further attempt will be made by this task.
	DecisionGaveUp
)

func (d Decision) String() string {
	switch d {
	case DecisionDone:
		return "done"
	case DecisionRescheduled:
		return "rescheduled"
	case DecisionGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// RetryPolicy bounds retries of failed publish attempts.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff computes the delay before each retry.
	Backoff BackoffPolicy
	// RetryPermanent retries permanent failures like transient ones.
	RetryPermanent bool
}

// RetryScheduler wraps publish attempts with bounded retries. It never changes outbox
// records; it only schedules the next attempt through the task runner.
type RetryScheduler struct {
	policy    RetryPolicy
	publisher Publishing
	scheduler TaskScheduler
	logger    *slog.Logger
}

// NewRetryScheduler creates a new RetryScheduler.
func NewRetryScheduler(
	policy RetryPolicy,
	publisher Publishing,
	scheduler TaskScheduler,
	logger *slog.Logger,
) *RetryScheduler {
	if policy.Backoff == nil {
		policy.Backoff = NewFixedBackoff(0)
	}
	return &RetryScheduler{
		policy:    policy,
		publisher: publisher,
		scheduler: scheduler,
		logger:    loggerOrDiscard(logger),
	}
}

// Handle runs one publish attempt for task.
//
// The attempt budget is read from the outbox record (the publisher reports the
// persisted count in the outcome), so a crash between attempts does not reset it. The
// returned error is non-nil only for DecisionGaveUp and wraps ErrRetriesExhausted,
// ErrPermanentFailure or the scheduling failure.
func (s *RetryScheduler) Handle(ctx context.Context, task domain.PublishTask) (Decision, error) {
	outcome := s.publisher.Publish(ctx, task)

	logger := s.logger.With(
		slog.String("correlation_id", task.CorrelationID),
		slog.String("idempotency_key", task.IdempotencyKey),
		slog.String("outcome", outcome.Kind.String()),
	)

	if outcome.IsDone() {
		return DecisionDone, nil
	}

	attempts := max(outcome.Attempts, task.Attempt+1)

	if outcome.Failure == domain.FailurePermanent && !s.policy.RetryPermanent {
		logger.Error("giving up on permanently rejected event",
			slog.Int("attempts", attempts),
			slog.String("error", domain.SanitizeError(outcome.Err)),
		)
		return DecisionGaveUp, fmt.Errorf("%w: %w", domain.ErrPermanentFailure, outcome.Err)
	}

	if attempts > s.policy.MaxRetries {
		logger.Error("retries exhausted",
			slog.Int("attempts", attempts),
			slog.Int("max_retries", s.policy.MaxRetries),
			slog.String("error", domain.SanitizeError(outcome.Err)),
		)
		return DecisionGaveUp, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempts, outcome.Err)
	}

	delay := s.policy.Backoff.Delay(attempts - 1)
	next := task.Next(outcome.Err)

	if err := s.scheduler.Schedule(ctx, next, delay); err != nil {
		logger.Error("failed to schedule retry", slog.Any("error", err))
		return DecisionGaveUp, fmt.Errorf("failed to schedule retry: %w", err)
	}

	logger.Info("retry scheduled",
		slog.Int("attempts", attempts),
		slog.Duration("delay", delay),
	)
	return DecisionRescheduled, nil
}
