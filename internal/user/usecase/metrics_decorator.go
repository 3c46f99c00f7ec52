package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/metrics"
	"github.com/allisson/userevents/internal/user/domain"
)

// useCaseWithMetrics decorates UseCase with metrics instrumentation.
type useCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &useCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// CreateUser records metrics for user creation.
func (u *useCaseWithMetrics) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	start := time.Now()
	user, err := u.next.CreateUser(ctx, input)

	u.record(ctx, "user_create", start, err)
	return user, err
}

// GetUserByEmail records metrics for user lookups by email.
func (u *useCaseWithMetrics) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	start := time.Now()
	user, err := u.next.GetUserByEmail(ctx, email)

	u.record(ctx, "user_get", start, err)
	return user, err
}

// GetUserByID records metrics for user lookups by id.
func (u *useCaseWithMetrics) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	start := time.Now()
	user, err := u.next.GetUserByID(ctx, id)

	u.record(ctx, "user_get", start, err)
	return user, err
}

func (u *useCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.ObserveOperation(ctx, u.metrics, "user", operation, metrics.StatusOf(err), start)
}
