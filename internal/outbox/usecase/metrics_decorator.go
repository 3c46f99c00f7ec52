package usecase

import (
	"context"
	"time"

	"github.com/allisson/userevents/internal/metrics"
	"github.com/allisson/userevents/internal/outbox/domain"
)

const metricsDomain = "outbox"

// publisherWithMetrics decorates Publishing with metrics instrumentation.
type publisherWithMetrics struct {
	next    Publishing
	metrics metrics.BusinessMetrics
}

// NewPublisherWithMetrics wraps a Publishing with metrics recording.
func NewPublisherWithMetrics(publisher Publishing, m metrics.BusinessMetrics) Publishing {
	return &publisherWithMetrics{
		next:    publisher,
		metrics: m,
	}
}

// Publish records metrics for publish attempts. The status label is the outcome kind,
// suffixed with the failure kind for failed attempts.
func (p *publisherWithMetrics) Publish(ctx context.Context, task domain.PublishTask) domain.PublishOutcome {
	start := time.Now()
	outcome := p.next.Publish(ctx, task)

	status := outcome.Kind.String()
	if outcome.Kind == domain.OutcomeFailed {
		status += "_" + outcome.Failure.String()
	}

	metrics.ObserveOperation(ctx, p.metrics, metricsDomain, "event_publish", status, start)

	return outcome
}

// taskHandlerWithMetrics decorates TaskHandler with metrics instrumentation.
type taskHandlerWithMetrics struct {
	next    TaskHandler
	metrics metrics.BusinessMetrics
}

// NewTaskHandlerWithMetrics wraps a TaskHandler with metrics recording.
func NewTaskHandlerWithMetrics(handler TaskHandler, m metrics.BusinessMetrics) TaskHandler {
	return &taskHandlerWithMetrics{
		next:    handler,
		metrics: m,
	}
}

// Handle records metrics for task handling, labelled with the scheduler decision.
func (h *taskHandlerWithMetrics) Handle(ctx context.Context, task domain.PublishTask) (Decision, error) {
	start := time.Now()
	decision, err := h.next.Handle(ctx, task)

	metrics.ObserveOperation(ctx, h.metrics, metricsDomain, "task_handle", decision.String(), start)

	return decision, err
}
