package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/allisson/userevents/internal/outbox/domain"
	"github.com/allisson/userevents/internal/outbox/usecase"
)

// TaskSource is the queue the runner pulls due tasks from.
type TaskSource interface {
	Pop(ctx context.Context, limit int) ([]domain.PublishTask, error)
	Enqueue(ctx context.Context, tasks ...domain.PublishTask) error
}

// RunnerConfig holds runner configuration
type RunnerConfig struct {
	// Concurrency is the number of tasks handled in parallel.
	Concurrency int
	// PollInterval is how long the poller waits when the queue has no due task.
	PollInterval time.Duration
	// RateLimit caps handled tasks per second; zero disables the limit.
	RateLimit float64
	// RateBurst is the limiter burst size.
	RateBurst int
	// TaskTimeout bounds a single task, including work that continues after shutdown starts.
	TaskTimeout time.Duration
}

// Runner pops due publish tasks and runs them through a TaskHandler.
type Runner struct {
	config  RunnerConfig
	source  TaskSource
	handler usecase.TaskHandler
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRunner creates a new Runner
func NewRunner(config RunnerConfig, source TaskSource, handler usecase.TaskHandler, logger *slog.Logger) *Runner {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(config.RateBurst, 1))
	}

	return &Runner{
		config:  config,
		source:  source,
		handler: handler,
		limiter: limiter,
		logger:  logger,
	}
}

// Start runs the poller and the workers until ctx is cancelled. Tasks already handed to
// a worker are finished; tasks popped but not yet started are put back on the queue.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("starting publish workers",
		slog.Int("concurrency", r.config.Concurrency),
		slog.Duration("poll_interval", r.config.PollInterval),
		slog.Float64("rate_limit", r.config.RateLimit),
	)

	tasks := make(chan domain.PublishTask)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(tasks)
		return r.poll(gctx, tasks)
	})

	for range r.config.Concurrency {
		g.Go(func() error {
			r.work(gctx, tasks)
			return nil
		})
	}

	err := g.Wait()
	r.logger.Info("stopping publish workers")
	return err
}

func (r *Runner) poll(ctx context.Context, tasks chan<- domain.PublishTask) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := r.source.Pop(ctx, r.config.Concurrency)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to pop publish tasks", slog.Any("error", err))
		}

		if len(batch) == 0 {
			if err := sleep(ctx, r.config.PollInterval); err != nil {
				return err
			}
			continue
		}

		for i, task := range batch {
			select {
			case tasks <- task:
			case <-ctx.Done():
				r.requeue(ctx, batch[i:])
				return ctx.Err()
			}
		}
	}
}

func (r *Runner) work(ctx context.Context, tasks <-chan domain.PublishTask) {
	for task := range tasks {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.requeue(ctx, []domain.PublishTask{task})
				continue
			}
		}
		r.handle(ctx, task)
	}
}

func (r *Runner) handle(ctx context.Context, task domain.PublishTask) {
	taskCtx := context.WithoutCancel(ctx)
	if r.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, r.config.TaskTimeout)
		defer cancel()
	}
	taskCtx = usecase.WithCorrelationID(taskCtx, task.CorrelationID)

	decision, err := r.handler.Handle(taskCtx, task)

	logger := r.logger.With(
		slog.String("correlation_id", task.CorrelationID),
		slog.String("idempotency_key", task.IdempotencyKey),
		slog.String("event_type", task.EventType),
		slog.String("decision", decision.String()),
	)

	if err != nil {
		logger.Error("publish task gave up", slog.Any("error", err))
		return
	}
	logger.Debug("publish task handled")
}

func (r *Runner) requeue(ctx context.Context, tasks []domain.PublishTask) {
	if len(tasks) == 0 {
		return
	}
	if err := r.source.Enqueue(context.WithoutCancel(ctx), tasks...); err != nil {
		r.logger.Error("failed to requeue publish tasks", slog.Int("count", len(tasks)), slog.Any("error", err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
