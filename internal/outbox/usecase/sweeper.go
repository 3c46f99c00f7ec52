package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/userevents/internal/database"
	"github.com/allisson/userevents/internal/outbox/domain"
)

// SweeperConfig holds sweeper configuration
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	MaxRetries int
}

// Sweeper re-enqueues outbox records whose publish task was lost: the enqueue after
// commit failed, or the process died while a retry was waiting.
type Sweeper struct {
	config     SweeperConfig
	txManager  database.TxManager
	outboxRepo OutboxRepository
	dispatcher Dispatcher
	clock      func() time.Time
	logger     *slog.Logger
}

// NewSweeper creates a new Sweeper
func NewSweeper(
	config SweeperConfig,
	txManager database.TxManager,
	outboxRepo OutboxRepository,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		config:     config,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		dispatcher: dispatcher,
		clock:      time.Now,
		logger:     loggerOrDiscard(logger),
	}
}

// Start runs Sweep every Interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("starting outbox sweeper",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("stale_after", s.config.StaleAfter),
		slog.Int("batch_size", s.config.BatchSize),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping outbox sweeper")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("failed to sweep outbox", slog.Any("error", err))
			}
		}
	}
}

// Sweep re-enqueues stale pending or failed records that still have retries left and
// returns how many were enqueued. Records are locked while they are touched so that
// concurrent sweepers do not enqueue the same record.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var tasks []domain.PublishTask

	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		before := s.clock().Add(-s.config.StaleAfter)

		records, err := s.outboxRepo.ListStale(ctx, before, s.config.MaxRetries, s.config.BatchSize)
		if err != nil {
			return err
		}

		tasks = make([]domain.PublishTask, 0, len(records))
		for _, record := range records {
			if err := s.outboxRepo.Touch(ctx, record.ID); err != nil {
				return err
			}
			task := record.Task()
			task.Attempt = record.Attempts
			tasks = append(tasks, task)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(tasks) == 0 {
		return 0, nil
	}

	if err := s.dispatcher.Enqueue(ctx, tasks...); err != nil {
		return 0, err
	}

	s.logger.Info("re-enqueued stranded outbox records", slog.Int("count", len(tasks)))
	return len(tasks), nil
}
