package app

import (
	"context"
	"fmt"

	"github.com/allisson/userevents/internal/config"
	"github.com/allisson/userevents/internal/eventlog"
	"github.com/allisson/userevents/internal/metrics"
	outboxDomain "github.com/allisson/userevents/internal/outbox/domain"
	outboxRepository "github.com/allisson/userevents/internal/outbox/repository"
	outboxUsecase "github.com/allisson/userevents/internal/outbox/usecase"
	"github.com/allisson/userevents/internal/worker"
)

// OutboxRepository returns the outbox record repository based on database driver.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxRepository, error) {
	var err error
	c.outboxRepoInit.Do(func() {
		c.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// TaskQueue returns the Redis queue holding publish tasks.
func (c *Container) TaskQueue() *worker.RedisQueue {
	c.taskQueueInit.Do(func() {
		c.taskQueue = worker.NewRedisQueue(c.RedisClient(), c.config.QueueKey, c.Logger())
	})
	return c.taskQueue
}

// Coordinator returns the outbox coordinator used by use cases that emit events.
func (c *Container) Coordinator() (*outboxUsecase.Coordinator, error) {
	var err error
	c.coordinatorInit.Do(func() {
		c.coordinator, err = c.initCoordinator()
		if err != nil {
			c.initErrors["coordinator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["coordinator"]; exists {
		return nil, storedErr
	}
	return c.coordinator, nil
}

// Publisher returns the instrumented event publisher.
func (c *Container) Publisher() (outboxUsecase.Publishing, error) {
	var err error
	c.publisherInit.Do(func() {
		c.publisher, err = c.initPublisher()
		if err != nil {
			c.initErrors["publisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["publisher"]; exists {
		return nil, storedErr
	}
	return c.publisher, nil
}

// TaskHandler returns the instrumented retry scheduler that handles publish tasks.
func (c *Container) TaskHandler() (outboxUsecase.TaskHandler, error) {
	var err error
	c.taskHandlerInit.Do(func() {
		c.taskHandler, err = c.initTaskHandler()
		if err != nil {
			c.initErrors["taskHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["taskHandler"]; exists {
		return nil, storedErr
	}
	return c.taskHandler, nil
}

// Sweeper returns the sweeper that re-enqueues stranded records.
func (c *Container) Sweeper() (*outboxUsecase.Sweeper, error) {
	var err error
	c.sweeperInit.Do(func() {
		c.sweeper, err = c.initSweeper()
		if err != nil {
			c.initErrors["sweeper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sweeper"]; exists {
		return nil, storedErr
	}
	return c.sweeper, nil
}

// OutboxAdmin returns the outbox inspection and replay service.
func (c *Container) OutboxAdmin() (*outboxUsecase.Admin, error) {
	var err error
	c.outboxAdminInit.Do(func() {
		c.outboxAdmin, err = c.initOutboxAdmin()
		if err != nil {
			c.initErrors["outboxAdmin"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxAdmin"]; exists {
		return nil, storedErr
	}
	return c.outboxAdmin, nil
}

// Runner returns the worker pool draining the task queue.
func (c *Container) Runner() (*worker.Runner, error) {
	var err error
	c.runnerInit.Do(func() {
		c.runner, err = c.initRunner()
		if err != nil {
			c.initErrors["runner"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["runner"]; exists {
		return nil, storedErr
	}
	return c.runner, nil
}

// initOutboxRepository creates the outbox record repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initCoordinator creates the coordinator that stages events and enqueues them after commit.
func (c *Container) initCoordinator() (*outboxUsecase.Coordinator, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for coordinator: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for coordinator: %w", err)
	}

	return outboxUsecase.NewCoordinator(txManager, outboxRepo, c.TaskQueue(), c.Logger()), nil
}

// initPublisher creates the publisher writing to the ClickHouse event log.
func (c *Container) initPublisher() (outboxUsecase.Publishing, error) {
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for publisher: %w", err)
	}

	eventLog, err := c.EventLog()
	if err != nil {
		return nil, fmt.Errorf("failed to get event log for publisher: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for publisher: %w", err)
	}

	publisher := outboxUsecase.NewPublisher(
		outboxUsecase.PublisherConfig{
			Environment: c.config.Environment,
			BatchSize:   c.config.SinkBatchSize,
		},
		outboxRepo,
		eventLog,
		outboxUsecase.FailureClassifierFunc(eventlog.IsPermanent),
		c.Logger(),
	)

	return outboxUsecase.NewPublisherWithMetrics(publisher, businessMetrics), nil
}

// initTaskHandler creates the retry scheduler around the publisher.
func (c *Container) initTaskHandler() (outboxUsecase.TaskHandler, error) {
	publisher, err := c.Publisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get publisher for task handler: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for task handler: %w", err)
	}

	scheduler := outboxUsecase.NewRetryScheduler(
		outboxUsecase.RetryPolicy{
			MaxRetries:     c.config.OutboxMaxRetries,
			Backoff:        newBackoffPolicy(c.config),
			RetryPermanent: c.config.OutboxRetryPermanentFailures,
		},
		publisher,
		c.TaskQueue(),
		c.Logger(),
	)

	return outboxUsecase.NewTaskHandlerWithMetrics(scheduler, businessMetrics), nil
}

func newBackoffPolicy(cfg *config.Config) outboxUsecase.BackoffPolicy {
	if cfg.OutboxBackoffPolicy == config.BackoffExponential {
		return outboxUsecase.NewExponentialBackoff(cfg.OutboxRetryDelay, cfg.OutboxMaxRetryDelay)
	}
	return outboxUsecase.NewFixedBackoff(cfg.OutboxRetryDelay)
}

// initSweeper creates the sweeper for records whose task was lost.
func (c *Container) initSweeper() (*outboxUsecase.Sweeper, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for sweeper: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for sweeper: %w", err)
	}

	return outboxUsecase.NewSweeper(
		outboxUsecase.SweeperConfig{
			Interval:   c.config.SweepInterval,
			StaleAfter: c.config.SweepStaleAfter,
			BatchSize:  c.config.SweepBatchSize,
			MaxRetries: c.config.OutboxMaxRetries,
		},
		txManager,
		outboxRepo,
		c.TaskQueue(),
		c.Logger(),
	), nil
}

// initOutboxAdmin creates the outbox administration service and registers the backlog
// gauges when metrics are enabled.
func (c *Container) initOutboxAdmin() (*outboxUsecase.Admin, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox admin: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox admin: %w", err)
	}

	admin := outboxUsecase.NewAdmin(txManager, outboxRepo, c.TaskQueue(), c.Logger())

	if err := c.registerOutboxGauges(admin); err != nil {
		return nil, err
	}

	return admin, nil
}

// registerOutboxGauges exposes the outbox backlog per status and the task queue depth.
func (c *Container) registerOutboxGauges(admin *outboxUsecase.Admin) error {
	provider, err := c.MetricsProvider()
	if err != nil {
		return fmt.Errorf("failed to get metrics provider for outbox gauges: %w", err)
	}
	if provider == nil {
		return nil
	}

	namespace := c.config.MetricsNamespace
	err = metrics.RegisterGauge(
		provider.MeterProvider(),
		namespace,
		"outbox_records",
		"Number of outbox records per status",
		"status",
		func(ctx context.Context) (map[string]int64, error) {
			counts, err := admin.Stats(ctx)
			if err != nil {
				return nil, err
			}
			values := make(map[string]int64, 3)
			for _, status := range []outboxDomain.OutboxStatus{
				outboxDomain.OutboxStatusPending,
				outboxDomain.OutboxStatusFailed,
				outboxDomain.OutboxStatusProcessed,
			} {
				values[status.String()] = counts[status]
			}
			return values, nil
		},
	)
	if err != nil {
		return err
	}

	queue := c.TaskQueue()
	return metrics.RegisterGauge(
		provider.MeterProvider(),
		namespace,
		"task_queue_depth",
		"Number of publish tasks waiting in the queue",
		"queue",
		func(ctx context.Context) (map[string]int64, error) {
			depth, err := queue.Len(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]int64{c.config.QueueKey: depth}, nil
		},
	)
}

// initRunner creates the worker pool that executes publish tasks.
func (c *Container) initRunner() (*worker.Runner, error) {
	handler, err := c.TaskHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get task handler for runner: %w", err)
	}

	return worker.NewRunner(
		worker.RunnerConfig{
			Concurrency:  c.config.WorkerConcurrency,
			PollInterval: c.config.WorkerPollInterval,
			RateLimit:    c.config.WorkerRateLimit,
			RateBurst:    c.config.WorkerRateBurst,
			TaskTimeout:  c.config.WorkerTaskTimeout,
		},
		c.TaskQueue(),
		handler,
		c.Logger(),
	), nil
}
