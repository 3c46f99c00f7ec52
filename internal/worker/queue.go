// Package worker runs publish tasks: a Redis sorted set holds immediate and delayed
// tasks, and a pool of goroutines pops due tasks and hands them to the retry scheduler.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// popDue atomically removes and returns up to ARGV[2] members of KEYS[1] whose score is
// at most ARGV[1].
var popDue = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
end
return items
`)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a go-redis client for cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisQueue stores publish tasks in a sorted set scored by the unix millisecond at
// which they become due. A popped task is gone from the queue; tasks lost after a pop
// are recovered by the outbox sweeper.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	clock  func() time.Time
	logger *slog.Logger
}

// NewRedisQueue creates a new RedisQueue on key.
func NewRedisQueue(client redis.UniversalClient, key string, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisQueue{
		client: client,
		key:    key,
		clock:  time.Now,
		logger: logger,
	}
}

// Enqueue adds tasks that are due immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, tasks ...domain.PublishTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return q.add(ctx, q.clock(), tasks...)
}

// Schedule adds task to become due after delay.
func (q *RedisQueue) Schedule(ctx context.Context, task domain.PublishTask, delay time.Duration) error {
	return q.add(ctx, q.clock().Add(delay), task)
}

func (q *RedisQueue) add(ctx context.Context, dueAt time.Time, tasks ...domain.PublishTask) error {
	members := make([]redis.Z, 0, len(tasks))
	for _, task := range tasks {
		payload, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode publish task: %w", err)
		}
		members = append(members, redis.Z{Score: float64(dueAt.UnixMilli()), Member: string(payload)})
	}

	if err := q.client.ZAdd(ctx, q.key, members...).Err(); err != nil {
		return fmt.Errorf("failed to enqueue publish tasks: %w", err)
	}
	return nil
}

// Pop removes and returns up to limit tasks that are due.
func (q *RedisQueue) Pop(ctx context.Context, limit int) ([]domain.PublishTask, error) {
	now := strconv.FormatInt(q.clock().UnixMilli(), 10)

	items, err := popDue.Run(ctx, q.client, []string{q.key}, now, limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to pop publish tasks: %w", err)
	}

	tasks := make([]domain.PublishTask, 0, len(items))
	for _, item := range items {
		var task domain.PublishTask
		if err := json.Unmarshal([]byte(item), &task); err != nil {
			q.logger.Error("dropping undecodable publish task",
				slog.String("key", q.key),
				slog.Any("error", err),
			)
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// Len returns the number of queued tasks, due or not.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
