package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, record *domain.OutboxRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.OutboxRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, processedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) (bool, error) {
	args := m.Called(ctx, id, lastError)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) Reopen(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) ResetFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) Touch(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) ListByStatus(
	ctx context.Context,
	status domain.OutboxStatus,
	offset, limit int,
) ([]*domain.OutboxRecord, error) {
	args := m.Called(ctx, status, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxRepository) ListStale(
	ctx context.Context,
	before time.Time,
	maxAttempts, limit int,
) ([]*domain.OutboxRecord, error) {
	args := m.Called(ctx, before, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.OutboxStatus]int64), args.Error(1)
}

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Insert(ctx context.Context, rows []domain.EventEnvelope, batchSize int) error {
	args := m.Called(ctx, rows, batchSize)
	return args.Error(0)
}

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(ctx context.Context, tasks ...domain.PublishTask) error {
	args := m.Called(ctx, tasks)
	return args.Error(0)
}

// MockTaskScheduler is a mock implementation of TaskScheduler
type MockTaskScheduler struct {
	mock.Mock
}

func (m *MockTaskScheduler) Schedule(ctx context.Context, task domain.PublishTask, delay time.Duration) error {
	args := m.Called(ctx, task, delay)
	return args.Error(0)
}

// MockPublisher is a mock implementation of Publishing
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, task domain.PublishTask) domain.PublishOutcome {
	args := m.Called(ctx, task)
	return args.Get(0).(domain.PublishOutcome)
}

type testEvent struct {
	Key   string `json:"key"`
	Email string `json:"email"`
}

func (e testEvent) EventName() string      { return "UserCreated" }
func (e testEvent) IdempotencyKey() string { return e.Key }

// memoryOutbox is an in-memory OutboxRepository with the same conditional update
// semantics as the SQL repositories.
type memoryOutbox struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.OutboxRecord
}

func newMemoryOutbox(records ...*domain.OutboxRecord) *memoryOutbox {
	m := &memoryOutbox{records: make(map[uuid.UUID]*domain.OutboxRecord)}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *memoryOutbox) clone(r *domain.OutboxRecord) *domain.OutboxRecord {
	c := *r
	return &c
}

func (m *memoryOutbox) Create(_ context.Context, record *domain.OutboxRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.IdempotencyKey == record.IdempotencyKey {
			return false, nil
		}
	}
	m.records[record.ID] = m.clone(record)
	return true, nil
}

func (m *memoryOutbox) GetByID(_ context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrOutboxRecordNotFound
	}
	return m.clone(r), nil
}

func (m *memoryOutbox) GetByIdempotencyKey(_ context.Context, key string) (*domain.OutboxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.IdempotencyKey == key {
			return m.clone(r), nil
		}
	}
	return nil, domain.ErrOutboxRecordNotFound
}

func (m *memoryOutbox) transition(id uuid.UUID, from domain.OutboxStatus, apply func(r *domain.OutboxRecord)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != from {
		return false
	}
	apply(r)
	return true
}

func (m *memoryOutbox) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) (bool, error) {
	return m.transition(id, domain.OutboxStatusPending, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxStatusProcessed
		r.ProcessedAt = &processedAt
		r.LastError = nil
	}), nil
}

func (m *memoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) (bool, error) {
	return m.transition(id, domain.OutboxStatusPending, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxStatusFailed
		r.Attempts++
		r.LastError = &lastError
	}), nil
}

func (m *memoryOutbox) Reopen(_ context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, domain.OutboxStatusFailed, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxStatusPending
	}), nil
}

func (m *memoryOutbox) ResetFailed(_ context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, domain.OutboxStatusFailed, func(r *domain.OutboxRecord) {
		r.Status = domain.OutboxStatusPending
		r.Attempts = 0
		r.LastError = nil
	}), nil
}

func (m *memoryOutbox) Touch(context.Context, uuid.UUID) error { return nil }

func (m *memoryOutbox) ListByStatus(
	context.Context,
	domain.OutboxStatus,
	int, int,
) ([]*domain.OutboxRecord, error) {
	return nil, nil
}

func (m *memoryOutbox) ListStale(context.Context, time.Time, int, int) ([]*domain.OutboxRecord, error) {
	return nil, nil
}

func (m *memoryOutbox) CountByStatus(context.Context) (map[domain.OutboxStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.OutboxStatus]int64)
	for _, r := range m.records {
		counts[r.Status]++
	}
	return counts, nil
}

// recordingScheduler collects scheduled retries instead of delaying them.
type recordingScheduler struct {
	tasks  []domain.PublishTask
	delays []time.Duration
}

func (s *recordingScheduler) Schedule(_ context.Context, task domain.PublishTask, delay time.Duration) error {
	s.tasks = append(s.tasks, task)
	s.delays = append(s.delays, delay)
	return nil
}

// scriptedSink returns the next error in errs on every call and succeeds once errs is
// exhausted. A non-nil always fails every call.
type scriptedSink struct {
	mu     sync.Mutex
	errs   []error
	always error
	calls  int
	rows   []domain.EventEnvelope
}

func (s *scriptedSink) Insert(_ context.Context, rows []domain.EventEnvelope, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.always != nil {
		return s.always
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.rows = append(s.rows, rows...)
	return nil
}
