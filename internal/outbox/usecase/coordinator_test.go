package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/userevents/internal/database"
	"github.com/allisson/userevents/internal/outbox/domain"
)

func newTestCoordinator(t *testing.T) (*Coordinator, database.TxManager, sqlmock.Sqlmock, *MockOutboxRepository, *MockDispatcher) {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	txManager := database.NewTxManager(db)
	outboxRepo := &MockOutboxRepository{}
	dispatcher := &MockDispatcher{}

	return NewCoordinator(txManager, outboxRepo, dispatcher, nil), txManager, sqlMock, outboxRepo, dispatcher
}

func TestRunWithOutbox_Success(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)
	ctx := WithCorrelationID(context.Background(), "req-123")
	event := testEvent{Key: "42", Email: "john@example.com"}

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	var staged *domain.OutboxRecord
	outboxRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.OutboxRecord) bool {
		staged = r
		return r.Status == domain.OutboxStatusPending &&
			r.EventType == "user_created" &&
			r.IdempotencyKey == "42" &&
			r.CorrelationID == "req-123" &&
			r.Attempts == 0
	})).Return(true, nil).Once()
	dispatcher.On("Enqueue", mock.Anything, mock.MatchedBy(func(tasks []domain.PublishTask) bool {
		return len(tasks) == 1 && tasks[0].IdempotencyKey == "42" && tasks[0].CorrelationID == "req-123"
	})).Return(nil).Once()

	result, err := RunWithOutbox(ctx, c, func(ctx context.Context) (string, []domain.Event, error) {
		assert.True(t, database.InTx(ctx))
		assert.Equal(t, "req-123", CorrelationID(ctx))
		return "created", []domain.Event{event}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "created", result)
	require.NotNil(t, staged)
	assert.JSONEq(t, `{"key":"42","email":"john@example.com"}`, string(staged.Payload))
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	outboxRepo.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestRunWithOutbox_GeneratesCorrelationID(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	var correlationID string
	outboxRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.OutboxRecord) bool {
		correlationID = r.CorrelationID
		return true
	})).Return(true, nil)
	dispatcher.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	_, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
		assert.NotEmpty(t, CorrelationID(ctx))
		return 1, []domain.Event{testEvent{Key: "1"}}, nil
	})

	require.NoError(t, err)
	_, parseErr := uuid.Parse(correlationID)
	assert.NoError(t, parseErr)
}

func TestRunWithOutbox_MutationErrorRollsBack(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)
	mutationErr := errors.New("email taken")

	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	result, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (*struct{}, []domain.Event, error) {
		return nil, nil, mutationErr
	})

	assert.ErrorIs(t, err, mutationErr)
	assert.Nil(t, result)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_PanicRollsBackAndRepanics(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(true, nil)

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
			panic("boom")
		})
	})

	assert.NoError(t, sqlMock.ExpectationsWereMet())
	outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_CreateErrorRollsBack(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)
	dbErr := errors.New("connection reset")

	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(false, dbErr)

	_, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
		return 1, []domain.Event{testEvent{Key: "1"}}, nil
	})

	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "failed to create outbox record")
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_InvalidEventRollsBack(t *testing.T) {
	c, _, sqlMock, outboxRepo, _ := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	_, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
		return 1, []domain.Event{testEvent{Key: "  "}}, nil
	})

	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_DuplicateEventSkipped(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(false, nil).Once()

	result, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
		return 7, []domain.Event{testEvent{Key: "7"}}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_NoEvents(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	result, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (string, []domain.Event, error) {
		return "noop", nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "noop", result)
	outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_EnqueueErrorIsNotReturned(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(true, nil)
	dispatcher.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	result, err := RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
		return 1, []domain.Event{testEvent{Key: "1"}}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result)
	dispatcher.AssertExpectations(t)
}

func TestRunWithOutbox_CancelledContextStillEnqueues(t *testing.T) {
	c, _, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(true, nil)
	dispatcher.On("Enqueue", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	_, err := RunWithOutbox(ctx, c, func(ctx context.Context) (int, []domain.Event, error) {
		return 1, []domain.Event{testEvent{Key: "1"}}, nil
	})
	cancel()

	require.NoError(t, err)
	dispatcher.AssertExpectations(t)
}

func TestRunWithOutbox_JoinsOuterTransaction(t *testing.T) {
	c, txManager, sqlMock, outboxRepo, dispatcher := newTestCoordinator(t)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(true, nil)

	err := txManager.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := RunWithOutbox(ctx, c, func(ctx context.Context) (int, []domain.Event, error) {
			return 1, []domain.Event{testEvent{Key: "1"}}, nil
		})
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	dispatcher.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRunWithOutbox_WithoutDispatcher(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	outboxRepo := &MockOutboxRepository{}
	c := NewCoordinator(database.NewTxManager(db), outboxRepo, nil, nil)

	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()
	outboxRepo.On("Create", mock.Anything, mock.Anything).Return(true, nil)

	_, err = RunWithOutbox(context.Background(), c, func(ctx context.Context) (int, []domain.Event, error) {
		return 1, []domain.Event{testEvent{Key: "1"}}, nil
	})

	assert.NoError(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
