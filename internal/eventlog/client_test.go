package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/userevents/internal/errors"
	"github.com/allisson/userevents/internal/outbox/domain"
)

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) SendBatch(ctx context.Context, query string, rows [][]any) error {
	args := m.Called(ctx, query, rows)
	return args.Error(0)
}

func (m *MockSession) Query(ctx context.Context, query string, queryArgs ...any) ([][]any, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]any), args.Error(1)
}

func (m *MockSession) Exec(ctx context.Context, query string, queryArgs ...any) error {
	args := m.Called(ctx, query)
	return args.Error(0)
}

func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

var testConfig = Config{
	Database:           "default",
	Table:              "event_log",
	BreakerMaxFailures: 2,
	BreakerOpenTimeout: time.Minute,
}

func envelopes(n int) []domain.EventEnvelope {
	rows := make([]domain.EventEnvelope, n)
	for i := range rows {
		rows[i] = domain.EventEnvelope{
			EventType:   "user_created",
			OccurredAt:  time.Date(2026, 10, 15, 12, 0, i, 0, time.UTC),
			Environment: "Local",
			Context:     fmt.Sprintf(`{"n":%d}`, i),
		}
	}
	return rows
}

func TestInsertQuery(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO `default`.`event_log` (event_type, event_date_time, environment, event_context)",
		insertQuery("default", "event_log"),
	)
	assert.Equal(t,
		"INSERT INTO `event_log` (event_type, event_date_time, environment, event_context)",
		insertQuery("", "event_log"),
	)
}

func TestClient_Insert(t *testing.T) {
	ctx := context.Background()

	t.Run("sends rows in order with the four columns", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)
		rows := envelopes(1)

		conn.On("Ping", ctx).Return(nil).Once()
		conn.On("SendBatch", ctx, client.insertQuery, [][]any{
			{"user_created", rows[0].OccurredAt, "Local", `{"n":0}`},
		}).Return(nil).Once()

		err := client.Insert(ctx, rows, 100)

		require.NoError(t, err)
		conn.AssertExpectations(t)
	})

	t.Run("splits rows into batches", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)

		conn.On("Ping", ctx).Return(nil).Once()
		conn.On("SendBatch", ctx, client.insertQuery, mock.MatchedBy(func(rows [][]any) bool {
			return len(rows) == 2
		})).Return(nil).Twice()
		conn.On("SendBatch", ctx, client.insertQuery, mock.MatchedBy(func(rows [][]any) bool {
			return len(rows) == 1
		})).Return(nil).Once()

		err := client.Insert(ctx, envelopes(5), 2)

		require.NoError(t, err)
		conn.AssertNumberOfCalls(t, "SendBatch", 3)
	})

	t.Run("uses default batch size", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)

		conn.On("Ping", ctx).Return(nil).Once()
		conn.On("SendBatch", ctx, client.insertQuery, mock.MatchedBy(func(rows [][]any) bool {
			return len(rows) == DefaultBatchSize
		})).Return(nil).Once()
		conn.On("SendBatch", ctx, client.insertQuery, mock.MatchedBy(func(rows [][]any) bool {
			return len(rows) == 50
		})).Return(nil).Once()

		err := client.Insert(ctx, envelopes(150), 0)

		require.NoError(t, err)
		conn.AssertExpectations(t)
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)

		err := client.Insert(ctx, nil, 100)

		require.NoError(t, err)
		conn.AssertNotCalled(t, "Ping", mock.Anything)
	})

	t.Run("not connected is transient", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)

		conn.On("Ping", ctx).Return(errors.New("dial tcp: connection refused")).Once()

		err := client.Insert(ctx, envelopes(1), 100)

		assert.ErrorIs(t, err, ErrSinkUnavailable)
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.False(t, IsPermanent(err))
		conn.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("schema mismatch is permanent", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)

		conn.On("Ping", ctx).Return(nil).Once()
		conn.On("SendBatch", ctx, client.insertQuery, mock.Anything).
			Return(&clickhouse.Exception{Code: 16, Name: "NO_SUCH_COLUMN_IN_TABLE"}).Once()

		err := client.Insert(ctx, envelopes(1), 100)

		assert.ErrorIs(t, err, ErrSinkRejected)
		assert.True(t, IsPermanent(err))
	})

	t.Run("server overload is transient", func(t *testing.T) {
		conn := &MockSession{}
		client := newClient(conn, testConfig, nil)

		conn.On("Ping", ctx).Return(nil).Once()
		conn.On("SendBatch", ctx, client.insertQuery, mock.Anything).
			Return(&clickhouse.Exception{Code: 202, Name: "TOO_MANY_SIMULTANEOUS_QUERIES"}).Once()

		err := client.Insert(ctx, envelopes(1), 100)

		assert.ErrorIs(t, err, ErrSinkUnavailable)
	})
}

func TestClient_Insert_CircuitBreaker(t *testing.T) {
	ctx := context.Background()
	conn := &MockSession{}
	client := newClient(conn, testConfig, nil)

	conn.On("Ping", ctx).Return(nil)
	conn.On("SendBatch", ctx, client.insertQuery, mock.Anything).Return(errors.New("i/o timeout")).Twice()

	for range 2 {
		err := client.Insert(ctx, envelopes(1), 100)
		assert.ErrorIs(t, err, ErrSinkUnavailable)
	}

	err := client.Insert(ctx, envelopes(1), 100)

	assert.ErrorIs(t, err, ErrSinkUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	conn.AssertNumberOfCalls(t, "SendBatch", 2)
}

func TestClient_Insert_RejectedRowsDoNotTripBreaker(t *testing.T) {
	ctx := context.Background()
	conn := &MockSession{}
	client := newClient(conn, testConfig, nil)

	conn.On("Ping", ctx).Return(nil)
	conn.On("SendBatch", ctx, client.insertQuery, mock.Anything).
		Return(fmt.Errorf("%w: converting string to DateTime", errRowRejected)).Times(3)

	for range 3 {
		err := client.Insert(ctx, envelopes(1), 100)
		assert.ErrorIs(t, err, ErrSinkRejected)
	}

	conn.AssertNumberOfCalls(t, "SendBatch", 3)
}

func TestClient_IsConnected(t *testing.T) {
	ctx := context.Background()
	conn := &MockSession{}
	client := newClient(conn, testConfig, nil)

	conn.On("Ping", ctx).Return(nil).Once()
	conn.On("Ping", ctx).Return(errors.New("refused")).Once()

	assert.True(t, client.IsConnected(ctx))
	assert.False(t, client.IsConnected(ctx))
}

func TestClient_Query(t *testing.T) {
	ctx := context.Background()
	conn := &MockSession{}
	client := newClient(conn, testConfig, nil)

	conn.On("Query", ctx, "SELECT count() FROM event_log").Return([][]any{{uint64(3)}}, nil).Once()
	conn.On("Query", ctx, "SELECT broken").Return(nil, &clickhouse.Exception{Code: 62}).Once()

	rows, err := client.Query(ctx, "SELECT count() FROM event_log")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{uint64(3)}}, rows)

	_, err = client.Query(ctx, "SELECT broken")
	assert.ErrorIs(t, err, ErrSinkRejected)
}

func TestClient_EnsureTable(t *testing.T) {
	ctx := context.Background()
	conn := &MockSession{}
	client := newClient(conn, testConfig, nil)

	conn.On("Exec", ctx, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS `default`.`event_log`")
	})).Return(nil).Once()

	require.NoError(t, client.EnsureTable(ctx))
	conn.AssertExpectations(t)
}

func TestClient_Close(t *testing.T) {
	conn := &MockSession{}
	client := newClient(conn, testConfig, nil)
	conn.On("Close").Return(nil).Once()

	assert.NoError(t, client.Close())
	conn.AssertExpectations(t)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"unknown table", &clickhouse.Exception{Code: 60}, true},
		{"type mismatch wrapped", fmt.Errorf("send: %w", &clickhouse.Exception{Code: 53}), true},
		{"memory limit", &clickhouse.Exception{Code: 241}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"network", errors.New("broken pipe"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classify(nil))
}
