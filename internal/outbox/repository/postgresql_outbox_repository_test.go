package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/userevents/internal/outbox/domain"
)

var recordColumnNames = []string{
	"id", "idempotency_key", "event_type", "payload", "status", "attempts", "last_error",
	"correlation_id", "processed_at", "created_at", "updated_at",
}

func newPostgresMock(t *testing.T) (*PostgreSQLOutboxRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgreSQLOutboxRepository(db), mock
}

func TestNewPostgreSQLOutboxRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewPostgreSQLOutboxRepository(db)
	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestPostgreSQLOutboxRepository_Create(t *testing.T) {
	record := &domain.OutboxRecord{
		ID:             uuid.Must(uuid.NewV7()),
		IdempotencyKey: uuid.NewString(),
		EventType:      "user_created",
		Payload:        []byte(`{"email":"ada@example.com"}`),
		Status:         domain.OutboxStatusPending,
		CorrelationID:  "corr-1",
	}

	t.Run("inserts new record", func(t *testing.T) {
		repo, mock := newPostgresMock(t)
		mock.ExpectExec("INSERT INTO outbox_records .* ON CONFLICT \\(idempotency_key\\) DO NOTHING").
			WithArgs(record.ID, record.IdempotencyKey, "user_created", `{"email":"ada@example.com"}`,
				"pending", 0, nil, "corr-1", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		created, err := repo.Create(context.Background(), record)

		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate idempotency key is not an error", func(t *testing.T) {
		repo, mock := newPostgresMock(t)
		mock.ExpectExec("INSERT INTO outbox_records").WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := repo.Create(context.Background(), record)

		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newPostgresMock(t)
		mock.ExpectExec("INSERT INTO outbox_records").WillReturnError(errors.New("connection reset"))

		_, err := repo.Create(context.Background(), record)

		assert.EqualError(t, err, "connection reset")
	})
}

func TestPostgreSQLOutboxRepository_GetByIdempotencyKey(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		repo, mock := newPostgresMock(t)
		lastError := "timeout"
		rows := sqlmock.NewRows(recordColumnNames).
			AddRow(id.String(), "key-1", "user_created", []byte(`{"a":1}`), "failed", 2, lastError,
				"corr-1", nil, now, now)
		mock.ExpectQuery("SELECT .* FROM outbox_records WHERE idempotency_key = \\$1").
			WithArgs("key-1").
			WillReturnRows(rows)

		record, err := repo.GetByIdempotencyKey(context.Background(), "key-1")

		require.NoError(t, err)
		assert.Equal(t, id, record.ID)
		assert.Equal(t, domain.OutboxStatusFailed, record.Status)
		assert.Equal(t, 2, record.Attempts)
		require.NotNil(t, record.LastError)
		assert.Equal(t, "timeout", *record.LastError)
		assert.JSONEq(t, `{"a":1}`, string(record.Payload))
		assert.Nil(t, record.ProcessedAt)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newPostgresMock(t)
		mock.ExpectQuery("SELECT .* FROM outbox_records").WillReturnError(sql.ErrNoRows)

		record, err := repo.GetByIdempotencyKey(context.Background(), "missing")

		assert.Nil(t, record)
		assert.ErrorIs(t, err, domain.ErrOutboxRecordNotFound)
	})
}

func TestPostgreSQLOutboxRepository_MarkProcessed(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	processedAt := time.Now().UTC()

	tests := []struct {
		name     string
		rows     int64
		expected bool
	}{
		{name: "pending record is settled", rows: 1, expected: true},
		{name: "already processed record is left untouched", rows: 0, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newPostgresMock(t)
			mock.ExpectExec("UPDATE outbox_records\\s+SET status = \\$1, processed_at = \\$2.*WHERE id = \\$3 AND status = \\$4").
				WithArgs("processed", processedAt, id, "pending").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			applied, err := repo.MarkProcessed(context.Background(), id, processedAt)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, applied)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgreSQLOutboxRepository_MarkFailed(t *testing.T) {
	repo, mock := newPostgresMock(t)
	id := uuid.Must(uuid.NewV7())
	mock.ExpectExec("SET status = \\$1, attempts = attempts \\+ 1, last_error = \\$2.*WHERE id = \\$3 AND status = \\$4").
		WithArgs("failed", "sink unavailable", id, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.MarkFailed(context.Background(), id, "sink unavailable")

	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxRepository_Reopen(t *testing.T) {
	repo, mock := newPostgresMock(t)
	id := uuid.Must(uuid.NewV7())
	mock.ExpectExec("UPDATE outbox_records SET status = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND status = \\$3").
		WithArgs("pending", id, "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.Reopen(context.Background(), id)

	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLOutboxRepository_ResetFailed(t *testing.T) {
	repo, mock := newPostgresMock(t)
	id := uuid.Must(uuid.NewV7())
	mock.ExpectExec("SET status = \\$1, attempts = 0, last_error = NULL").
		WithArgs("pending", id, "failed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.ResetFailed(context.Background(), id)

	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPostgreSQLOutboxRepository_ListStale(t *testing.T) {
	repo, mock := newPostgresMock(t)
	before := time.Now().UTC()
	id1 := uuid.Must(uuid.NewV7())
	id2 := uuid.Must(uuid.NewV7())

	rows := sqlmock.NewRows(recordColumnNames).
		AddRow(id1.String(), "k1", "user_created", []byte(`{}`), "pending", 0, nil, "c1", nil, before, before).
		AddRow(id2.String(), "k2", "user_created", []byte(`{}`), "failed", 1, "boom", "c2", nil, before, before)
	mock.ExpectQuery("WHERE status IN \\(\\$1, \\$2\\) AND updated_at < \\$3 AND attempts <= \\$4.*FOR UPDATE SKIP LOCKED").
		WithArgs("pending", "failed", before, 3, 50).
		WillReturnRows(rows)

	records, err := repo.ListStale(context.Background(), before, 3, 50)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id1, records[0].ID)
	assert.Equal(t, id2, records[1].ID)
	assert.Equal(t, domain.OutboxStatusFailed, records[1].Status)
}

func TestPostgreSQLOutboxRepository_ListByStatus_DefaultLimit(t *testing.T) {
	repo, mock := newPostgresMock(t)
	mock.ExpectQuery("WHERE status = \\$1\\s+ORDER BY created_at ASC\\s+LIMIT \\$2 OFFSET \\$3").
		WithArgs("failed", DefaultListLimit, 0).
		WillReturnRows(sqlmock.NewRows(recordColumnNames))

	records, err := repo.ListByStatus(context.Background(), domain.OutboxStatusFailed, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}

func TestPostgreSQLOutboxRepository_CountByStatus(t *testing.T) {
	repo, mock := newPostgresMock(t)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM outbox_records GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("processed", 10))

	counts, err := repo.CountByStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[domain.OutboxStatusPending])
	assert.Equal(t, int64(10), counts[domain.OutboxStatusProcessed])
	assert.Equal(t, int64(0), counts[domain.OutboxStatusFailed])
}
