package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/database"
	"github.com/allisson/userevents/internal/outbox/domain"
)

// PostgreSQLOutboxRepository handles outbox record persistence for PostgreSQL.
//
// Every status change is a single conditional UPDATE guarded by the expected current
// status, so concurrent workers cannot move a record twice.
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{
		db: db,
	}
}

// Create inserts a pending record. It returns false without error when a record with
// the same idempotency key already exists.
func (r *PostgreSQLOutboxRepository) Create(ctx context.Context, record *domain.OutboxRecord) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_records (id, idempotency_key, event_type, payload, status, attempts,
			  last_error, correlation_id, processed_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			  ON CONFLICT (idempotency_key) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, record.ID, record.IdempotencyKey, record.EventType,
		string(record.Payload), record.Status, record.Attempts, record.LastError, record.CorrelationID,
		record.ProcessedAt)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// GetByID returns the record with the given id.
func (r *PostgreSQLOutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records WHERE id = $1`

	var recordID uuid.UUID
	record, err := scanRecord(querier.QueryRowContext(ctx, query, id), &recordID)
	if err != nil {
		return nil, err
	}
	record.ID = recordID

	return record, nil
}

// GetByIdempotencyKey returns the record with the given idempotency key.
func (r *PostgreSQLOutboxRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records WHERE idempotency_key = $1`

	var recordID uuid.UUID
	record, err := scanRecord(querier.QueryRowContext(ctx, query, key), &recordID)
	if err != nil {
		return nil, err
	}
	record.ID = recordID

	return record, nil
}

// MarkProcessed moves a pending record to processed. It returns false when the record
// was not pending, which means another attempt already settled it.
func (r *PostgreSQLOutboxRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	processedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records
			  SET status = $1, processed_at = $2, last_error = NULL, updated_at = NOW()
			  WHERE id = $3 AND status = $4`

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusProcessed, processedAt, id,
		domain.OutboxStatusPending)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// MarkFailed moves a pending record to failed, increments its attempt count and stores
// lastError. It returns false when the record was not pending.
func (r *PostgreSQLOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records
			  SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = NOW()
			  WHERE id = $3 AND status = $4`

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusFailed, lastError, id,
		domain.OutboxStatusPending)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// Reopen moves a failed record back to pending ahead of a retry.
func (r *PostgreSQLOutboxRepository) Reopen(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusPending, id, domain.OutboxStatusFailed)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// ResetFailed moves a failed record back to pending and clears its attempt budget.
func (r *PostgreSQLOutboxRepository) ResetFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records
			  SET status = $1, attempts = 0, last_error = NULL, updated_at = NOW()
			  WHERE id = $2 AND status = $3`

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusPending, id, domain.OutboxStatusFailed)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// Touch bumps updated_at of an unsettled record so the sweeper does not pick it up again
// before the task it just enqueued had a chance to run.
func (r *PostgreSQLOutboxRepository) Touch(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records SET updated_at = NOW() WHERE id = $1 AND status <> $2`

	_, err := querier.ExecContext(ctx, query, id, domain.OutboxStatusProcessed)
	return err
}

// ListByStatus lists records with the given status, oldest first.
func (r *PostgreSQLOutboxRepository) ListByStatus(
	ctx context.Context,
	status domain.OutboxStatus,
	offset, limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records
			  WHERE status = $1
			  ORDER BY created_at ASC
			  LIMIT $2 OFFSET $3`

	rows, err := querier.QueryContext(ctx, query, status, normalizeLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return r.collect(rows)
}

// ListStale locks and returns unsettled records that have not been touched since before
// and still have attempts left. Rows locked by another sweeper are skipped.
func (r *PostgreSQLOutboxRepository) ListStale(
	ctx context.Context,
	before time.Time,
	maxAttempts, limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records
			  WHERE status IN ($1, $2) AND updated_at < $3 AND attempts <= $4
			  ORDER BY updated_at ASC
			  LIMIT $5
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxStatusPending, domain.OutboxStatusFailed,
		before, maxAttempts, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return r.collect(rows)
}

// CountByStatus returns the number of records per status.
func (r *PostgreSQLOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return collectCounts(rows)
}

func (r *PostgreSQLOutboxRepository) collect(rows *sql.Rows) ([]*domain.OutboxRecord, error) {
	records := make([]*domain.OutboxRecord, 0)
	for rows.Next() {
		var recordID uuid.UUID
		record, err := scanRecord(rows, &recordID)
		if err != nil {
			return nil, err
		}
		record.ID = recordID
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func collectCounts(rows *sql.Rows) (map[domain.OutboxStatus]int64, error) {
	counts := map[domain.OutboxStatus]int64{
		domain.OutboxStatusPending:   0,
		domain.OutboxStatusProcessed: 0,
		domain.OutboxStatusFailed:    0,
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.OutboxStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
