package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/database"
	"github.com/allisson/userevents/internal/outbox/domain"
)

// MySQLOutboxRepository handles outbox record persistence for MySQL. Ids are stored as
// BINARY(16).
type MySQLOutboxRepository struct {
	db *sql.DB
}

// NewMySQLOutboxRepository creates a new MySQLOutboxRepository
func NewMySQLOutboxRepository(db *sql.DB) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{
		db: db,
	}
}

// Create inserts a pending record. It returns false without error when a record with
// the same idempotency key already exists.
func (r *MySQLOutboxRepository) Create(ctx context.Context, record *domain.OutboxRecord) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	// The no-op update leaves RowsAffected at 0 for duplicates.
	query := `INSERT INTO outbox_records (id, idempotency_key, event_type, payload, status, attempts,
			  last_error, correlation_id, processed_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(6), NOW(6))
			  ON DUPLICATE KEY UPDATE id = id`

	idBytes, err := record.ID.MarshalBinary()
	if err != nil {
		return false, err
	}

	result, err := querier.ExecContext(ctx, query, idBytes, record.IdempotencyKey, record.EventType,
		string(record.Payload), record.Status, record.Attempts, record.LastError, record.CorrelationID,
		record.ProcessedAt)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// GetByID returns the record with the given id.
func (r *MySQLOutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM outbox_records WHERE id = ?`

	return r.scanOne(querier.QueryRowContext(ctx, query, idBytes))
}

// GetByIdempotencyKey returns the record with the given idempotency key.
func (r *MySQLOutboxRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records WHERE idempotency_key = ?`

	return r.scanOne(querier.QueryRowContext(ctx, query, key))
}

// MarkProcessed moves a pending record to processed. It returns false when the record
// was not pending.
func (r *MySQLOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) (bool, error) {
	query := `UPDATE outbox_records
			  SET status = ?, processed_at = ?, last_error = NULL, updated_at = NOW(6)
			  WHERE id = ? AND status = ?`

	return r.transition(ctx, query, id, domain.OutboxStatusProcessed, processedAt)
}

// MarkFailed moves a pending record to failed, increments its attempt count and stores
// lastError. It returns false when the record was not pending.
func (r *MySQLOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) (bool, error) {
	query := `UPDATE outbox_records
			  SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = NOW(6)
			  WHERE id = ? AND status = ?`

	return r.transition(ctx, query, id, domain.OutboxStatusFailed, lastError)
}

// Reopen moves a failed record back to pending ahead of a retry.
func (r *MySQLOutboxRepository) Reopen(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE outbox_records SET status = ?, updated_at = NOW(6) WHERE id = ? AND status = ?`

	return r.reopen(ctx, query, id)
}

// ResetFailed moves a failed record back to pending and clears its attempt budget.
func (r *MySQLOutboxRepository) ResetFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE outbox_records
			  SET status = ?, attempts = 0, last_error = NULL, updated_at = NOW(6)
			  WHERE id = ? AND status = ?`

	return r.reopen(ctx, query, id)
}

// Touch bumps updated_at of an unsettled record.
func (r *MySQLOutboxRepository) Touch(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return err
	}

	query := `UPDATE outbox_records SET updated_at = NOW(6) WHERE id = ? AND status <> ?`

	_, err = querier.ExecContext(ctx, query, idBytes, domain.OutboxStatusProcessed)
	return err
}

// ListByStatus lists records with the given status, oldest first.
func (r *MySQLOutboxRepository) ListByStatus(
	ctx context.Context,
	status domain.OutboxStatus,
	offset, limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records
			  WHERE status = ?
			  ORDER BY created_at ASC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, status, normalizeLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return r.collect(rows)
}

// ListStale locks and returns unsettled records that have not been touched since before
// and still have attempts left. Rows locked by another sweeper are skipped.
func (r *MySQLOutboxRepository) ListStale(
	ctx context.Context,
	before time.Time,
	maxAttempts, limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + recordColumns + ` FROM outbox_records
			  WHERE status IN (?, ?) AND updated_at < ? AND attempts <= ?
			  ORDER BY updated_at ASC
			  LIMIT ?
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
func (r *MySQLOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return collectCounts(rows)
}

func (r *MySQLOutboxRepository) transition(
	ctx context.Context,
	query string,
	id uuid.UUID,
	to domain.OutboxStatus,
	arg any,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	result, err := querier.ExecContext(ctx, query, to, arg, idBytes, domain.OutboxStatusPending)
	if err != nil {
		return false, err
	}

	return affected(result)
}

func (r *MySQLOutboxRepository) reopen(ctx context.Context, query string, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusPending, idBytes, domain.OutboxStatusFailed)
	if err != nil {
		return false, err
	}

	return affected(result)
}

func (r *MySQLOutboxRepository) scanOne(row *sql.Row) (*domain.OutboxRecord, error) {
	var idBytes []byte
	record, err := scanRecord(row, &idBytes)
	if err != nil {
		return nil, err
	}
	if err := record.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *MySQLOutboxRepository) collect(rows *sql.Rows) ([]*domain.OutboxRecord, error) {
	records := make([]*domain.OutboxRecord, 0)
	for rows.Next() {
		var idBytes []byte
		record, err := scanRecord(rows, &idBytes)
		if err != nil {
			return nil, err
		}
		if err := record.ID.UnmarshalBinary(idBytes); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
