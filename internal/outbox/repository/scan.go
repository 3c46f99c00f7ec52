// Package repository provides data persistence implementations for outbox entities.
package repository

import (
	"database/sql"
	"errors"

	"github.com/allisson/userevents/internal/outbox/domain"
)

// DefaultListLimit bounds list queries issued without an explicit limit.
const DefaultListLimit = 100

const recordColumns = `id, idempotency_key, event_type, payload, status, attempts, last_error,
	correlation_id, processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one outbox row. id is scanned into idDest so that MySQL can decode
// BINARY(16) while PostgreSQL scans the native UUID directly.
func scanRecord(row rowScanner, idDest any) (*domain.OutboxRecord, error) {
	var (
		record  domain.OutboxRecord
		payload []byte
		status  string
	)

	err := row.Scan(idDest, &record.IdempotencyKey, &record.EventType, &payload, &status,
		&record.Attempts, &record.LastError, &record.CorrelationID, &record.ProcessedAt,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutboxRecordNotFound
		}
		return nil, err
	}

	record.Payload = payload
	record.Status = domain.OutboxStatus(status)

	return &record, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
