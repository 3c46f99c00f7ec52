// Package domain defines the core outbox domain entities and types.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the lifecycle state of an outbox record.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// ParseOutboxStatus validates and converts a raw string status.
func ParseOutboxStatus(raw string) (OutboxStatus, error) {
	status := OutboxStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// IsValid reports whether the status is part of the outbox lifecycle.
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusProcessed, OutboxStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is allowed.
// processed is terminal; pending and failed may alternate.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxStatusPending:
		return next == OutboxStatusProcessed || next == OutboxStatusFailed
	case OutboxStatusFailed:
		return next == OutboxStatusPending
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition when from cannot move to to.
func ValidateTransition(from, to OutboxStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxRecord is a durable statement that an event must be published to the event log.
// It is written in the same transaction as the business change that produced the event.
type OutboxRecord struct {
	ID             uuid.UUID
	IdempotencyKey string
	EventType      string
	Payload        json.RawMessage
	Status         OutboxStatus
	Attempts       int
	LastError      *string
	CorrelationID  string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal reports whether no further publish attempt may change the record.
func (r *OutboxRecord) IsTerminal() bool {
	return r.Status == OutboxStatusProcessed
}

// Task returns the publish task that drives this record through the task runner.
func (r *OutboxRecord) Task() PublishTask {
	return PublishTask{
		RecordID:       r.ID,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      r.EventType,
		CorrelationID:  r.CorrelationID,
	}
}
