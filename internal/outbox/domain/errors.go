package domain

import (
	apperrors "github.com/allisson/userevents/internal/errors"
)

// Outbox domain errors.
var (
	// ErrOutboxRecordNotFound indicates no record exists for the idempotency key or id.
	ErrOutboxRecordNotFound = apperrors.Wrap(apperrors.ErrNotFound, "outbox record not found")

	// ErrInvalidEvent indicates a domain event cannot be written to the outbox.
	ErrInvalidEvent = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid outbox event")

	// ErrInvalidEnvelope indicates a record cannot be turned into an event log row.
	ErrInvalidEnvelope = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid event envelope")

	// ErrInvalidStatus indicates an unknown outbox status.
	ErrInvalidStatus = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid outbox status")

	// ErrInvalidTransition indicates a status change forbidden by the record lifecycle.
	ErrInvalidTransition = apperrors.Wrap(apperrors.ErrConflict, "invalid outbox status transition")

	// ErrRetriesExhausted is the terminal error reported once all retries failed.
	ErrRetriesExhausted = apperrors.New("outbox retries exhausted")

	// ErrPermanentFailure is the terminal error reported for events the sink rejected.
	ErrPermanentFailure = apperrors.New("outbox event permanently rejected")
)
