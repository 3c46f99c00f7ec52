package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OutcomeKind is the result of a single publish attempt.
type OutcomeKind int

const (
	// OutcomePublished means the event reached the event log and the record is processed.
	OutcomePublished OutcomeKind = iota + 1
	// OutcomeAlreadyProcessed means the record was processed before this attempt.
	OutcomeAlreadyProcessed
	// OutcomeFailed means the attempt failed and the record was marked failed.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePublished:
		return "published"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind tells the retry scheduler whether another attempt can succeed.
type FailureKind int

const (
	FailureTransient FailureKind = iota + 1
	FailurePermanent
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// PublishOutcome is returned by the publisher instead of raising. Failure and Err are only
// set for OutcomeFailed. Attempts is the persisted attempt count after this attempt.
type PublishOutcome struct {
	Kind     OutcomeKind
	Failure  FailureKind
	Err      error
	Attempts int
}

// Published returns a successful outcome.
func Published(attempts int) PublishOutcome {
	return PublishOutcome{Kind: OutcomePublished, Attempts: attempts}
}

// AlreadyProcessed returns the outcome of a duplicate delivery.
func AlreadyProcessed(attempts int) PublishOutcome {
	return PublishOutcome{Kind: OutcomeAlreadyProcessed, Attempts: attempts}
}

// Failed returns a failed outcome of the given kind.
func Failed(kind FailureKind, err error, attempts int) PublishOutcome {
	return PublishOutcome{Kind: OutcomeFailed, Failure: kind, Err: err, Attempts: attempts}
}

// IsDone reports whether no further attempt is needed.
func (o PublishOutcome) IsDone() bool {
	return o.Kind == OutcomePublished || o.Kind == OutcomeAlreadyProcessed
}

func (o PublishOutcome) String() string {
	if o.Kind != OutcomeFailed {
		return o.Kind.String()
	}
	return fmt.Sprintf("failed(%s): %v", o.Failure, o.Err)
}

// PublishTask is the unit of work handed to the task runner. Attempt counts the retries
// already scheduled for this task; the durable counter lives on the record.
type PublishTask struct {
	RecordID       uuid.UUID `json:"record_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	EventType      string    `json:"event_type"`
	CorrelationID  string    `json:"correlation_id"`
	Attempt        int       `json:"attempt"`
	LastError      string    `json:"last_error,omitempty"`
}

// Next returns the task scheduled after a failed attempt.
func (t PublishTask) Next(lastErr error) PublishTask {
	next := t
	next.Attempt++
	next.LastError = ""
	if lastErr != nil {
		next.LastError = SanitizeError(lastErr)
	}
	return next
}
