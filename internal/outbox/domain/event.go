package domain

import (
	"strings"
	"time"
	"unicode"
)

// Event is a domain event produced by a business mutation.
//
// EventName returns the PascalCase name of the event (e.g. "UserCreated"); the outbox
// stores it in canonical lower_snake_case form. IdempotencyKey identifies the subject
// entity, so the same entity cannot produce the same event twice.
type Event interface {
	EventName() string
	IdempotencyKey() string
}

// CanonicalEventType converts an event name such as "UserCreated" into "user_created".
// Names that are already lower_snake_case are returned unchanged.
func CanonicalEventType(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))

	for i, r := range runes {
		switch {
		case r == '.' || r == '-' || r == ' ':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// EventEnvelope is the row written to the event log. It is built at publish time and
// never persisted in the outbox.
type EventEnvelope struct {
	EventType   string
	OccurredAt  time.Time
	Environment string
	Context     string
}

// NewEventEnvelope builds the envelope published for record.
func NewEventEnvelope(record *OutboxRecord, environment string, occurredAt time.Time) (EventEnvelope, error) {
	env := EventEnvelope{
		EventType:   record.EventType,
		OccurredAt:  occurredAt,
		Environment: environment,
		Context:     string(record.Payload),
	}
	if env.EventType == "" || env.Environment == "" || env.Context == "" || env.OccurredAt.IsZero() {
		return EventEnvelope{}, ErrInvalidEnvelope
	}
	return env, nil
}
