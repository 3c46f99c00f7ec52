package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalEventType(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"UserCreated", "user_created"},
		{"user_created", "user_created"},
		{"user.created", "user_created"},
		{"HTTPRequestSent", "http_request_sent"},
		{"UserV2Created", "user_v2_created"},
		{"Created", "created"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalEventType(tt.input))
		})
	}
}

func TestNewEventEnvelope(t *testing.T) {
	occurredAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	record := &OutboxRecord{
		EventType: "user_created",
		Payload:   json.RawMessage(`{"email":"a@example.com","first_name":"Ada","last_name":"Lovelace"}`),
	}

	t.Run("builds envelope from record", func(t *testing.T) {
		env, err := NewEventEnvelope(record, "Local", occurredAt)
		require.NoError(t, err)

		assert.Equal(t, "user_created", env.EventType)
		assert.Equal(t, occurredAt, env.OccurredAt)
		assert.Equal(t, "Local", env.Environment)
		assert.JSONEq(t, string(record.Payload), env.Context)
	})

	t.Run("rejects empty environment", func(t *testing.T) {
		_, err := NewEventEnvelope(record, "", occurredAt)
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})

	t.Run("rejects zero timestamp", func(t *testing.T) {
		_, err := NewEventEnvelope(record, "Local", time.Time{})
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := NewEventEnvelope(&OutboxRecord{EventType: "user_created"}, "Local", occurredAt)
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})
}
