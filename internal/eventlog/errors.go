package eventlog

import (
	"context"
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2"

	apperrors "github.com/allisson/userevents/internal/errors"
)

var (
	// ErrSinkUnavailable marks failures that may succeed on retry (network, timeouts,
	// open circuit breaker, server overload).
	ErrSinkUnavailable = apperrors.Wrap(apperrors.ErrUnavailable, "event log unavailable")

	// ErrSinkRejected marks rows the event log will never accept as sent (malformed
	// values, schema mismatch).
	ErrSinkRejected = apperrors.Wrap(apperrors.ErrInvalidInput, "event log rejected event")

	errRowRejected = errors.New("row rejected by driver")
)

// ClickHouse server error codes that describe the data or the schema, not the server.
var rejectedCodes = map[int32]struct{}{
	6:   {}, // CANNOT_PARSE_TEXT
	16:  {}, // NO_SUCH_COLUMN_IN_TABLE
	26:  {}, // CANNOT_PARSE_QUOTED_STRING
	27:  {}, // CANNOT_PARSE_INPUT_ASSERTION_FAILED
	41:  {}, // CANNOT_PARSE_DATETIME
	47:  {}, // UNKNOWN_IDENTIFIER
	53:  {}, // TYPE_MISMATCH
	60:  {}, // UNKNOWN_TABLE
	62:  {}, // SYNTAX_ERROR
	70:  {}, // CANNOT_CONVERT_TYPE
	81:  {}, // UNKNOWN_DATABASE
	117: {}, // INCORRECT_DATA
}

// IsPermanent reports whether err means the event can never be written as is.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrSinkRejected)
}

func isRejected(err error) bool {
	if errors.Is(err, errRowRejected) {
		return true
	}

	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		_, ok := rejectedCodes[exception.Code]
		return ok
	}

	return false
}

// classify wraps err with ErrSinkRejected or ErrSinkUnavailable. Anything not known to
// be a data problem is treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Mark(ErrSinkUnavailable, err)
	}
	if isRejected(err) {
		return apperrors.Mark(ErrSinkRejected, err)
	}
	return apperrors.Mark(ErrSinkUnavailable, err)
}
