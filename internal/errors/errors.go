// Package errors holds the error categories shared by every layer. Stores, sinks and
// use cases wrap one of the categories so that transports can map a failure without
// knowing where it came from.
package errors

import (
	"errors"
	"fmt"
)

// Categories, most specific first.
var (
	// ErrNotFound means the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the operation clashes with current state, such as a duplicate
	// email or a status change that is no longer allowed.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput means the caller sent data that can never be accepted as is.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable means a dependency could not be reached and a retry may succeed.
	ErrUnavailable = errors.New("unavailable")
)

var categories = []error{ErrNotFound, ErrConflict, ErrInvalidInput, ErrUnavailable}

// New returns an error with a fixed message.
func New(message string) error {
	return errors.New(message)
}

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Mark returns an error matching both marker and err, reading "marker: err". A nil err
// stays nil.
func Mark(marker, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", marker, err)
}

// Kind returns the category err belongs to, or nil when it has none.
func Kind(err error) error {
	for _, category := range categories {
		if errors.Is(err, category) {
			return category
		}
	}
	return nil
}

// Is wraps errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
