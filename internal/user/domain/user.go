// Package domain defines the core user domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/userevents/internal/errors"
)

// User represents a registered user.
type User struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	LastName  string
	IsActive  bool
	IsStaff   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCreated is published once per user after the user is committed.
type UserCreated struct {
	UserID    uuid.UUID `json:"-"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// NewUserCreated returns the event describing the creation of user.
func NewUserCreated(user *User) UserCreated {
	return UserCreated{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

// EventName returns "UserCreated".
func (e UserCreated) EventName() string {
	return "UserCreated"
}

// IdempotencyKey returns the user id, so a user can only be announced once.
func (e UserCreated) IdempotencyKey() string {
	return e.UserID.String()
}

// Domain-specific errors for user operations. Messages are shown to callers as is.
var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.Wrap(errors.ErrNotFound, "User not found")

	// ErrUserAlreadyExists indicates a user with the same email already exists.
	ErrUserAlreadyExists = errors.Wrap(errors.ErrConflict, "User with this email already exists")

	// ErrEmailRequired indicates the email field is empty.
	ErrEmailRequired = errors.Wrap(errors.ErrInvalidInput, "Email is required")

	// ErrInvalidEmail indicates the email format is invalid.
	ErrInvalidEmail = errors.Wrap(errors.ErrInvalidInput, "Invalid email format")

	// ErrEmailTooLong indicates the email exceeds 255 characters.
	ErrEmailTooLong = errors.Wrap(errors.ErrInvalidInput, "Email is too long")

	// ErrNameTooLong indicates the first or last name exceeds 255 characters.
	ErrNameTooLong = errors.Wrap(errors.ErrInvalidInput, "Name fields are too long")
)
