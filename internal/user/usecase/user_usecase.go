// Package usecase implements the user business logic and orchestrates user domain operations.
package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/userevents/internal/errors"
	outboxDomain "github.com/allisson/userevents/internal/outbox/domain"
	outboxUsecase "github.com/allisson/userevents/internal/outbox/usecase"
	"github.com/allisson/userevents/internal/user/domain"
	appValidation "github.com/allisson/userevents/internal/validation"
)

const maxFieldLength = 255

// CreateUserInput contains the input data for user creation
type CreateUserInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UseCase defines the interface for user business logic operations
type UseCase interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// UserRepository interface defines user repository operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// UserUseCase handles user-related business logic
type UserUseCase struct {
	coordinator *outboxUsecase.Coordinator
	userRepo    UserRepository
	logger      *slog.Logger
}

// NewUserUseCase creates a new UserUseCase
func NewUserUseCase(
	coordinator *outboxUsecase.Coordinator,
	userRepo UserRepository,
	logger *slog.Logger,
) UseCase {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UserUseCase{
		coordinator: coordinator,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// validateCreateUserInput checks the input in a fixed order and returns the first
// failure as a user domain error.
func validateCreateUserInput(input CreateUserInput) error {
	if err := validation.Validate(input.Email, validation.Required, appValidation.NotBlank); err != nil {
		return domain.ErrEmailRequired
	}
	if err := validation.Validate(input.Email, appValidation.Email); err != nil {
		return domain.ErrInvalidEmail
	}
	if err := validation.Validate(input.Email, validation.RuneLength(0, maxFieldLength)); err != nil {
		return domain.ErrEmailTooLong
	}

	err := validation.ValidateStruct(&input,
		validation.Field(&input.FirstName, validation.RuneLength(0, maxFieldLength)),
		validation.Field(&input.LastName, validation.RuneLength(0, maxFieldLength)),
	)
	if err != nil {
		return domain.ErrNameTooLong
	}

	return nil
}

// CreateUser creates a user and stages its UserCreated event in the same transaction.
// The event is published only after the user is committed. A second user with the same
// email fails with ErrUserAlreadyExists and produces no event.
func (uc *UserUseCase) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	uc.logger.InfoContext(ctx, "creating a new user")
	if err := validateCreateUserInput(input); err != nil {
		uc.logger.ErrorContext(ctx, "invalid request", slog.Any("error", err))
		return nil, err
	}

	user, err := outboxUsecase.RunWithOutbox(ctx, uc.coordinator,
		func(ctx context.Context) (*domain.User, []outboxDomain.Event, error) {
			existing, err := uc.userRepo.GetByEmail(ctx, input.Email)
			if err != nil && !apperrors.Is(err, domain.ErrUserNotFound) {
				return nil, nil, err
			}
			if existing != nil {
				return nil, nil, domain.ErrUserAlreadyExists
			}

			user := &domain.User{
				ID:        uuid.Must(uuid.NewV7()),
				Email:     input.Email,
				FirstName: strings.TrimSpace(input.FirstName),
				LastName:  strings.TrimSpace(input.LastName),
				IsActive:  true,
			}
			if err := uc.userRepo.Create(ctx, user); err != nil {
				return nil, nil, err
			}

			return user, []outboxDomain.Event{domain.NewUserCreated(user)}, nil
		},
	)
	if err != nil {
		if apperrors.Is(err, domain.ErrUserAlreadyExists) {
			uc.logger.WarnContext(ctx, "user already exists")
		} else {
			uc.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		}
		return nil, err
	}

	uc.logger.InfoContext(ctx, "user has been created", slog.String("user_id", user.ID.String()))
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (uc *UserUseCase) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return uc.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// GetUserByID retrieves a user by ID
func (uc *UserUseCase) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return uc.userRepo.GetByID(ctx, id)
}
