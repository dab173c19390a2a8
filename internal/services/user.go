package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/store"
	"github.com/devsys-hq/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindOneByID(ctx context.Context, id uuid.UUID) (types.User, error)
	FindOneByUsername(ctx context.Context, username string) (types.User, error)
	FindOneByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	SetFeatures(ctx context.Context, id uuid.UUID, features []string) (types.User, error)
	AddFeatures(ctx context.Context, id uuid.UUID, features []string) (types.User, error)
}

// UserInput carries caller-supplied account fields. Nil pointers on update
// mean "leave unchanged".
type UserInput struct {
	Username *string
	Email    *string
	Password *string
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo       UserRepository
	bcryptCost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, bcryptCost: bcrypt.DefaultCost}
}

// NewUserServiceWithCost allows tuning the hashing cost (lowered in tests).
func NewUserServiceWithCost(repo UserRepository, cost int) *UserService {
	return &UserService{repo: repo, bcryptCost: cost}
}

// Create registers a new account. The capability set starts as exactly
// {read:activation_token}: the account cannot log in until activated.
func (s *UserService) Create(ctx context.Context, username, email, password string) (types.User, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return types.User{}, apperr.Internal(err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Features:     []string{authz.FeatureReadActivationToken},
	})
	if err != nil {
		return types.User{}, mapUserStoreError(err)
	}
	return user, nil
}

func (s *UserService) FindOneByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	user, err := s.repo.FindOneByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(
				"The requested id was not found in the system.",
				"Check that the id is typed correctly.",
			)
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) FindOneByUsername(ctx context.Context, username string) (types.User, error) {
	user, err := s.repo.FindOneByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(
				"The requested username was not found in the system.",
				"Check that the username is typed correctly.",
			)
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) FindOneByEmail(ctx context.Context, email string) (types.User, error) {
	user, err := s.repo.FindOneByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(
				"The requested email was not found in the system.",
				"Check that the email is typed correctly.",
			)
		}
		return types.User{}, err
	}
	return user, nil
}

// Update applies the provided fields to the user identified by username.
// Changed usernames and emails go through the same uniqueness rules as
// creation; a changed password is re-hashed.
func (s *UserService) Update(ctx context.Context, username string, input UserInput) (types.User, error) {
	current, err := s.FindOneByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}

	if input.Username != nil {
		current.Username = *input.Username
	}
	if input.Email != nil {
		current.Email = *input.Email
	}
	if input.Password != nil {
		hash, err := s.hashPassword(*input.Password)
		if err != nil {
			return types.User{}, apperr.Internal(err)
		}
		current.PasswordHash = hash
	}

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return types.User{}, mapUserStoreError(err)
	}
	return updated, nil
}

// SetFeatures replaces the user's capability set wholesale.
func (s *UserService) SetFeatures(ctx context.Context, id uuid.UUID, features []string) (types.User, error) {
	user, err := s.repo.SetFeatures(ctx, id, features)
	if err != nil {
		return types.User{}, mapUserStoreError(err)
	}
	return user, nil
}

// AddFeatures appends capabilities to the user's set. Intended for
// privileged operators granting features past the activation baseline.
func (s *UserService) AddFeatures(ctx context.Context, id uuid.UUID, features []string) (types.User, error) {
	user, err := s.repo.AddFeatures(ctx, id, features)
	if err != nil {
		return types.User{}, mapUserStoreError(err)
	}
	return user, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func mapUserStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrDuplicateUsername):
		return apperr.Validation(
			"The username provided is already in use.",
			"Use another username for this operation.",
		)
	case errors.Is(err, store.ErrDuplicateEmail):
		return apperr.Validation(
			"The email provided is already in use.",
			"Use another email for this operation.",
		)
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(
			"The requested user was not found in the system.",
			"Check that the user still exists.",
		)
	default:
		return err
	}
}
