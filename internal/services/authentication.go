package services

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/types"
)

// AuthenticationService verifies login credentials. It deliberately reports
// the same failure for an unknown email and for a wrong password.
type AuthenticationService struct {
	users *UserService
}

func NewAuthenticationService(users *UserService) *AuthenticationService {
	return &AuthenticationService{users: users}
}

// GetAuthenticatedUser returns the user matching email and password.
func (s *AuthenticationService) GetAuthenticatedUser(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.users.FindOneByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return types.User{}, credentialsMismatch()
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, credentialsMismatch()
	}

	return user, nil
}

func credentialsMismatch() error {
	return apperr.Unauthorized(
		"The authentication data does not match.",
		"Check that the data sent is correct.",
	)
}
