package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/mailer"
	"github.com/devsys-hq/apiserver/internal/store"
	"github.com/devsys-hq/apiserver/types"
)

// ActivationTTL is the validity window of a newly issued activation token.
const ActivationTTL = 15 * time.Minute

// activatedUserFeatures is the post-activation baseline. Activation replaces
// the capability set wholesale; anything granted before activation is
// discarded.
var activatedUserFeatures = []string{
	authz.FeatureCreateSession,
	authz.FeatureReadSession,
	authz.FeatureUpdateUser,
}

// ActivationTokenRepository defines persistence operations for activation
// tokens.
type ActivationTokenRepository interface {
	Create(ctx context.Context, token types.ActivationToken) (types.ActivationToken, error)
	FindOneValidByID(ctx context.Context, id uuid.UUID) (types.ActivationToken, error)
	FindOneByUserID(ctx context.Context, userID uuid.UUID) (types.ActivationToken, error)
	MarkAsUsed(ctx context.Context, id uuid.UUID) (types.ActivationToken, error)
}

// ActivationService encapsulates the activation token lifecycle.
type ActivationService struct {
	tokens  ActivationTokenRepository
	users   *UserService
	mailer  *mailer.Mailer
	siteURL string
}

func NewActivationService(tokens ActivationTokenRepository, users *UserService, m *mailer.Mailer, siteURL string) *ActivationService {
	return &ActivationService{
		tokens:  tokens,
		users:   users,
		mailer:  m,
		siteURL: siteURL,
	}
}

// Create issues a fresh activation token for the user. Multiple outstanding
// tokens per user are permitted; each is independently valid until used or
// expired.
func (s *ActivationService) Create(ctx context.Context, userID uuid.UUID) (types.ActivationToken, error) {
	return s.tokens.Create(ctx, types.ActivationToken{
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(ActivationTTL),
	})
}

// SendEmailToUser dispatches the activation message with the link embedding
// the token id. Dispatch failure propagates to the caller.
func (s *ActivationService) SendEmailToUser(ctx context.Context, user types.User, token types.ActivationToken) error {
	return s.mailer.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: "Activate your account",
		Body: fmt.Sprintf(
			"Hi %s,\n\nUse the link below to activate your account:\n\n%s/activations/%s\n\nThis link expires in %d minutes.",
			user.Username,
			s.siteURL,
			token.ID,
			int(ActivationTTL.Minutes()),
		),
	})
}

// FindOneValidByID returns the token only while it is unused and unexpired.
// Expired and consumed tokens are reported exactly like nonexistent ones.
func (s *ActivationService) FindOneValidByID(ctx context.Context, id uuid.UUID) (types.ActivationToken, error) {
	token, err := s.tokens.FindOneValidByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ActivationToken{}, activationTokenNotFound()
		}
		return types.ActivationToken{}, err
	}
	return token, nil
}

// FindOneByUserID returns the user's most recent token regardless of state.
func (s *ActivationService) FindOneByUserID(ctx context.Context, userID uuid.UUID) (types.ActivationToken, error) {
	token, err := s.tokens.FindOneByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ActivationToken{}, activationTokenNotFound()
		}
		return types.ActivationToken{}, err
	}
	return token, nil
}

// MarkTokenAsUsed consumes the token. The underlying write only succeeds
// while used_at is still null, so concurrent consumers cannot both claim it;
// the loser observes the same not-found as a stale token.
func (s *ActivationService) MarkTokenAsUsed(ctx context.Context, id uuid.UUID) (types.ActivationToken, error) {
	token, err := s.tokens.MarkAsUsed(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ActivationToken{}, activationTokenNotFound()
		}
		return types.ActivationToken{}, err
	}
	return token, nil
}

// ActivateUserByUserID applies the post-activation capability baseline.
// Only users still holding read:activation_token can be activated, which is
// how re-activation is detected and refused.
func (s *ActivationService) ActivateUserByUserID(ctx context.Context, userID uuid.UUID) (types.User, error) {
	user, err := s.users.FindOneByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	if !user.HasFeature(authz.FeatureReadActivationToken) {
		return types.User{}, apperr.Forbidden(
			"This account has already been activated.",
			"Log in to continue.",
		)
	}

	return s.users.SetFeatures(ctx, user.ID, activatedUserFeatures)
}

func activationTokenNotFound() error {
	return apperr.NotFound(
		"The activation token was not found in the system or has expired.",
		"Sign up again.",
	)
}
