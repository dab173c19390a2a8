package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/store"
	"github.com/devsys-hq/apiserver/types"
)

// SessionTTL is the validity window of a newly created session.
const SessionTTL = 30 * 24 * time.Hour

// sessionTokenBytes yields a 96-character hex token.
const sessionTokenBytes = 48

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	FindOneValidByToken(ctx context.Context, token string) (types.Session, error)
	ExpireByID(ctx context.Context, id uuid.UUID) (types.Session, error)
}

// SessionService encapsulates session lifecycle use-cases.
type SessionService struct {
	repo SessionRepository
}

func NewSessionService(repo SessionRepository) *SessionService {
	return &SessionService{repo: repo}
}

// Create issues a new session for the user with an unguessable token.
// Existing sessions are untouched; concurrent sessions are permitted.
func (s *SessionService) Create(ctx context.Context, userID uuid.UUID) (types.Session, error) {
	token, err := generateToken()
	if err != nil {
		return types.Session{}, apperr.Internal(err)
	}

	return s.repo.Create(ctx, types.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(SessionTTL),
	})
}

// FindOneValidByToken resolves an unexpired session by its token. A missing
// or expired session is an authentication failure, not a lookup miss: the
// boundary clears the client's stale cookie on this error.
func (s *SessionService) FindOneValidByToken(ctx context.Context, token string) (types.Session, error) {
	session, err := s.repo.FindOneValidByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Session{}, apperr.Unauthorized(
				"You do not have an active session.",
				"Check that you are logged in and try again.",
			)
		}
		return types.Session{}, err
	}
	return session, nil
}

// ExpireByID moves the session to its terminal expired state.
func (s *SessionService) ExpireByID(ctx context.Context, id uuid.UUID) (types.Session, error) {
	session, err := s.repo.ExpireByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Session{}, apperr.Unauthorized(
				"You do not have an active session.",
				"Check that you are logged in and try again.",
			)
		}
		return types.Session{}, err
	}
	return session, nil
}

func generateToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
