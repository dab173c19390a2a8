// Package storetest provides in-memory repository implementations for
// tests. They mirror the SQL repositories' contracts, including the
// case-insensitive uniqueness rules and the atomic activation-token claim.
package storetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/internal/store"
	"github.com/devsys-hq/apiserver/types"
)

// MemUserRepository is an in-memory store.UserRepository equivalent.
type MemUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func NewMemUserRepository() *MemUserRepository {
	return &MemUserRepository{users: map[uuid.UUID]types.User{}}
}

func (r *MemUserRepository) FindOneByID(_ context.Context, id uuid.UUID) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *MemUserRepository) FindOneByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Username, username) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *MemUserRepository) FindOneByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *MemUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return types.User{}, store.ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrDuplicateEmail
		}
	}

	now := time.Now().UTC()
	user.ID = uuid.New()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *MemUserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}

	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(existing.Username, user.Username) {
			return types.User{}, store.ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrDuplicateEmail
		}
	}

	user.CreatedAt = current.CreatedAt
	user.Features = current.Features
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = user
	return user, nil
}

func (r *MemUserRepository) SetFeatures(_ context.Context, id uuid.UUID, features []string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Features = append([]string(nil), features...)
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return user, nil
}

func (r *MemUserRepository) AddFeatures(_ context.Context, id uuid.UUID, features []string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	for _, feature := range features {
		if !user.HasFeature(feature) {
			user.Features = append(user.Features, feature)
		}
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return user, nil
}

// MemSessionRepository is an in-memory store.SessionRepository equivalent.
type MemSessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]types.Session

	// Now is swappable so tests can move the clock.
	Now func() time.Time
}

func NewMemSessionRepository() *MemSessionRepository {
	return &MemSessionRepository{
		sessions: map[uuid.UUID]types.Session{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemSessionRepository) Create(_ context.Context, session types.Session) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()
	session.ID = uuid.New()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.ID] = session
	return session, nil
}

func (r *MemSessionRepository) FindOneValidByToken(_ context.Context, token string) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		if session.Token == token && r.Now().Before(session.ExpiresAt) {
			return session, nil
		}
	}
	return types.Session{}, store.ErrNotFound
}

func (r *MemSessionRepository) ExpireByID(_ context.Context, id uuid.UUID) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	now := r.Now()
	session.ExpiresAt = now
	session.UpdatedAt = now
	r.sessions[id] = session
	return session, nil
}

// MemActivationTokenRepository is an in-memory
// store.ActivationTokenRepository equivalent.
type MemActivationTokenRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]types.ActivationToken

	Now func() time.Time
}

func NewMemActivationTokenRepository() *MemActivationTokenRepository {
	return &MemActivationTokenRepository{
		tokens: map[uuid.UUID]types.ActivationToken{},
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemActivationTokenRepository) Create(_ context.Context, token types.ActivationToken) (types.ActivationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()
	token.ID = uuid.New()
	token.CreatedAt = now
	token.UpdatedAt = now
	r.tokens[token.ID] = token
	return token, nil
}

func (r *MemActivationTokenRepository) FindOneValidByID(_ context.Context, id uuid.UUID) (types.ActivationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[id]
	if !ok || token.Used() || !r.Now().Before(token.ExpiresAt) {
		return types.ActivationToken{}, store.ErrNotFound
	}
	return token, nil
}

func (r *MemActivationTokenRepository) FindOneByUserID(_ context.Context, userID uuid.UUID) (types.ActivationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *types.ActivationToken
	for _, token := range r.tokens {
		if token.UserID != userID {
			continue
		}
		if latest == nil || token.CreatedAt.After(latest.CreatedAt) {
			t := token
			latest = &t
		}
	}
	if latest == nil {
		return types.ActivationToken{}, store.ErrNotFound
	}
	return *latest, nil
}

func (r *MemActivationTokenRepository) MarkAsUsed(_ context.Context, id uuid.UUID) (types.ActivationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[id]
	if !ok || token.Used() {
		return types.ActivationToken{}, store.ErrNotFound
	}
	now := r.Now()
	token.UsedAt = &now
	token.UpdatedAt = now
	r.tokens[id] = token
	return token, nil
}

// ExpireToken backdates a token's expiry, for tests exercising the expired
// path.
func (r *MemActivationTokenRepository) ExpireToken(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[id]
	if !ok {
		return
	}
	token.ExpiresAt = r.Now().Add(-time.Second)
	r.tokens[id] = token
}
