package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/types"
)

// SessionRepository handles persistence for sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	now := time.Now().UTC()
	session.ID = uuid.New()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `
		INSERT INTO sessions (id, token, user_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.Token,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

// FindOneValidByToken looks up a session by exact token match that has not
// yet expired. Expired sessions are indistinguishable from missing ones.
func (r *SessionRepository) FindOneValidByToken(ctx context.Context, token string) (types.Session, error) {
	const query = `
		SELECT id, token, user_id, expires_at, created_at, updated_at
		FROM sessions
		WHERE token = $1
		  AND expires_at > now()
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// ExpireByID forces the session into its terminal state by setting
// expires_at to now. The row is kept for audit.
func (r *SessionRepository) ExpireByID(ctx context.Context, id uuid.UUID) (types.Session, error) {
	const query = `
		UPDATE sessions
		SET expires_at = $2,
			updated_at = $2
		WHERE id = $1
		RETURNING id, token, user_id, expires_at, created_at, updated_at`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, time.Now().UTC()))
}

func (r *SessionRepository) scanOne(row *sql.Row) (types.Session, error) {
	var session types.Session
	err := row.Scan(
		&session.ID,
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}
