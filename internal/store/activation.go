package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/types"
)

// ActivationTokenRepository handles persistence for activation tokens.
type ActivationTokenRepository struct {
	db *sql.DB
}

func NewActivationTokenRepository(db *sql.DB) *ActivationTokenRepository {
	return &ActivationTokenRepository{db: db}
}

func (r *ActivationTokenRepository) Create(ctx context.Context, token types.ActivationToken) (types.ActivationToken, error) {
	now := time.Now().UTC()
	token.ID = uuid.New()
	token.CreatedAt = now
	token.UpdatedAt = now

	const query = `
		INSERT INTO activation_tokens (id, user_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		token.ID,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
		token.UpdatedAt,
	); err != nil {
		return types.ActivationToken{}, err
	}
	return token, nil
}

// FindOneValidByID returns the token only while it is unused and unexpired.
// Expired, consumed and nonexistent tokens all map to ErrNotFound so callers
// cannot probe whether a token ever existed.
func (r *ActivationTokenRepository) FindOneValidByID(ctx context.Context, id uuid.UUID) (types.ActivationToken, error) {
	const query = `
		SELECT id, user_id, used_at, expires_at, created_at, updated_at
		FROM activation_tokens
		WHERE id = $1
		  AND used_at IS NULL
		  AND expires_at > now()
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *ActivationTokenRepository) FindOneByUserID(ctx context.Context, userID uuid.UUID) (types.ActivationToken, error) {
	const query = `
		SELECT id, user_id, used_at, expires_at, created_at, updated_at
		FROM activation_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// MarkAsUsed consumes the token with a single conditional write. The
// used_at guard makes the claim atomic: of two concurrent consumers only
// one gets the row, the other sees ErrNotFound.
func (r *ActivationTokenRepository) MarkAsUsed(ctx context.Context, id uuid.UUID) (types.ActivationToken, error) {
	const query = `
		UPDATE activation_tokens
		SET used_at = $2,
			updated_at = $2
		WHERE id = $1
		  AND used_at IS NULL
		RETURNING id, user_id, used_at, expires_at, created_at, updated_at`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, time.Now().UTC()))
}

func (r *ActivationTokenRepository) scanOne(row *sql.Row) (types.ActivationToken, error) {
	var token types.ActivationToken
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.UsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ActivationToken{}, ErrNotFound
		}
		return types.ActivationToken{}, err
	}
	return token, nil
}
