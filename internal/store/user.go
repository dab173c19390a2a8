package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/devsys-hq/apiserver/types"
)

// pq error code for unique constraint violations. The uniqueness pre-checks
// below can race with a concurrent insert; the constraint is the backstop.
const uniqueViolation = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindOneByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `
		SELECT id, username, email, password, features, created_at, updated_at
		FROM users
		WHERE id = $1
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindOneByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, username, email, password, features, created_at, updated_at
		FROM users
		WHERE LOWER(username) = LOWER($1)
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) FindOneByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, username, email, password, features, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
		LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := r.checkUniqueUsername(ctx, user.Username); err != nil {
		return types.User{}, err
	}
	if err := r.checkUniqueEmail(ctx, user.Email); err != nil {
		return types.User{}, err
	}

	now := time.Now().UTC()
	user.ID = uuid.New()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, username, email, password, features, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		pq.Array(user.Features),
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, mapUniqueViolation(err)
	}
	return user, nil
}

// Update persists username, email and password and refreshes updated_at.
// Callers merge the changed fields into the loaded record first.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET username = $2,
			email = $3,
			password = $4,
			updated_at = $5
		WHERE id = $1`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, mapUniqueViolation(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetFeatures replaces the user's capability set wholesale.
func (r *UserRepository) SetFeatures(ctx context.Context, id uuid.UUID, features []string) (types.User, error) {
	const query = `
		UPDATE users
		SET features = $2,
			updated_at = $3
		WHERE id = $1
		RETURNING id, username, email, password, features, created_at, updated_at`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, pq.Array(features), time.Now().UTC()))
}

// AddFeatures appends capabilities without duplicating existing ones.
// Used by privileged operators to grant features past the activation baseline.
func (r *UserRepository) AddFeatures(ctx context.Context, id uuid.UUID, features []string) (types.User, error) {
	const query = `
		UPDATE users
		SET features = ARRAY(SELECT DISTINCT unnest(features || $2::text[])),
			updated_at = $3
		WHERE id = $1
		RETURNING id, username, email, password, features, created_at, updated_at`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, pq.Array(features), time.Now().UTC()))
}

func (r *UserRepository) checkUniqueUsername(ctx context.Context, username string) error {
	const query = `SELECT 1 FROM users WHERE LOWER(username) = LOWER($1)`
	var one int
	err := r.db.QueryRowContext(ctx, query, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return ErrDuplicateUsername
}

func (r *UserRepository) checkUniqueEmail(ctx context.Context, email string) error {
	const query = `SELECT 1 FROM users WHERE LOWER(email) = LOWER($1)`
	var one int
	err := r.db.QueryRowContext(ctx, query, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return ErrDuplicateEmail
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		pq.Array(&user.Features),
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "users_username_unique_idx":
			return ErrDuplicateUsername
		case "users_email_unique_idx":
			return ErrDuplicateEmail
		}
	}
	return err
}
