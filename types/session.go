package types

import (
	"time"

	"github.com/google/uuid"
)

// Session is a time-bounded bearer credential for an authenticated user.
// A session is valid while expires_at is in the future; logout sets
// expires_at to now rather than deleting the row.
type Session struct {
	ID uuid.UUID `json:"id" db:"id"`

	// Token is the opaque secret handed to the client. It is unique and
	// generated from a cryptographic source.
	Token string `json:"token" db:"token"`

	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
