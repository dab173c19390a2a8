package types

import (
	"time"

	"github.com/google/uuid"
)

// ActivationToken is a one-time proof of email ownership. The ID itself is
// the bearer secret embedded in the activation link. A token is valid while
// used_at is null and expires_at is in the future; consumption is terminal.
type ActivationToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Used reports whether the token has been consumed.
func (t ActivationToken) Used() bool {
	return t.UsedAt != nil
}
