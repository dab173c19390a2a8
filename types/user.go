package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
// It contains identity, capability, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	// Uniqueness is enforced case-insensitively.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. Uniqueness is enforced
	// case-insensitively.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// Features is the set of capability strings granted to the user.
	// Membership is checked by exact match; there is no hierarchy.
	Features []string `json:"features" db:"features"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasFeature reports whether the user's capability set contains feature.
func (u User) HasFeature(feature string) bool {
	for _, f := range u.Features {
		if f == feature {
			return true
		}
	}
	return false
}
