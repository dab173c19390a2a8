// Package authz is the authorization engine: pure decision logic over a
// closed vocabulary of capability strings ("features"), plus capability-
// indexed redaction of outbound resources.
package authz

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/types"
)

// The closed capability vocabulary. Extending the policy surface means
// adding a constant here and, for read capabilities, a case in FilterOutput.
const (
	FeatureCreateUser       = "create:user"
	FeatureReadUser         = "read:user"
	FeatureReadUserSelf     = "read:user:self"
	FeatureUpdateUser       = "update:user"
	FeatureUpdateUserOthers = "update:user:others"

	FeatureCreateSession = "create:session"
	FeatureReadSession   = "read:session"

	FeatureReadActivationToken = "read:activation_token"

	FeatureCreateMigration = "create:migration"
	FeatureReadMigration   = "read:migration"

	FeatureReadStatus    = "read:status"
	FeatureReadStatusAll = "read:status:all"
)

var availableFeatures = map[string]struct{}{
	FeatureCreateUser:          {},
	FeatureReadUser:            {},
	FeatureReadUserSelf:        {},
	FeatureUpdateUser:          {},
	FeatureUpdateUserOthers:    {},
	FeatureCreateSession:       {},
	FeatureReadSession:         {},
	FeatureReadActivationToken: {},
	FeatureCreateMigration:     {},
	FeatureReadMigration:       {},
	FeatureReadStatus:          {},
	FeatureReadStatusAll:       {},
}

// Can decides whether the user may exercise feature. The optional resource
// is only meaningful for "update:user", where it overrides the base
// membership rule: editing yourself is always allowed, editing another user
// requires "update:user:others". Passing an absent user, a user without a
// capability set, or a feature outside the vocabulary is a caller bug and
// returns an internal-kind error.
func Can(user *types.User, feature string, resource ...*types.User) (bool, error) {
	if err := validateUser(user); err != nil {
		return false, err
	}
	if err := validateFeature(feature); err != nil {
		return false, err
	}

	authorized := user.HasFeature(feature)

	if feature == FeatureUpdateUser && len(resource) > 0 && resource[0] != nil {
		target := resource[0]
		authorized = false

		if user.ID == target.ID {
			authorized = true
		} else if ok, err := Can(user, FeatureUpdateUserOthers); err != nil {
			return false, err
		} else if ok {
			authorized = true
		}
	}

	return authorized, nil
}

// UserView is the "read:user" projection. Email and password hash are
// always stripped.
type UserView struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Features  []string  `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSelfView is the "read:user:self" projection; it additionally exposes
// the email, and only to the user themselves.
type UserSelfView struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Features  []string  `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionView is the "read:session" projection, only for the session owner.
type SessionView struct {
	ID        uuid.UUID `json:"id"`
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivationTokenView is the "read:activation_token" projection.
type ActivationTokenView struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	UsedAt    *time.Time `json:"used_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FilterOutput projects resource down to the fields feature is permitted to
// reveal. Redaction is capability-indexed, not resource-type-indexed: the
// same resource is exposed differently depending on which capability
// authorized the read. The resource must match the feature's expected type:
//
//	read:user, read:user:self -> types.User
//	read:session              -> types.Session
//	read:activation_token     -> types.ActivationToken
//	read:migration            -> []types.Migration
//
// A mismatched or missing resource, like an unknown feature, is a caller bug
// and returns an internal-kind error. When the ownership check of
// "read:user:self" or "read:session" fails, a forbidden-kind error is
// returned instead of an undefined result.
func FilterOutput(user *types.User, feature string, resource any) (any, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	if err := validateFeature(feature); err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, apperr.Internal(errors.New("authz: a resource is required for FilterOutput"))
	}

	switch feature {
	case FeatureReadUser:
		target, err := resourceAs[types.User](feature, resource)
		if err != nil {
			return nil, err
		}
		return UserView{
			ID:        target.ID,
			Username:  target.Username,
			Features:  target.Features,
			CreatedAt: target.CreatedAt,
			UpdatedAt: target.UpdatedAt,
		}, nil

	case FeatureReadUserSelf:
		target, err := resourceAs[types.User](feature, resource)
		if err != nil {
			return nil, err
		}
		if user.ID != target.ID {
			return nil, apperr.Forbidden(
				"You do not have permission to read this user's private data.",
				`Check that the "read:user:self" capability is being used on your own account.`,
			)
		}
		return UserSelfView{
			ID:        target.ID,
			Username:  target.Username,
			Email:     target.Email,
			Features:  target.Features,
			CreatedAt: target.CreatedAt,
			UpdatedAt: target.UpdatedAt,
		}, nil

	case FeatureReadSession:
		session, err := resourceAs[types.Session](feature, resource)
		if err != nil {
			return nil, err
		}
		if user.ID != session.UserID {
			return nil, apperr.Forbidden(
				"You do not have permission to read this session.",
				"Check that the session belongs to your user.",
			)
		}
		return SessionView{
			ID:        session.ID,
			Token:     session.Token,
			UserID:    session.UserID,
			ExpiresAt: session.ExpiresAt,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		}, nil

	case FeatureReadActivationToken:
		token, err := resourceAs[types.ActivationToken](feature, resource)
		if err != nil {
			return nil, err
		}
		return ActivationTokenView{
			ID:        token.ID,
			UserID:    token.UserID,
			UsedAt:    token.UsedAt,
			ExpiresAt: token.ExpiresAt,
			CreatedAt: token.CreatedAt,
			UpdatedAt: token.UpdatedAt,
		}, nil

	case FeatureReadMigration:
		migrations, err := resourceAs[[]types.Migration](feature, resource)
		if err != nil {
			return nil, err
		}
		views := make([]types.Migration, 0, len(migrations))
		views = append(views, migrations...)
		return views, nil

	default:
		return nil, apperr.Internal(errors.New("authz: feature " + feature + " has no output contract"))
	}
}

func resourceAs[T any](feature string, resource any) (T, error) {
	if typed, ok := resource.(T); ok {
		return typed, nil
	}
	if typed, ok := resource.(*T); ok && typed != nil {
		return *typed, nil
	}
	var zero T
	return zero, apperr.Internal(errors.New("authz: wrong resource type for feature " + feature))
}

func validateUser(user *types.User) error {
	if user == nil || user.Features == nil {
		return apperr.Internal(errors.New("authz: a user with a feature set is required"))
	}
	return nil
}

func validateFeature(feature string) error {
	if _, known := availableFeatures[feature]; feature == "" || !known {
		return apperr.Internal(errors.New("authz: a known feature is required"))
	}
	return nil
}
