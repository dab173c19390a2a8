package handlers

import (
	"fmt"
	"net/http"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/services"
	"github.com/devsys-hq/apiserver/types"
)

// anonymousFeatures is the capability set of unauthenticated callers: the
// minimum needed to register, activate, and log in.
var anonymousFeatures = []string{
	authz.FeatureReadActivationToken,
	authz.FeatureCreateSession,
	authz.FeatureCreateUser,
}

// InjectAnonymousOrUser resolves the request principal before every
// handler. A session cookie is resolved to its authenticated user; a
// missing cookie yields the fixed anonymous principal. A stale or invalid
// cookie fails the request with an unauthorized error, which also clears
// the cookie at the boundary.
func InjectAnonymousOrUser(sessions *services.SessionService, users *services.UserService, resp Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				anonymous := &types.User{Features: anonymousFeatures}
				next.ServeHTTP(w, r.WithContext(withUser(r.Context(), anonymous)))
				return
			}

			session, err := sessions.FindOneValidByToken(r.Context(), cookie.Value)
			if err != nil {
				resp.Error(w, err)
				return
			}

			user, err := users.FindOneByID(r.Context(), session.UserID)
			if err != nil {
				resp.Error(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), &user)))
		})
	}
}

// RequireFeature gates a route on the principal holding the given
// capability.
func RequireFeature(feature string, resp Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := userFromContext(r.Context())
			if err != nil {
				resp.Error(w, err)
				return
			}

			allowed, err := authz.Can(user, feature)
			if err != nil {
				resp.Error(w, err)
				return
			}
			if !allowed {
				resp.Error(w, apperr.Forbidden(
					"You do not have permission to perform this action.",
					fmt.Sprintf("Check that your user has the %q capability.", feature),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
