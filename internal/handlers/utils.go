package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// sessionCookieName is the transport credential carrying the session token.
const sessionCookieName = "session_id"

func userFromContext(ctx context.Context) (*types.User, error) {
	user, ok := ctx.Value(contextUserKey).(*types.User)
	if !ok || user == nil {
		return nil, apperr.Internal(errors.New("handlers: no principal in request context"))
	}
	return user, nil
}

func withUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// Cookies issues and clears the session credential at the transport level.
type Cookies struct {
	// Secure marks cookies as HTTPS-only; set in production-like
	// environments.
	Secure bool

	// MaxAge mirrors the session TTL, in seconds.
	MaxAge int
}

func (c Cookies) SetSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   c.MaxAge,
		Secure:   c.Secure,
		HttpOnly: true,
	})
}

// ClearSession overwrites the credential with an immediately expired marker
// so the client cannot retry with a now-invalid token.
func (c Cookies) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "invalid",
		Path:     "/",
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
	})
}

// Responder is the single error boundary: it maps error kinds to status
// codes and redacted JSON bodies. Causes are logged, never echoed.
type Responder struct {
	Log     *slog.Logger
	Cookies Cookies
}

func (r Responder) Error(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)

	switch appErr.Kind {
	case apperr.KindInternal, apperr.KindService:
		r.Log.Error("request failed",
			"name", appErr.Name(),
			"message", appErr.Message,
			"cause", appErr.Cause,
		)
	case apperr.KindUnauthorized:
		r.Cookies.ClearSession(w)
	}

	writeJSON(w, appErr.StatusCode(), appErr)
}

// MethodNotAllowed handles known routes hit with an unsupported method.
func (r Responder) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	r.Error(w, apperr.MethodNotAllowed())
}

// Healthz is the liveness endpoint.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSONBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation(
			"The request body is not valid JSON.",
			"Check the submitted data and try again.",
		)
	}
	return nil
}
