package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/services"
)

// SessionHandler provides login and logout endpoints.
type SessionHandler struct {
	sessions       *services.SessionService
	authentication *services.AuthenticationService
	resp           Responder
}

func NewSessionHandler(sessions *services.SessionService, authentication *services.AuthenticationService, resp Responder) *SessionHandler {
	return &SessionHandler{
		sessions:       sessions,
		authentication: authentication,
		resp:           resp,
	}
}

// SessionRouter registers session routes on the given router.
func SessionRouter(r chi.Router, sessions *services.SessionService, authentication *services.AuthenticationService, resp Responder) {
	handler := NewSessionHandler(sessions, authentication, resp)

	r.MethodNotAllowed(resp.MethodNotAllowed)
	r.With(RequireFeature(authz.FeatureCreateSession, resp)).Post("/", handler.Create)
	r.Delete("/", handler.Expire)
}

type CreateSessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Create logs the user in: verifies credentials, refuses unactivated
// accounts, issues a session and sets the session cookie.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.resp.Error(w, err)
		return
	}

	authenticatedUser, err := h.authentication.GetAuthenticatedUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	allowed, err := authz.Can(&authenticatedUser, authz.FeatureCreateSession)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if !allowed {
		h.resp.Error(w, apperr.Forbidden(
			"You do not have permission to log in.",
			"Check that your account has been activated.",
		))
		return
	}

	session, err := h.sessions.Create(r.Context(), authenticatedUser.ID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	h.resp.Cookies.SetSession(w, session.Token)

	view, err := authz.FilterOutput(&authenticatedUser, authz.FeatureReadSession, session)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Expire logs the caller out. The session row is kept and forced into its
// expired state; the cookie is cleared.
func (h *SessionHandler) Expire(w http.ResponseWriter, r *http.Request) {
	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		h.resp.Error(w, apperr.Unauthorized(
			"You do not have an active session.",
			"Check that you are logged in and try again.",
		))
		return
	}

	session, err := h.sessions.FindOneValidByToken(r.Context(), cookie.Value)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	expired, err := h.sessions.ExpireByID(r.Context(), session.ID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := authz.FilterOutput(principal, authz.FeatureReadSession, expired)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.Cookies.ClearSession(w)
	writeJSON(w, http.StatusOK, view)
}
