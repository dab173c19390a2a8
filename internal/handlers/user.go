package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/services"
	"github.com/devsys-hq/apiserver/types"
)

// UserHandler provides account registration and profile endpoints.
type UserHandler struct {
	users       *services.UserService
	activations *services.ActivationService
	resp        Responder
}

func NewUserHandler(users *services.UserService, activations *services.ActivationService, resp Responder) *UserHandler {
	return &UserHandler{
		users:       users,
		activations: activations,
		resp:        resp,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users *services.UserService, activations *services.ActivationService, resp Responder) {
	handler := NewUserHandler(users, activations, resp)

	r.MethodNotAllowed(resp.MethodNotAllowed)
	r.With(RequireFeature(authz.FeatureCreateUser, resp)).Post("/", handler.Create)
	r.Route("/{username}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.With(RequireFeature(authz.FeatureUpdateUser, resp)).Patch("/", handler.Update)
	})
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Create registers a new account and dispatches the activation email.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.resp.Error(w, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		h.resp.Error(w, apperr.Validation(
			"Username, email and password are required.",
			"Fill in all required fields and try again.",
		))
		return
	}

	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	newUser, err := h.users.Create(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	token, err := h.activations.Create(r.Context(), newUser.ID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if err := h.activations.SendEmailToUser(r.Context(), newUser, token); err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := authz.FilterOutput(principal, authz.FeatureReadUser, newUser)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Get returns the user identified by username, redacted for the caller.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	found, err := h.users.FindOneByUsername(r.Context(), username)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := h.filterUser(principal, found)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Update applies a partial update to the target user. The feature gate
// admits anyone holding update:user; the resource-aware rule then allows
// self-edits unconditionally and edits of others only with
// update:user:others.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req UpdateUserRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.resp.Error(w, err)
		return
	}

	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	target, err := h.users.FindOneByUsername(r.Context(), username)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	allowed, err := authz.Can(principal, authz.FeatureUpdateUser, &target)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if !allowed {
		h.resp.Error(w, apperr.Forbidden(
			"You do not have permission to update another user.",
			"Check that your user has the capability required to update other users.",
		))
		return
	}

	updated, err := h.users.Update(r.Context(), username, services.UserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := h.filterUser(principal, updated)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// filterUser picks the self view for the account owner and the public view
// for everyone else.
func (h *UserHandler) filterUser(principal *types.User, target types.User) (any, error) {
	if principal.ID == target.ID {
		return authz.FilterOutput(principal, authz.FeatureReadUserSelf, target)
	}
	return authz.FilterOutput(principal, authz.FeatureReadUser, target)
}
