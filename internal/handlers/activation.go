package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/devsys-hq/apiserver/internal/apperr"
	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/services"
)

// ActivationHandler consumes activation tokens.
type ActivationHandler struct {
	activations *services.ActivationService
	resp        Responder
}

func NewActivationHandler(activations *services.ActivationService, resp Responder) *ActivationHandler {
	return &ActivationHandler{activations: activations, resp: resp}
}

// ActivationRouter registers activation routes on the given router.
func ActivationRouter(r chi.Router, activations *services.ActivationService, resp Responder) {
	handler := NewActivationHandler(activations, resp)

	r.MethodNotAllowed(resp.MethodNotAllowed)
	r.Patch("/{tokenID}", handler.Activate)
}

// Activate consumes a one-time activation token and unlocks the owning
// account's login capabilities. Each step aborts the rest on failure; the
// token claim itself is atomic, so a token can never activate twice.
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		// A malformed id is indistinguishable from a nonexistent token.
		h.resp.Error(w, apperr.NotFound(
			"The activation token was not found in the system or has expired.",
			"Sign up again.",
		))
		return
	}

	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	validToken, err := h.activations.FindOneValidByID(r.Context(), tokenID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	usedToken, err := h.activations.MarkTokenAsUsed(r.Context(), tokenID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	if _, err := h.activations.ActivateUserByUserID(r.Context(), validToken.UserID); err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := authz.FilterOutput(principal, authz.FeatureReadActivationToken, usedToken)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
