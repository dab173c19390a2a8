package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devsys-hq/apiserver/internal/services"
)

// StatusHandler reports dependency health.
type StatusHandler struct {
	status *services.StatusService
	resp   Responder
}

func NewStatusHandler(status *services.StatusService, resp Responder) *StatusHandler {
	return &StatusHandler{status: status, resp: resp}
}

// StatusRouter registers the status route on the given router.
func StatusRouter(r chi.Router, status *services.StatusService, resp Responder) {
	handler := NewStatusHandler(status, resp)

	r.MethodNotAllowed(resp.MethodNotAllowed)
	r.Get("/", handler.Get)
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.Check(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
