package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/services"
)

// MigrationHandler exposes schema migration state to privileged operators.
type MigrationHandler struct {
	migrations services.MigrationRunner
	resp       Responder
}

func NewMigrationHandler(migrations services.MigrationRunner, resp Responder) *MigrationHandler {
	return &MigrationHandler{migrations: migrations, resp: resp}
}

// MigrationRouter registers migration routes on the given router.
func MigrationRouter(r chi.Router, migrations services.MigrationRunner, resp Responder) {
	handler := NewMigrationHandler(migrations, resp)

	r.MethodNotAllowed(resp.MethodNotAllowed)
	r.With(RequireFeature(authz.FeatureReadMigration, resp)).Get("/", handler.ListPending)
	r.With(RequireFeature(authz.FeatureCreateMigration, resp)).Post("/", handler.RunPending)
}

// ListPending returns the migrations not yet applied, in order.
func (h *MigrationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	pending, err := h.migrations.ListPending(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := authz.FilterOutput(principal, authz.FeatureReadMigration, pending)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RunPending applies pending migrations: 201 with the applied list when any
// ran, 200 with an empty list when the schema was already current.
func (h *MigrationHandler) RunPending(w http.ResponseWriter, r *http.Request) {
	principal, err := userFromContext(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	applied, err := h.migrations.RunPending(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	view, err := authz.FilterOutput(principal, authz.FeatureReadMigration, applied)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	status := http.StatusOK
	if len(applied) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}
