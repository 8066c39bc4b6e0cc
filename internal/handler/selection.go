package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/reqlab/internal/auth"
	"github.com/dukerupert/reqlab/internal/selection"
	"github.com/dukerupert/reqlab/internal/store"
)

type SelectionHandler struct {
	selection *selection.Manager
	appStore  *store.ApplicationStore
	envStore  *store.EnvironmentStore
	logger    *slog.Logger
}

func NewSelectionHandler(sel *selection.Manager, as *store.ApplicationStore, es *store.EnvironmentStore, logger *slog.Logger) *SelectionHandler {
	return &SelectionHandler{selection: sel, appStore: as, envStore: es, logger: logger}
}

func (h *SelectionHandler) SetActiveApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ApplicationID == "" {
		writeError(w, http.StatusBadRequest, "applicationId is required")
		return
	}

	orgID := auth.OrganizationID(r.Context())
	app, err := h.appStore.GetByID(r.Context(), orgID, req.ApplicationID)
	if err != nil {
		internalError(w, h.logger, "get application", err)
		return
	}
	if app == nil {
		writeError(w, http.StatusNotFound, "application not found")
		return
	}

	if err := h.selection.SetActiveApplication(w, orgID, app.ID); err != nil {
		internalError(w, h.logger, "set active application", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SelectionHandler) ActiveApplication(w http.ResponseWriter, r *http.Request) {
	var resp struct {
		ApplicationID *string `json:"applicationId"`
	}
	if id, ok := h.selection.ActiveApplication(r, auth.OrganizationID(r.Context())); ok {
		resp.ApplicationID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SelectionHandler) SetActiveEnvironment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnvironmentID string `json:"environmentId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EnvironmentID == "" {
		writeError(w, http.StatusBadRequest, "environmentId is required")
		return
	}

	orgID := auth.OrganizationID(r.Context())
	env, err := h.envStore.GetByID(r.Context(), orgID, req.EnvironmentID)
	if err != nil {
		internalError(w, h.logger, "get environment", err)
		return
	}
	if env == nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}

	if err := h.selection.SetActiveEnvironment(w, orgID, env.ID); err != nil {
		internalError(w, h.logger, "set active environment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SelectionHandler) ActiveEnvironment(w http.ResponseWriter, r *http.Request) {
	var resp struct {
		EnvironmentID *string `json:"environmentId"`
	}
	if id, ok := h.selection.ActiveEnvironment(r, auth.OrganizationID(r.Context())); ok {
		resp.EnvironmentID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}
