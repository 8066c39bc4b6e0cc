package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/reqlab/internal/auth"
	"github.com/dukerupert/reqlab/internal/model"
	"github.com/dukerupert/reqlab/internal/store"
)

type ApplicationHandler struct {
	appStore *store.ApplicationStore
	envStore *store.EnvironmentStore
	logger   *slog.Logger
}

func NewApplicationHandler(as *store.ApplicationStore, es *store.EnvironmentStore, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{appStore: as, envStore: es, logger: logger}
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.appStore.List(r.Context(), auth.OrganizationID(r.Context()))
	if err != nil {
		internalError(w, h.logger, "list applications", err)
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	app, err := h.appStore.Create(r.Context(), auth.OrganizationID(r.Context()), name)
	if err != nil {
		internalError(w, h.logger, "create application", err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *ApplicationHandler) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	app, ok := h.application(w, r)
	if !ok {
		return
	}
	envs, err := h.envStore.ListForApplication(r.Context(), app.ID)
	if err != nil {
		internalError(w, h.logger, "list environments", err)
		return
	}
	if envs == nil {
		envs = []model.Environment{}
	}
	writeJSON(w, http.StatusOK, envs)
}

func (h *ApplicationHandler) CreateEnvironment(w http.ResponseWriter, r *http.Request) {
	app, ok := h.application(w, r)
	if !ok {
		return
	}
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	env, err := h.envStore.Create(r.Context(), app.ID, name)
	if err != nil {
		internalError(w, h.logger, "create environment", err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

// application resolves {appId} within the caller's organization.
func (h *ApplicationHandler) application(w http.ResponseWriter, r *http.Request) (*model.Application, bool) {
	app, err := h.appStore.GetByID(r.Context(), auth.OrganizationID(r.Context()), r.PathValue("appId"))
	if err != nil {
		internalError(w, h.logger, "get application", err)
		return nil, false
	}
	if app == nil {
		writeError(w, http.StatusNotFound, "application not found")
		return nil, false
	}
	return app, true
}

func decodeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return "", false
	}
	return name, true
}
