package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/reqlab/internal/auth"
	"github.com/dukerupert/reqlab/internal/invitation"
)

type InvitationHandler struct {
	manager *invitation.Manager
	logger  *slog.Logger
}

func NewInvitationHandler(m *invitation.Manager, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{manager: m, logger: logger}
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.List(r.Context(), r.PathValue("orgId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	inv, err := h.manager.Create(r.Context(), r.PathValue("orgId"), req.Email)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Resend(r.Context(), r.PathValue("orgId"), r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Cancel answers 404 for an invitation that is already gone.
func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Cancel(r.Context(), r.PathValue("orgId"), r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Preview answers the link in the invitation email: it shows what the token
// grants so the client can sign in and POST the same token to accept.
func (h *InvitationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	p, err := h.manager.Preview(r.Context(), token)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	inv, err := h.manager.Accept(r.Context(), req.Token, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": inv.OrganizationID,
		"invitation":      inv,
	})
}
