package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/reqlab/internal/auth"
	"github.com/dukerupert/reqlab/internal/email"
	"github.com/dukerupert/reqlab/internal/invitation"
	"github.com/dukerupert/reqlab/internal/middleware"
	"github.com/dukerupert/reqlab/internal/model"
	"github.com/dukerupert/reqlab/internal/password"
	"github.com/dukerupert/reqlab/internal/selection"
	"github.com/dukerupert/reqlab/internal/store"
	"github.com/dukerupert/reqlab/internal/verification"
)

const sessionMaxAge = 90 * 24 * 60 * 60

type AuthHandler struct {
	userStore    *store.UserStore
	orgStore     *store.OrganizationStore
	sessionStore *store.SessionStore
	codec        *verification.Codec
	dispatcher   *email.Dispatcher
	selection    *selection.Manager
	secure       bool
	now          func() time.Time
	logger       *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	os *store.OrganizationStore,
	ss *store.SessionStore,
	codec *verification.Codec,
	dispatcher *email.Dispatcher,
	sel *selection.Manager,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		orgStore:     os,
		sessionStore: ss,
		codec:        codec,
		dispatcher:   dispatcher,
		selection:    sel,
		secure:       secure,
		now:          time.Now,
		logger:       logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email            string `json:"email"`
		Name             string `json:"name"`
		Password         string `json:"password"`
		OrganizationName string `json:"organization_name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	addr, err := invitation.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if vs := password.Violations(req.Password); len(vs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "password does not meet requirements",
			Details: map[string][]password.PolicyError{"password": vs},
		})
		return
	}
	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = req.Name + "'s workspace"
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		internalError(w, h.logger, "hash password", err)
		return
	}

	ctx := r.Context()
	user, org, err := h.userStore.CreateOwner(ctx, addr, req.Name, hash, orgName)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusConflict, "an account with this email already exists")
		return
	}
	if err != nil {
		internalError(w, h.logger, "register owner", err)
		return
	}

	h.sendVerification(ctx, user.Email)
	h.logger.Info("user registered", "user_id", user.ID, "organization_id", org.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := r.Context()
	user, err := h.userStore.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		internalError(w, h.logger, "login lookup", err)
		return
	}
	if user == nil || !password.Compare(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.Verified() {
		writeError(w, http.StatusForbidden, "email address has not been verified")
		return
	}

	orgs, err := h.orgStore.ListForUser(ctx, user.ID)
	if err != nil {
		internalError(w, h.logger, "list organizations", err)
		return
	}
	if len(orgs) == 0 {
		writeError(w, http.StatusForbidden, "account has no organization")
		return
	}

	sess, err := h.sessionStore.Create(ctx, user.ID, orgs[0].ID)
	if err != nil {
		internalError(w, h.logger, "create session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	})
	h.selection.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Verify marks the token's user as verified. Verifying twice succeeds and
// keeps the first verification time.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	res := h.codec.Decode(token)
	switch res.Status {
	case verification.Expired:
		writeError(w, http.StatusBadRequest, "verification token has expired")
		return
	case verification.Invalid:
		writeError(w, http.StatusBadRequest, "verification token is invalid")
		return
	}

	ctx := r.Context()
	user, err := h.userStore.GetByEmail(ctx, res.Email)
	if err != nil {
		internalError(w, h.logger, "verify lookup", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "verification token is invalid")
		return
	}

	user, err = h.userStore.MarkVerified(ctx, user.ID, h.now())
	if err != nil {
		internalError(w, h.logger, "mark verified", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ResendVerification always answers 202 so callers cannot tell which
// emails have accounts.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := invitation.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), addr)
	if err != nil {
		h.logger.Error("resend verification lookup", "error", err)
	} else if user != nil && !user.Verified() {
		h.sendVerification(r.Context(), user.Email)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if ac.SessionID != "" {
		if err := h.sessionStore.Delete(r.Context(), ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	})
	h.selection.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Organizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgStore.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, h.logger, "list organizations", err)
		return
	}
	if orgs == nil {
		orgs = []model.Organization{}
	}
	writeJSON(w, http.StatusOK, orgs)
}

// SwitchOrganization moves the session to another organization the caller
// belongs to. Selections made in the previous organization are dropped.
func (h *AuthHandler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrganizationID string `json:"organization_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OrganizationID == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	ctx := r.Context()
	ac, _ := auth.FromContext(ctx)
	member, err := h.orgStore.GetMember(ctx, req.OrganizationID, ac.UserID)
	if err != nil {
		internalError(w, h.logger, "switch organization lookup", err)
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	if err := h.sessionStore.UpdateOrganizationID(ctx, ac.SessionID, req.OrganizationID); err != nil {
		internalError(w, h.logger, "switch organization", err)
		return
	}
	h.selection.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// sendVerification issues a fresh token and emails it. Failures are logged;
// the user can ask for another message.
func (h *AuthHandler) sendVerification(ctx context.Context, addr string) {
	token, err := h.codec.Issue(addr)
	if err != nil {
		h.logger.Error("issue verification token", "error", err)
		return
	}
	err = h.dispatcher.Send(ctx, email.KindVerification, addr, email.Payload{
		Token:     token,
		ExpiresAt: h.now().Add(h.codec.TTL()),
	})
	if err != nil {
		h.logger.Warn("verification email not sent", "error", err)
	}
}
