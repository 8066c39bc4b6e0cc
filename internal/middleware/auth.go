package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dukerupert/reqlab/internal/auth"
	"github.com/dukerupert/reqlab/internal/model"
)

const SessionCookieName = "reqlab_session"

type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
}

type MemberLookup interface {
	GetMember(ctx context.Context, organizationID, userID string) (*model.OrganizationMember, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth validates the session cookie and populates AuthContext. The
// caller must still be a member of the session's organization.
func RequireAuth(sessions SessionLookup, members MemberLookup, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			ctx := r.Context()
			sess, err := sessions.GetByToken(ctx, cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			member, err := members.GetMember(ctx, sess.OrganizationID, sess.UserID)
			if err != nil || member == nil {
				unauthorized(w)
				return
			}

			user, err := users.GetByID(ctx, sess.UserID)
			if err != nil || user == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				UserID:         sess.UserID,
				Email:          user.Email,
				OrganizationID: sess.OrganizationID,
				Role:           member.Role,
				SessionID:      sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(ctx, ac)))
		})
	}
}

// RequireOrganizationAdmin checks that the authenticated user is an admin of
// the organization named by the {orgId} path value.
func RequireOrganizationAdmin(members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := r.PathValue("orgId")
			userID := auth.UserID(r.Context())
			if orgID == "" || userID == "" {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			member, err := members.GetMember(r.Context(), orgID, userID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if member == nil || member.Role != model.RoleAdmin {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
