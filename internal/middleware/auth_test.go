package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/reqlab/internal/auth"
	"github.com/dukerupert/reqlab/internal/database"
	"github.com/dukerupert/reqlab/internal/model"
	"github.com/dukerupert/reqlab/internal/store"
)

type authFixture struct {
	sessions *store.SessionStore
	orgs     *store.OrganizationStore
	users    *store.UserStore
}

func setupAuthMiddlewareDB(t *testing.T) authFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return authFixture{
		sessions: store.NewSessionStore(db),
		orgs:     store.NewOrganizationStore(db),
		users:    store.NewUserStore(db),
	}
}

// member creates a user in a fresh organization and returns a live session.
func (f authFixture) member(t *testing.T, email, role string) (*model.User, *model.Organization, *model.Session) {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Create(ctx, email, "Test User", "hash")
	require.NoError(t, err)
	org, err := f.orgs.Create(ctx, "Org of "+email)
	require.NoError(t, err)
	_, err = f.orgs.AddMember(ctx, org.ID, u.ID, role)
	require.NoError(t, err)
	sess, err := f.sessions.Create(ctx, u.ID, org.ID)
	require.NoError(t, err)
	return u, org, sess
}

func (f authFixture) requireAuth() func(http.Handler) http.Handler {
	return RequireAuth(f.sessions, f.orgs, f.users)
}

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthNoCookie(t *testing.T) {
	f := setupAuthMiddlewareDB(t)

	rec := httptest.NewRecorder()
	f.requireAuth()(unreachable(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
}

func TestRequireAuthInvalidToken(t *testing.T) {
	f := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	f.requireAuth()(unreachable(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthValidSession(t *testing.T) {
	f := setupAuthMiddlewareDB(t)
	u, org, sess := f.member(t, "alice@example.com", model.RoleAdmin)

	var gotAC auth.AuthContext
	handler := f.requireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		require.True(t, ok, "expected AuthContext in request context")
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.AuthContext{
		UserID:         u.ID,
		Email:          "alice@example.com",
		OrganizationID: org.ID,
		Role:           model.RoleAdmin,
		SessionID:      sess.ID,
	}, gotAC)
}

func TestRequireAuthSessionForOrganizationWithoutMembership(t *testing.T) {
	f := setupAuthMiddlewareDB(t)
	ctx := context.Background()
	u, _, _ := f.member(t, "alice@example.com", model.RoleMember)
	other, err := f.orgs.Create(ctx, "Other")
	require.NoError(t, err)
	sess, err := f.sessions.Create(ctx, u.ID, other.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	f.requireAuth()(unreachable(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireOrganizationAdmin(t *testing.T) {
	f := setupAuthMiddlewareDB(t)
	admin, adminOrg, _ := f.member(t, "admin@example.com", model.RoleAdmin)
	member, memberOrg, _ := f.member(t, "member@example.com", model.RoleMember)

	tests := []struct {
		name   string
		userID string
		orgID  string
		want   int
	}{
		{"admin of org", admin.ID, adminOrg.ID, http.StatusOK},
		{"plain member", member.ID, memberOrg.ID, http.StatusForbidden},
		{"admin of another org", admin.ID, memberOrg.ID, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.Handle("GET /organizations/{orgId}/invitations", RequireOrganizationAdmin(f.orgs)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})))

			ctx := auth.WithAuth(context.Background(), auth.AuthContext{UserID: tt.userID})
			req := httptest.NewRequest(http.MethodGet, "/organizations/"+tt.orgID+"/invitations", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
