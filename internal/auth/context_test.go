package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:         "u-1",
		Email:          "alice@example.com",
		OrganizationID: "org-2",
		Role:           "admin",
		SessionID:      "s-3",
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, ac, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestOrganizationID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{OrganizationID: "org-42"})
	assert.Equal(t, "org-42", OrganizationID(ctx))
	assert.Empty(t, OrganizationID(context.Background()))
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: "u-7"})
	assert.Equal(t, "u-7", UserID(ctx))
	assert.Empty(t, UserID(context.Background()))
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"member", false},
		{"", false},
	}
	for _, tt := range tests {
		ctx := WithAuth(context.Background(), AuthContext{Role: tt.role})
		assert.Equal(t, tt.want, IsAdmin(ctx), "role %q", tt.role)
	}
	assert.False(t, IsAdmin(context.Background()))
}
