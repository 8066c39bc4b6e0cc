// Package auth carries the authenticated caller through request contexts.
package auth

import (
	"context"

	"github.com/dukerupert/reqlab/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
	SessionID      string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func OrganizationID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.OrganizationID
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin
}
