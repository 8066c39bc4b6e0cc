package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/reqlab/internal/database"
	"github.com/dukerupert/reqlab/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestOrganization(t *testing.T, db *sql.DB, name string) *model.Organization {
	t.Helper()
	org, err := NewOrganizationStore(db).Create(context.Background(), name)
	require.NoError(t, err, "create organization")
	return org
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, "Test User", "hash")
	require.NoError(t, err, "create user")
	return u
}
