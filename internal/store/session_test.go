package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCreate(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	u := createTestUser(t, db, "alice@example.com")
	org := createTestOrganization(t, db, "Acme")

	sess, err := ss.Create(context.Background(), u.ID, org.ID)
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64) // 32 bytes hex-encoded
	assert.Equal(t, u.ID, sess.UserID)
	assert.Equal(t, org.ID, sess.OrganizationID)
	assert.True(t, sess.ExpiresAt.After(sess.CreatedAt))
}

func TestSessionGetByToken(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")
	org := createTestOrganization(t, db, "Acme")
	created, err := ss.Create(ctx, u.ID, org.ID)
	require.NoError(t, err)

	sess, err := ss.GetByToken(ctx, created.Token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, created.ID, sess.ID)

	missing, err := ss.GetByToken(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSessionExpired(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")
	org := createTestOrganization(t, db, "Acme")
	created, err := ss.Create(ctx, u.ID, org.ID)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, created.CreatedAt.AddDate(0, 0, -1), created.ID)
	require.NoError(t, err)

	sess, err := ss.GetByToken(ctx, created.Token)
	require.NoError(t, err)
	assert.Nil(t, sess)

	n, err := ss.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionUpdateOrganizationAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")
	acme := createTestOrganization(t, db, "Acme")
	zeta := createTestOrganization(t, db, "Zeta")
	created, err := ss.Create(ctx, u.ID, acme.ID)
	require.NoError(t, err)

	require.NoError(t, ss.UpdateOrganizationID(ctx, created.ID, zeta.ID))
	sess, err := ss.GetByToken(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, zeta.ID, sess.OrganizationID)

	require.NoError(t, ss.Delete(ctx, created.ID))
	sess, err = ss.GetByToken(ctx, created.Token)
	require.NoError(t, err)
	assert.Nil(t, sess)
}
