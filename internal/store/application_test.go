package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationCreateAndScope(t *testing.T) {
	db := setupTestDB(t)
	as := NewApplicationStore(db)
	ctx := context.Background()
	acme := createTestOrganization(t, db, "Acme")
	other := createTestOrganization(t, db, "Other")

	app, err := as.Create(ctx, acme.ID, "Payments API")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, app.OrganizationID)

	got, err := as.GetByID(ctx, acme.ID, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	foreign, err := as.GetByID(ctx, other.ID, app.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign)
}

func TestApplicationList(t *testing.T) {
	db := setupTestDB(t)
	as := NewApplicationStore(db)
	ctx := context.Background()
	org := createTestOrganization(t, db, "Acme")

	_, err := as.Create(ctx, org.ID, "Zulu")
	require.NoError(t, err)
	_, err = as.Create(ctx, org.ID, "Alpha")
	require.NoError(t, err)

	apps, err := as.List(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "Alpha", apps[0].Name)
}

func TestEnvironmentScopedThroughApplication(t *testing.T) {
	db := setupTestDB(t)
	as := NewApplicationStore(db)
	es := NewEnvironmentStore(db)
	ctx := context.Background()
	acme := createTestOrganization(t, db, "Acme")
	other := createTestOrganization(t, db, "Other")

	app, err := as.Create(ctx, acme.ID, "Payments API")
	require.NoError(t, err)
	env, err := es.Create(ctx, app.ID, "staging")
	require.NoError(t, err)
	assert.Equal(t, app.ID, env.ApplicationID)

	got, err := es.GetByID(ctx, acme.ID, env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "staging", got.Name)

	foreign, err := es.GetByID(ctx, other.ID, env.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign)

	envs, err := es.ListForApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}
