package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

func scanApplication(s scanner) (*model.Application, error) {
	var a model.Application
	err := s.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const applicationCols = `id, organization_id, name, created_at, updated_at`

func (s *ApplicationStore) Create(ctx context.Context, organizationID, name string) (*model.Application, error) {
	id := newID()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (id, organization_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, organizationID, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	return s.GetByID(ctx, organizationID, id)
}

// GetByID returns the application only if it belongs to the organization.
func (s *ApplicationStore) GetByID(ctx context.Context, organizationID, id string) (*model.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationCols+` FROM applications WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	a, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

func (s *ApplicationStore) List(ctx context.Context, organizationID string) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationCols+` FROM applications WHERE organization_id = ? ORDER BY name ASC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}
