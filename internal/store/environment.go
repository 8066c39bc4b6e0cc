package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

type EnvironmentStore struct {
	db *sql.DB
}

func NewEnvironmentStore(db *sql.DB) *EnvironmentStore {
	return &EnvironmentStore{db: db}
}

func scanEnvironment(s scanner) (*model.Environment, error) {
	var e model.Environment
	err := s.Scan(&e.ID, &e.ApplicationID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const environmentCols = `e.id, e.application_id, e.name, e.created_at, e.updated_at`

func (s *EnvironmentStore) Create(ctx context.Context, applicationID, name string) (*model.Environment, error) {
	id := newID()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO environments (id, application_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, applicationID, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert environment: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+environmentCols+` FROM environments e WHERE e.id = ?`, id)
	return scanEnvironment(row)
}

// GetByID returns the environment only if its application belongs to the organization.
func (s *EnvironmentStore) GetByID(ctx context.Context, organizationID, id string) (*model.Environment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+environmentCols+`
		 FROM environments e
		 JOIN applications a ON a.id = e.application_id
		 WHERE e.id = ? AND a.organization_id = ?`,
		id, organizationID,
	)
	e, err := scanEnvironment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get environment: %w", err)
	}
	return e, nil
}

func (s *EnvironmentStore) ListForApplication(ctx context.Context, applicationID string) ([]model.Environment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+environmentCols+` FROM environments e WHERE e.application_id = ? ORDER BY e.name ASC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	defer rows.Close()

	var envs []model.Environment
	for rows.Next() {
		e, err := scanEnvironment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan environment: %w", err)
		}
		envs = append(envs, *e)
	}
	return envs, rows.Err()
}
