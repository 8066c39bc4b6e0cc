package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

type OrganizationStore struct {
	db *sql.DB
}

func NewOrganizationStore(db *sql.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func scanOrganization(s scanner) (*model.Organization, error) {
	var o model.Organization
	err := s.Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrganizationMember(s scanner) (*model.OrganizationMember, error) {
	var m model.OrganizationMember
	err := s.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const organizationCols = `id, name, created_at, updated_at`
const organizationMemberCols = `id, organization_id, user_id, role, created_at`

func (s *OrganizationStore) Create(ctx context.Context, name string) (*model.Organization, error) {
	id := newID()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *OrganizationStore) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+organizationCols+` FROM organizations WHERE id = ?`, id)
	o, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

// AddMember inserts a membership. Returns ErrDuplicate if the user already belongs
// to the organization.
func (s *OrganizationStore) AddMember(ctx context.Context, organizationID, userID, role string) (*model.OrganizationMember, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organization_members (id, organization_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, organizationID, userID, role, time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+organizationMemberCols+` FROM organization_members WHERE id = ?`, id)
	return scanOrganizationMember(row)
}

func (s *OrganizationStore) GetMember(ctx context.Context, organizationID, userID string) (*model.OrganizationMember, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+organizationMemberCols+` FROM organization_members WHERE organization_id = ? AND user_id = ?`,
		organizationID, userID,
	)
	m, err := scanOrganizationMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *OrganizationStore) ListForUser(ctx context.Context, userID string) ([]model.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.created_at, o.updated_at
		 FROM organizations o
		 JOIN organization_members om ON o.id = om.organization_id
		 WHERE om.user_id = ?
		 ORDER BY o.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list organizations for user: %w", err)
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}
