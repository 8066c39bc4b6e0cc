package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var verifiedAt sql.NullTime
	err := s.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &verifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		u.VerifiedAt = &verifiedAt.Time
	}
	return &u, nil
}

const userCols = `id, email, name, password_hash, verified_at, created_at, updated_at`

// Create inserts a new unverified user. Returns ErrDuplicate if the email is taken.
func (s *UserStore) Create(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	id := newID()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, name, passwordHash, now, now,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CreateOwner inserts a user, a new organization and the user's admin
// membership in one transaction. Returns ErrDuplicate if the email is taken.
func (s *UserStore) CreateOwner(ctx context.Context, email, name, passwordHash, organizationName string) (*model.User, *model.Organization, error) {
	userID, orgID := newID(), newID()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, email, name, passwordHash, now, now,
	)
	if isUniqueViolation(err) {
		return nil, nil, ErrDuplicate
	}
	if err != nil {
		return nil, nil, fmt.Errorf("insert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		orgID, organizationName, now, now,
	); err != nil {
		return nil, nil, fmt.Errorf("insert organization: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO organization_members (id, organization_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		newID(), orgID, userID, model.RoleAdmin, now,
	); err != nil {
		return nil, nil, fmt.Errorf("add owner: %w", err)
	}

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, userID))
	if err != nil {
		return nil, nil, fmt.Errorf("read user: %w", err)
	}
	org, err := scanOrganization(tx.QueryRowContext(ctx, `SELECT `+organizationCols+` FROM organizations WHERE id = ?`, orgID))
	if err != nil {
		return nil, nil, fmt.Errorf("read organization: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit registration: %w", err)
	}
	return user, org, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// MarkVerified stamps verified_at once; later calls keep the first timestamp.
func (s *UserStore) MarkVerified(ctx context.Context, id string, at time.Time) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET verified_at = COALESCE(verified_at, ?), updated_at = ? WHERE id = ?`,
		at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("mark user verified: %w", err)
	}
	return s.GetByID(ctx, id)
}
