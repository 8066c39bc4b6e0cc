package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(s scanner) (*model.Invitation, error) {
	var inv model.Invitation
	var acceptedAt sql.NullTime
	err := s.Scan(&inv.ID, &inv.Email, &inv.OrganizationID, &inv.Token, &inv.CreatedAt, &inv.ExpiresAt, &acceptedAt)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

const invitationCols = `id, email, organization_id, token, created_at, expires_at, accepted_at`

// Create inserts a pending invitation with a fresh token expiring at now+ttl.
// Returns ErrDuplicate if a valid invitation already exists for the
// (organization, email) pair. Expired leftovers for the pair are purged first.
func (s *InvitationStore) Create(ctx context.Context, organizationID, email string, now time.Time, ttl time.Duration) (*model.Invitation, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var outstanding int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organization_invitations
		 WHERE organization_id = ? AND email = ? AND accepted_at IS NULL AND expires_at > ?`,
		organizationID, email, now,
	).Scan(&outstanding)
	if err != nil {
		return nil, fmt.Errorf("count outstanding invitations: %w", err)
	}
	if outstanding > 0 {
		return nil, ErrDuplicate
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM organization_invitations
		 WHERE organization_id = ? AND email = ? AND accepted_at IS NULL AND expires_at <= ?`,
		organizationID, email, now,
	); err != nil {
		return nil, fmt.Errorf("purge expired invitations: %w", err)
	}

	id := newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO organization_invitations (id, email, organization_id, token, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, organizationID, token, now, now.Add(ttl),
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM organization_invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, fmt.Errorf("read invitation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit invitation: %w", err)
	}
	return inv, nil
}

// GetByID returns the invitation regardless of state, or nil if it does not exist.
func (s *InvitationStore) GetByID(ctx context.Context, organizationID, id string) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationCols+` FROM organization_invitations WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// GetValid returns the invitation only while it is unaccepted and unexpired at now.
func (s *InvitationStore) GetValid(ctx context.Context, organizationID, id string, now time.Time) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationCols+` FROM organization_invitations
		 WHERE id = ? AND organization_id = ? AND accepted_at IS NULL AND expires_at > ?`,
		id, organizationID, now.UTC(),
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get valid invitation: %w", err)
	}
	return inv, nil
}

// GetValidByToken looks up an unaccepted, unexpired invitation by its token.
func (s *InvitationStore) GetValidByToken(ctx context.Context, token string, now time.Time) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationCols+` FROM organization_invitations
		 WHERE token = ? AND accepted_at IS NULL AND expires_at > ?`,
		token, now.UTC(),
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation by token: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) List(ctx context.Context, organizationID string) ([]model.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invitationCols+` FROM organization_invitations WHERE organization_id = ? ORDER BY created_at DESC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// MarkAccepted stamps accepted_at if the invitation is still valid at the given
// instant. Reports whether a row changed.
func (s *InvitationStore) MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error) {
	at = at.UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE organization_invitations SET accepted_at = ?
		 WHERE id = ? AND accepted_at IS NULL AND expires_at > ?`,
		at, id, at,
	)
	if err != nil {
		return false, fmt.Errorf("mark invitation accepted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes the invitation and reports whether it existed.
func (s *InvitationStore) Delete(ctx context.Context, organizationID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_invitations WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	if err != nil {
		return false, fmt.Errorf("delete invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes unaccepted invitations whose expiry has passed.
func (s *InvitationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_invitations WHERE accepted_at IS NULL AND expires_at <= ?`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
