package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

const sessionTTL = 90 * 24 * time.Hour

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(s scanner) (*model.Session, error) {
	var sess model.Session
	err := s.Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.OrganizationID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

const sessionCols = `id, token, user_id, organization_id, expires_at, created_at`

// Create generates a new session with a crypto-random token and 90-day expiry.
func (s *SessionStore) Create(ctx context.Context, userID, organizationID string) (*model.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	id := newID()
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token, user_id, organization_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, token, userID, organizationID, now.Add(sessionTTL), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetByToken returns the session for the given token, or nil if expired or not found.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC(),
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) UpdateOrganizationID(ctx context.Context, id, organizationID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET organization_id = ? WHERE id = ?`, organizationID, id)
	if err != nil {
		return fmt.Errorf("update session organization: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
