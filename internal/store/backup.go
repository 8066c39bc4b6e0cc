package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reqlab/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, object_key, size_bytes, status, error_message, created_at, completed_at`

func scanBackup(s scanner) (*model.Backup, error) {
	var b model.Backup
	var errMsg sql.NullString
	var completedAt sql.NullTime
	if err := s.Scan(&b.ID, &b.ObjectKey, &b.SizeBytes, &b.Status, &errMsg, &b.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	b.ErrorMessage = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

// Create inserts an uploading record for objectKey.
func (s *BackupStore) Create(ctx context.Context, objectKey string, now time.Time) (*model.Backup, error) {
	id := newID()
	now = now.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (id, object_key, status, created_at) VALUES (?, ?, ?, ?)`,
		id, objectKey, model.BackupStatusUploading, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert backup: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *BackupStore) GetByID(ctx context.Context, id string) (*model.Backup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupCols+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return b, nil
}

// List returns the newest backups first.
func (s *BackupStore) List(ctx context.Context, limit int) ([]model.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) MarkFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, error_message = ? WHERE id = ?`,
		model.BackupStatusFailed, message, id,
	)
	if err != nil {
		return fmt.Errorf("mark backup failed: %w", err)
	}
	return nil
}

func (s *BackupStore) MarkCompleted(ctx context.Context, id string, sizeBytes int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, size_bytes = ?, completed_at = ?, error_message = NULL WHERE id = ?`,
		model.BackupStatusCompleted, sizeBytes, now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark backup completed: %w", err)
	}
	return nil
}

// DeleteOlderThan removes records created before the cutoff and returns their object keys.
func (s *BackupStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT object_key FROM backups WHERE created_at < ?`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("select old backups: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM backups WHERE created_at < ?`, before.UTC()); err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return keys, nil
}

// LatestCompleted returns the most recent completed backup, or nil.
func (s *BackupStore) LatestCompleted(ctx context.Context) (*model.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE status = ? ORDER BY completed_at DESC LIMIT 1`,
		model.BackupStatusCompleted,
	)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed backup: %w", err)
	}
	return b, nil
}
