// Package backup takes encrypted snapshots of the SQLite database and keeps
// them in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/reqlab/internal/model"
	"github.com/dukerupert/reqlab/internal/store"
)

// ErrDisabled is returned by Run when no bucket is configured.
var ErrDisabled = errors.New("backup: not configured")

// ObjectStore is the subset of the S3 API a Manager uses.
type ObjectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Recorder counts backup outcomes.
type Recorder interface {
	BackupFinished(outcome string)
}

type Config struct {
	Bucket     string
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
	Interval   time.Duration
	Retention  time.Duration
}

type Manager struct {
	cfg      Config
	db       *sql.DB
	store    *store.BackupStore
	client   ObjectStore
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger

	running sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Manager)

// WithObjectStore replaces the S3 client built from Config.
func WithObjectStore(c ObjectStore) Option {
	return func(m *Manager) { m.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		db:     db,
		store:  bs,
		now:    time.Now,
		logger: logger.With("component", "backup"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil && cfg.Bucket != "" {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether Run can upload anywhere.
func (m *Manager) Enabled() bool {
	return m.client != nil && m.cfg.Bucket != "" && m.cfg.Passphrase != ""
}

// Start runs a backup and prune every Interval until ctx is cancelled or
// Stop is called. It is a no-op when the manager is disabled.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || m.cfg.Interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
				if _, err := m.Prune(ctx); err != nil {
					m.logger.Error("backup prune failed", "error", err)
				}
			}
		}
	}(m.done)
}

// Stop cancels the schedule and waits for an in-flight run to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Run snapshots the database, seals it and uploads it. Runs are serialized.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	m.running.Lock()
	defer m.running.Unlock()

	started := m.now().UTC()
	key := path.Join(m.cfg.Prefix, "backup-"+started.Format("2006-01-02T150405.000Z")+".db.enc")

	record, err := m.store.Create(ctx, key, started)
	if err != nil {
		m.finish("failed")
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, key)
	if err != nil {
		if markErr := m.store.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			m.logger.Error("mark backup failed", "id", record.ID, "error", markErr)
		}
		m.finish("failed")
		return nil, err
	}

	if err := m.store.MarkCompleted(ctx, record.ID, size, m.now()); err != nil {
		m.finish("failed")
		return nil, err
	}
	m.finish("completed")
	m.logger.Info("backup completed", "key", key, "bytes", size)
	return m.store.GetByID(ctx, record.ID)
}

func (m *Manager) upload(ctx context.Context, key string) (int64, error) {
	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	sealed, err := Seal(snapshot, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt snapshot: %w", err)
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload snapshot: %w", err)
	}
	return int64(len(sealed)), nil
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "reqlab-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, file); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Prune deletes backups older than Retention from the bucket and the
// backups table. Object deletion failures are logged, not returned.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if !m.Enabled() || m.cfg.Retention <= 0 {
		return 0, nil
	}
	keys, err := m.store.DeleteOlderThan(ctx, m.now().Add(-m.cfg.Retention))
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("pruned backups", "count", len(keys))
	}
	return len(keys), nil
}

func (m *Manager) finish(outcome string) {
	if m.recorder != nil {
		m.recorder.BackupFinished(outcome)
	}
}
