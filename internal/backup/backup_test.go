package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/reqlab/internal/database"
	"github.com/dukerupert/reqlab/internal/model"
	"github.com/dukerupert/reqlab/internal/store"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if b.putErr != nil {
		return nil, b.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, *in.Key)
	b.deleted = append(b.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) BackupFinished(outcome string) {
	o.mu.Lock()
	o.seen = append(o.seen, outcome)
	o.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var testConfig = Config{
	Bucket:     "snapshots",
	Prefix:     "reqlab",
	Passphrase: "correct horse",
	Interval:   time.Hour,
	Retention:  48 * time.Hour,
}

type fixture struct {
	db     *sql.DB
	store  *store.BackupStore
	bucket *fakeBucket
	rec    *outcomes
	clock  *clock
	m      *Manager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:     db,
		store:  store.NewBackupStore(db),
		bucket: newFakeBucket(),
		rec:    &outcomes{},
		clock:  &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.m = NewManager(cfg, db, f.store, slog.New(slog.DiscardHandler),
		WithObjectStore(f.bucket), WithClock(f.clock.now), WithRecorder(f.rec))
	return f
}

func TestDisabledWithoutBucket(t *testing.T) {
	m := NewManager(Config{}, nil, nil, slog.New(slog.DiscardHandler))
	assert.False(t, m.Enabled())

	_, err := m.Run(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)

	n, err := m.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	m.Start(context.Background())
	m.Stop()
}

func TestRunUploadsSealedSnapshot(t *testing.T) {
	f := newFixture(t, testConfig)

	b, err := f.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusCompleted, b.Status)
	assert.Equal(t, "reqlab/backup-2026-03-01T120000.000Z.db.enc", b.ObjectKey)

	sealed, ok := f.bucket.objects[b.ObjectKey]
	require.True(t, ok)
	assert.EqualValues(t, len(sealed), b.SizeBytes)

	plain, err := Open(sealed, testConfig.Passphrase)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(plain[:16]))

	file := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(file, plain, 0o600))
	restored, err := sql.Open("sqlite", file)
	require.NoError(t, err)
	defer restored.Close()
	var n int
	require.NoError(t, restored.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))

	assert.Equal(t, []string{"completed"}, f.rec.seen)
}

func TestRunRecordsUploadFailure(t *testing.T) {
	f := newFixture(t, testConfig)
	f.bucket.putErr = errors.New("connection reset")

	_, err := f.m.Run(context.Background())
	assert.ErrorContains(t, err, "connection reset")

	list, err := f.store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.BackupStatusFailed, list[0].Status)
	assert.Contains(t, list[0].ErrorMessage, "connection reset")
	assert.Equal(t, []string{"failed"}, f.rec.seen)
}

func TestPruneRemovesExpiredObjects(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()

	old, err := f.m.Run(ctx)
	require.NoError(t, err)
	f.clock.advance(72 * time.Hour)
	fresh, err := f.m.Run(ctx)
	require.NoError(t, err)

	n, err := f.m.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{old.ObjectKey}, f.bucket.deleted)
	assert.Contains(t, f.bucket.objects, fresh.ObjectKey)
	assert.NotContains(t, f.bucket.objects, old.ObjectKey)

	latest, err := f.store.LatestCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, latest.ID)
}

func TestStartStopIsSafe(t *testing.T) {
	f := newFixture(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.m.Start(ctx)
	f.m.Start(ctx)
	f.m.Stop()
	f.m.Stop()
}
