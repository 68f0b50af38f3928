package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/candyshare/candyshare/internal/file"
)

type fakeDeleter struct {
	deleted []string
	failOn  string
}

func (d *fakeDeleter) Delete(ctx context.Context, key string) error {
	if key == d.failOn {
		return errors.New("backend unavailable")
	}
	d.deleted = append(d.deleted, key)
	return nil
}

type countingCounter struct {
	total float64
}

func (c *countingCounter) Add(v float64) { c.total += v }

func setupStore(t *testing.T) file.Store {
	dbPath := filepath.Join(t.TempDir(), "candyshare.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := file.NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func seedFile(t *testing.T, store file.Store, id, key string, expiresAt time.Time) {
	require.NoError(t, store.CreateFile(context.Background(), &file.File{
		ID:           id,
		OriginalName: id + ".txt",
		StorageKey:   key,
		MimeType:     "text/plain",
		SizeBytes:    100,
		Tier:         "free",
		Status:       file.StatusActive,
		UploadedAt:   time.Now().Add(-48 * time.Hour),
		ExpiresAt:    expiresAt,
	}))
}

func TestPurgeExpiredRemovesOldFiles(t *testing.T) {
	store := setupStore(t)
	deleter := &fakeDeleter{}
	counter := &countingCounter{}
	ctx := context.Background()

	// Two files past expiry plus grace, one expired but inside grace, one live
	seedFile(t, store, "old-1", "uploads/free/1_old1.txt", time.Now().Add(-48*time.Hour))
	seedFile(t, store, "old-2", "uploads/free/2_old2.txt", time.Now().Add(-30*time.Hour))
	seedFile(t, store, "recent", "uploads/free/3_recent.txt", time.Now().Add(-1*time.Hour))
	seedFile(t, store, "live", "uploads/free/4_live.txt", time.Now().Add(24*time.Hour))

	w := NewWorker(store, deleter, counter, DefaultGracePeriod)
	w.purgeExpired(ctx)

	assert.ElementsMatch(t, []string{"uploads/free/1_old1.txt", "uploads/free/2_old2.txt"}, deleter.deleted)
	assert.Equal(t, 2.0, counter.total)

	// Purged records are gone, the others remain
	_, err := store.GetFile(ctx, "old-1")
	assert.ErrorIs(t, err, file.ErrFileNotFound)
	_, err = store.GetFile(ctx, "recent")
	require.NoError(t, err)
	_, err = store.GetFile(ctx, "live")
	require.NoError(t, err)
}

func TestPurgeExpiredBlobFailureStillPurges(t *testing.T) {
	store := setupStore(t)
	deleter := &fakeDeleter{failOn: "uploads/free/1_old1.txt"}
	counter := &countingCounter{}
	ctx := context.Background()

	seedFile(t, store, "old-1", "uploads/free/1_old1.txt", time.Now().Add(-48*time.Hour))

	w := NewWorker(store, deleter, counter, DefaultGracePeriod)
	w.purgeExpired(ctx)

	// Record is gone even though the blob deletion failed
	_, err := store.GetFile(ctx, "old-1")
	assert.ErrorIs(t, err, file.ErrFileNotFound)
	assert.Equal(t, 1.0, counter.total)
}

func TestPurgeExpiredNothingToDo(t *testing.T) {
	store := setupStore(t)
	deleter := &fakeDeleter{}
	ctx := context.Background()

	seedFile(t, store, "live", "uploads/free/4_live.txt", time.Now().Add(24*time.Hour))

	w := NewWorker(store, deleter, nil, DefaultGracePeriod)
	w.purgeExpired(ctx)

	assert.Empty(t, deleter.deleted)
}

func TestWorkerStartStop(t *testing.T) {
	store := setupStore(t)
	deleter := &fakeDeleter{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(store, deleter, nil, time.Hour)
	w.Start(ctx, 50*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	w.Stop()
}
