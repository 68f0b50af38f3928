package file

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) Store {
	dbPath := filepath.Join(t.TempDir(), "candyshare.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func newTestFile(ownerID string) *File {
	now := time.Now().UTC().Truncate(time.Second)
	return &File{
		ID:           uuid.New().String(),
		OriginalName: "report.pdf",
		StorageKey:   "uploads/free/" + uuid.New().String() + "_report.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    5 * 1024 * 1024,
		OwnerID:      ownerID,
		Tier:         "free",
		Status:       StatusActive,
		UploadedAt:   now,
		ExpiresAt:    now.Add(168 * time.Hour),
	}
}

func TestCreateAndGetFile(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, f))

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.OriginalName, got.OriginalName)
	assert.Equal(t, f.StorageKey, got.StorageKey)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, int64(0), got.DownloadCount)
	assert.Nil(t, got.LastDownloadedAt)
	assert.Equal(t, f.UploadedAt.Unix(), got.UploadedAt.Unix())
	assert.Equal(t, f.ExpiresAt.Unix(), got.ExpiresAt.Unix())
}

func TestGetFileNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetFile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCreateFileAnonymousOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("")
	require.NoError(t, store.CreateFile(ctx, f))

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OwnerID)
}

func TestRecordDownload(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, f))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RecordDownload(ctx, f.ID, at))
	require.NoError(t, store.RecordDownload(ctx, f.ID, at))

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.DownloadCount)
	require.NotNil(t, got.LastDownloadedAt)
	assert.Equal(t, at.Unix(), got.LastDownloadedAt.Unix())
}

func TestRecordDownloadConcurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, f))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.RecordDownload(ctx, f.ID, time.Now().UTC())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.DownloadCount, "increments must never be lost")
}

func TestMarkDeletedOwnership(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, f))

	// Non-owner gets the same error as a missing file
	assert.ErrorIs(t, store.MarkDeleted(ctx, f.ID, "user-2"), ErrFileNotFound)

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	require.NoError(t, store.MarkDeleted(ctx, f.ID, "user-1"))

	got, err = store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, got.Status)
}

func TestExtendExpiryOwnership(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, f))

	newExpiry := f.ExpiresAt.Add(24 * time.Hour)
	assert.ErrorIs(t, store.ExtendExpiry(ctx, f.ID, "user-2", newExpiry), ErrFileNotFound)

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ExpiresAt.Unix(), got.ExpiresAt.Unix(), "expiry unchanged after rejected call")

	require.NoError(t, store.ExtendExpiry(ctx, f.ID, "user-1", newExpiry))

	got, err = store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, newExpiry.Unix(), got.ExpiresAt.Unix())
}

func TestPasswordColumnRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, f))

	require.NoError(t, store.SetPasswordHash(ctx, f.ID, "user-1", "hash-value"))

	got, err := store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-value", got.PasswordHash)

	require.NoError(t, store.ClearPassword(ctx, f.ID, "user-1"))

	got, err = store.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.HasPassword())

	// Clearing again is still fine
	require.NoError(t, store.ClearPassword(ctx, f.ID, "user-1"))
}

func TestListByOwnerPagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f := newTestFile("user-1")
		f.UploadedAt = f.UploadedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateFile(ctx, f))
	}
	require.NoError(t, store.CreateFile(ctx, newTestFile("user-2")))

	page1, err := store.ListByOwner(ctx, "user-1", 3, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 3)

	page2, err := store.ListByOwner(ctx, "user-1", 3, 3)
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	// Newest first
	assert.True(t, !page1[0].UploadedAt.Before(page1[1].UploadedAt))

	total, err := store.CountByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestOwnerStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, active))
	require.NoError(t, store.RecordDownload(ctx, active.ID, now))

	// Expired row still marked ACTIVE: must count as expired (derived model)
	expired := newTestFile("user-1")
	expired.MimeType = "image/png"
	expired.ExpiresAt = now.Add(-1 * time.Hour)
	require.NoError(t, store.CreateFile(ctx, expired))

	stats, err := store.OwnerStats(ctx, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(1), stats.ActiveFiles)
	assert.Equal(t, int64(1), stats.ExpiredFiles)
	assert.Equal(t, int64(1), stats.TotalDownloads)
	assert.Equal(t, active.SizeBytes+expired.SizeBytes, stats.TotalBytes)
	assert.Equal(t, int64(1), stats.TypeBreakdown["application"])
	assert.Equal(t, int64(1), stats.TypeBreakdown["image"])
	assert.NotEmpty(t, stats.DailyUploads)
}

func TestPurgeExpiredBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newTestFile("user-1")
	old.ExpiresAt = now.Add(-48 * time.Hour)
	require.NoError(t, store.CreateFile(ctx, old))

	fresh := newTestFile("user-1")
	require.NoError(t, store.CreateFile(ctx, fresh))

	keys, err := store.PurgeExpiredBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{old.StorageKey}, keys)

	_, err = store.GetFile(ctx, old.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = store.GetFile(ctx, fresh.ID)
	assert.NoError(t, err)
}

// An expiry extension landing just before the purge must keep both the
// record and its blob: the purge deletes and reports keys in one statement,
// so an extended row can never have its storage key handed to the worker.
func TestPurgeSkipsExtendedFiles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f := newTestFile("user-1")
	f.ExpiresAt = now.Add(-48 * time.Hour)
	require.NoError(t, store.CreateFile(ctx, f))

	require.NoError(t, store.ExtendExpiry(ctx, f.ID, "user-1", now.Add(24*time.Hour)))

	keys, err := store.PurgeExpiredBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = store.GetFile(ctx, f.ID)
	assert.NoError(t, err)
}
