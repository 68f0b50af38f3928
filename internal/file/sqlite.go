package file

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite file store
func NewSQLiteStore(db *sql.DB) (Store, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the files table
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		original_name TEXT NOT NULL,
		storage_key TEXT NOT NULL UNIQUE,
		mime_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		owner_id TEXT,
		tier TEXT NOT NULL,
		password_hash TEXT,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		uploaded_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		download_count INTEGER NOT NULL DEFAULT 0,
		last_downloaded_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id);
	CREATE INDEX IF NOT EXISTS idx_files_expires_at ON files(expires_at);
	CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

const fileColumns = `id, original_name, storage_key, mime_type, size_bytes, owner_id, tier, password_hash, status, uploaded_at, expires_at, download_count, last_downloaded_at`

// CreateFile inserts a new file record
func (s *SQLiteStore) CreateFile(ctx context.Context, f *File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		f.ID,
		f.OriginalName,
		f.StorageKey,
		f.MimeType,
		f.SizeBytes,
		nullString(f.OwnerID),
		f.Tier,
		nullString(f.PasswordHash),
		f.Status,
		f.UploadedAt.Unix(),
		f.ExpiresAt.Unix(),
		f.DownloadCount,
		nullTime(f.LastDownloadedAt),
	)

	return err
}

// GetFile retrieves a file record by ID
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	return s.scanFile(row)
}

// RecordDownload bumps the counter and download timestamp in one statement.
// The increment happens inside the database, never read-modify-write in
// application code.
func (s *SQLiteStore) RecordDownload(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE files
		SET download_count = download_count + 1, last_downloaded_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, at.Unix(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkDeleted soft-deletes an owned file. The record persists; access is
// denied from now on.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, id, ownerID string) error {
	query := `UPDATE files SET status = ? WHERE id = ? AND owner_id = ?`
	result, err := s.db.ExecContext(ctx, query, StatusDeleted, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ExtendExpiry moves the expiry of an owned file
func (s *SQLiteStore) ExtendExpiry(ctx context.Context, id, ownerID string, newExpiry time.Time) error {
	query := `UPDATE files SET expires_at = ? WHERE id = ? AND owner_id = ?`
	result, err := s.db.ExecContext(ctx, query, newExpiry.Unix(), id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetPasswordHash stores a new password hash on an owned file
func (s *SQLiteStore) SetPasswordHash(ctx context.Context, id, ownerID, hash string) error {
	query := `UPDATE files SET password_hash = ? WHERE id = ? AND owner_id = ?`
	result, err := s.db.ExecContext(ctx, query, hash, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ClearPassword removes password protection from an owned file
func (s *SQLiteStore) ClearPassword(ctx context.Context, id, ownerID string) error {
	query := `UPDATE files SET password_hash = NULL WHERE id = ? AND owner_id = ?`
	result, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListByOwner lists a user's files, newest first
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE owner_id = ?
		ORDER BY uploaded_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// CountByOwner counts a user's files
func (s *SQLiteStore) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}

// OwnerStats aggregates dashboard analytics for a user. "Active" applies
// the same derived-expiry comparison the download path uses.
func (s *SQLiteStore) OwnerStats(ctx context.Context, ownerID string, now time.Time) (*UserStats, error) {
	stats := &UserStats{TypeBreakdown: make(map[string]int64)}
	nowUnix := now.Unix()

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status != 'DELETED' AND expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(size_bytes), 0),
			COALESCE(SUM(download_count), 0)
		FROM files
		WHERE owner_id = ?
	`, nowUnix, nowUnix, ownerID).Scan(
		&stats.TotalFiles,
		&stats.ActiveFiles,
		&stats.ExpiredFiles,
		&stats.TotalBytes,
		&stats.TotalDownloads,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	// Uploads per day over the last 7 days
	since := now.AddDate(0, 0, -7).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(uploaded_at, 'unixepoch') AS day, COUNT(*)
		FROM files
		WHERE owner_id = ? AND uploaded_at >= ?
		GROUP BY day
		ORDER BY day
	`, ownerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		stats.DailyUploads = append(stats.DailyUploads, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Breakdown by top-level mime type
	typeRows, err := s.db.QueryContext(ctx, `
		SELECT mime_type, COUNT(*)
		FROM files
		WHERE owner_id = ?
		GROUP BY mime_type
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()

	for typeRows.Next() {
		var mime string
		var count int64
		if err := typeRows.Scan(&mime, &count); err != nil {
			return nil, err
		}
		stats.TypeBreakdown[mimeCategory(mime)] += count
	}

	return stats, typeRows.Err()
}

// PurgeExpiredBefore removes rows long past expiry, returning their
// storage keys so the worker can clean the blob store
func (s *SQLiteStore) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	// Single statement so an expiry extension can't land between reading
	// the keys and deleting the rows
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM files WHERE expires_at < ? RETURNING storage_key`, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// scanFile scans a file record from a database row
func (s *SQLiteStore) scanFile(scanner interface {
	Scan(dest ...interface{}) error
}) (*File, error) {
	var f File
	var ownerID, passwordHash sql.NullString
	var uploadedAt, expiresAt int64
	var lastDownloadedAt sql.NullInt64

	err := scanner.Scan(
		&f.ID,
		&f.OriginalName,
		&f.StorageKey,
		&f.MimeType,
		&f.SizeBytes,
		&ownerID,
		&f.Tier,
		&passwordHash,
		&f.Status,
		&uploadedAt,
		&expiresAt,
		&f.DownloadCount,
		&lastDownloadedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	f.UploadedAt = time.Unix(uploadedAt, 0).UTC()
	f.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	if ownerID.Valid {
		f.OwnerID = ownerID.String
	}
	if passwordHash.Valid {
		f.PasswordHash = passwordHash.String
	}
	if lastDownloadedAt.Valid {
		t := time.Unix(lastDownloadedAt.Int64, 0).UTC()
		f.LastDownloadedAt = &t
	}

	return &f, nil
}

// requireRow converts a zero-rows-affected update into ErrFileNotFound
func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrFileNotFound
	}
	return nil
}

// nullString returns nil for empty optional string columns
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullTime returns nil for unset optional timestamps
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// mimeCategory collapses a mime type to its top-level family for the
// dashboard breakdown
func mimeCategory(mime string) string {
	if idx := strings.Index(mime, "/"); idx > 0 {
		return mime[:idx]
	}
	if mime == "" {
		return "other"
	}
	return mime
}
