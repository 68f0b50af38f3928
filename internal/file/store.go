package file

import (
	"context"
	"time"
)

// Store is the persistence contract for file records. Mutations that
// require ownership bake the owner predicate into the statement itself so
// there is no window between the authorization check and the write.
type Store interface {
	CreateFile(ctx context.Context, f *File) error
	GetFile(ctx context.Context, id string) (*File, error)

	// RecordDownload atomically increments the download counter and stamps
	// the download time. Must be a single UPDATE so concurrent downloads
	// never lose increments.
	RecordDownload(ctx context.Context, id string, at time.Time) error

	// Owner-scoped mutations. All return ErrFileNotFound when the record is
	// absent or owned by someone else.
	MarkDeleted(ctx context.Context, id, ownerID string) error
	ExtendExpiry(ctx context.Context, id, ownerID string, newExpiry time.Time) error
	SetPasswordHash(ctx context.Context, id, ownerID, hash string) error
	ClearPassword(ctx context.Context, id, ownerID string) error

	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*File, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	OwnerStats(ctx context.Context, ownerID string, now time.Time) (*UserStats, error)

	// PurgeExpiredBefore physically removes records whose expiry passed
	// before cutoff, returning their storage keys for blob cleanup.
	PurgeExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
