package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/candyshare/candyshare/internal/file"
)

// DefaultGracePeriod is how long an expired file's record and blob stick
// around before the worker purges them. Expiry itself is enforced on
// read; the grace period only delays physical cleanup.
const DefaultGracePeriod = 24 * time.Hour

// BlobDeleter removes uploaded objects from storage.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// PurgeCounter records how many files the worker removed.
type PurgeCounter interface {
	Add(float64)
}

// Worker periodically purges files whose expiry passed more than the
// grace period ago.
type Worker struct {
	store    file.Store
	blobs    BlobDeleter
	counter  PurgeCounter
	grace    time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
}

// NewWorker creates a new lifecycle worker. counter may be nil.
func NewWorker(store file.Store, blobs BlobDeleter, counter PurgeCounter, grace time.Duration) *Worker {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Worker{
		store:    store,
		blobs:    blobs,
		counter:  counter,
		grace:    grace,
		stopChan: make(chan struct{}),
	}
}

// Start begins the lifecycle worker
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	w.ticker = time.NewTicker(interval)

	logrus.WithFields(logrus.Fields{
		"interval": interval,
		"grace":    w.grace,
	}).Info("Lifecycle worker started")

	// Run immediately on start
	go w.purgeExpired(ctx)

	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.purgeExpired(ctx)
			case <-w.stopChan:
				w.ticker.Stop()
				logrus.Info("Lifecycle worker stopped")
				return
			case <-ctx.Done():
				w.ticker.Stop()
				logrus.Info("Lifecycle worker stopped due to context cancellation")
				return
			}
		}
	}()
}

// Stop stops the lifecycle worker
func (w *Worker) Stop() {
	close(w.stopChan)
}

// purgeExpired removes file records past expiry plus grace, then deletes
// their blobs best-effort. A blob deletion failure is logged and left for
// the storage backend's own cleanup; the record is already gone, so the
// file is unreachable either way.
func (w *Worker) purgeExpired(ctx context.Context) {
	cutoff := time.Now().Add(-w.grace)

	keys, err := w.store.PurgeExpiredBefore(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge expired files")
		return
	}
	if len(keys) == 0 {
		return
	}

	failed := 0
	for _, key := range keys {
		if err := w.blobs.Delete(ctx, key); err != nil {
			failed++
			logrus.WithError(err).WithField("key", key).Warn("Failed to delete expired blob")
		}
	}

	if w.counter != nil {
		w.counter.Add(float64(len(keys)))
	}

	logrus.WithFields(logrus.Fields{
		"purged":        len(keys),
		"blob_failures": failed,
	}).Info("Expired files purged")
}
