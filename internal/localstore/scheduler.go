package localstore

import (
	"context"
	"time"

	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/repository"
)

// StartPersistenceScheduler runs a goroutine that periodically flushes the dirty store to disk.
// On ctx.Done, it performs a final flush before returning.
// Returns a channel that is closed when the scheduler has completed shutdown.
func StartPersistenceScheduler(
	ctx context.Context,
	store PersistableStore,
	repo repository.Saver,
	interval time.Duration,
) <-chan struct{} {
	done := make(chan struct{})
	log := logger.WithComponent("persist")
	log.Debugf("starting persistence scheduler with interval: %v", interval)
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("persistence scheduler received context cancellation, performing final flush")
				// Final flush on shutdown, with a fresh context so it completes
				Flush(context.Background(), store, repo)
				log.Info("persistence scheduler stopped after final flush")
				return
			case <-ticker.C:
				Flush(ctx, store, repo)
			}
		}
	}()
	return done
}

// Flush persists the store if dirty. It reports whether a save happened.
func Flush(ctx context.Context, store PersistableStore, repo repository.Saver) bool {
	log := logger.WithComponent("persist")
	if !store.IsDirty() {
		log.Trace("store is clean, skipping flush")
		return false
	}

	if err := ctx.Err(); err != nil {
		log.Debugf("flush cancelled: %v", err)
		return false
	}

	snapshot, err := store.Snapshot()
	if err != nil {
		log.Errorf("persist error: failed to get snapshot: %v", err)
		return false
	}

	snapshot.Metadata.LastUpdate = time.Now().UnixMilli()

	if err := repo.Save(ctx, &snapshot); err != nil {
		log.Errorf("persist error: failed to save: %v", err)
		return false
	}

	store.ClearDirty()
	store.SetLastUpdate(snapshot.Metadata.LastUpdate)
	log.Infof("local store persisted to disk (%d records)", len(snapshot.Records))
	return true
}
