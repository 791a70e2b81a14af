// Package ledger records, per cache key, when a use case last synced
// successfully and which pagination cursor the server returned.
package ledger

import (
	"context"
	"time"
)

// SyncRecord is the bookkeeping for one cache key.
type SyncRecord struct {
	Key          string    `json:"key"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	Cursor       string    `json:"cursor,omitempty"` // next-page URL, empty when the last page was reached
}

// HasNext reports whether the server announced another page.
func (r SyncRecord) HasNext() bool {
	return r.Cursor != ""
}

// Ledger is the sync bookkeeping contract. An empty key is never fresh and
// recording it is a no-op, so use cases without a cache key always fetch.
type Ledger interface {
	// Get returns the record for key and whether it exists.
	Get(ctx context.Context, key string) (SyncRecord, bool, error)
	// IsFresh reports whether key synced less than ttl ago.
	IsFresh(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// RecordSuccess stamps key as synced now with the given cursor.
	RecordSuccess(ctx context.Context, key, cursor string) error
	// Invalidate forgets one key.
	Invalidate(ctx context.Context, key string) error
	// Reset forgets every key, as on logout.
	Reset(ctx context.Context) error
	Close() error
}

// Clock returns the current time.
type Clock func() time.Time

type options struct {
	clock Clock
}

// Option configures a ledger backend.
type Option func(*options)

// WithClock overrides the time source, for deterministic tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fresh applies the TTL rule shared by every backend.
func fresh(rec SyncRecord, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(rec.LastSyncedAt) < ttl
}
