package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps records in a map. It is the default backend; records
// live for the process session.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]SyncRecord
	clock   Clock
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...Option) *MemoryLedger {
	o := buildOptions(opts)
	return &MemoryLedger{records: make(map[string]SyncRecord), clock: o.clock}
}

func (m *MemoryLedger) Get(ctx context.Context, key string) (SyncRecord, bool, error) {
	if key == "" {
		return SyncRecord{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

func (m *MemoryLedger) IsFresh(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	rec, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return fresh(rec, m.clock(), ttl), nil
}

func (m *MemoryLedger) RecordSuccess(ctx context.Context, key, cursor string) error {
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = SyncRecord{Key: key, LastSyncedAt: m.clock(), Cursor: cursor}
	return nil
}

func (m *MemoryLedger) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *MemoryLedger) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]SyncRecord)
	return nil
}

// Len returns the number of recorded keys.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryLedger) Close() error { return nil }
