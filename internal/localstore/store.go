// Package localstore is the process-wide source of truth for synced entities.
//
// All mutation goes through Transaction, which is serialized: exactly one
// transaction commits at a time. Reads take a short read lock and never wait
// for a transaction body to finish, only for the commit itself.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/repository"
	"github.com/bassista/go_lmsync/internal/scope"
)

var (
	// ErrInvalidRecord is returned when a record lacks a type or id.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrTxClosed is returned when a transaction handle is used after its body returned.
	ErrTxClosed = errors.New("transaction already finished")
)

// Store keeps every entity in memory, indexed by type and id.
type Store struct {
	// writeSem serializes transactions; acquiring it honors context cancellation.
	writeSem chan struct{}

	mu         sync.RWMutex
	data       map[string]map[string]entity.Record
	version    uint64
	dirty      bool  // true if the store changed since last persist
	lastUpdate int64 // metadata.lastUpdate of the persisted snapshot

	live      *registry
	validator *validator.Validate
}

// NewStore creates a store seeded with the records of doc.
func NewStore(doc repository.Document) *Store {
	s := &Store{
		writeSem:   make(chan struct{}, 1),
		data:       make(map[string]map[string]entity.Record),
		lastUpdate: doc.Metadata.LastUpdate,
		live:       newRegistry(),
		validator:  validator.New(),
	}
	if len(doc.Records) > 0 {
		s.version = 1
		for _, r := range doc.Records {
			r = r.Clone()
			r.Revision = s.version
			s.bucket(r.Type)[r.ID] = r
		}
	}
	return s
}

// bucket returns the per-type map, creating it. Callers hold mu for writing.
func (s *Store) bucket(entityType string) map[string]entity.Record {
	b, ok := s.data[entityType]
	if !ok {
		b = make(map[string]entity.Record)
		s.data[entityType] = b
	}
	return b
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.writeSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.writeSem
}

func (s *Store) validate(r entity.Record) error {
	if err := s.validator.Struct(r); err != nil {
		return fmt.Errorf("%w %s/%s: %v", ErrInvalidRecord, r.Type, r.ID, err)
	}
	return nil
}

// Get returns the committed record with the given identity.
func (s *Store) Get(entityType, id string) (entity.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[entityType][id]
	return r, ok
}

// Query returns the committed records matching the scope, in scope order.
// Records are shared with the store and must be treated as read-only.
func (s *Store) Query(sc scope.Scope) []entity.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(sc)
}

func (s *Store) queryLocked(sc scope.Scope) []entity.Record {
	bucket := s.data[sc.Type]
	candidates := make([]entity.Record, 0, len(bucket))
	for _, r := range bucket {
		candidates = append(candidates, r)
	}
	return sc.Apply(candidates)
}

// Count returns the number of records of a type.
func (s *Store) Count(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[entityType])
}

// Types lists the entity types currently stored, sorted.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.data))
	for t, b := range s.data {
		if len(b) > 0 {
			types = append(types, t)
		}
	}
	slices.Sort(types)
	return types
}

// Version returns the number of commits applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// MarkDirty sets the dirty flag to true.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// IsDirty returns true if the store has unpersisted changes.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// ClearDirty resets the dirty flag.
func (s *Store) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// GetLastUpdate returns the last persisted update timestamp.
func (s *Store) GetLastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetLastUpdate sets the last persisted update timestamp.
func (s *Store) SetLastUpdate(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = ts
}

// Snapshot returns a deep copy of every record as a persistable document.
func (s *Store) Snapshot() (repository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := repository.Document{
		Metadata: repository.Metadata{LastUpdate: s.lastUpdate},
		Records:  make([]entity.Record, 0, s.lenLocked()),
	}
	for _, b := range s.data {
		for _, r := range b {
			doc.Records = append(doc.Records, r.Clone())
		}
	}
	doc.SortRecords()
	return doc, nil
}

func (s *Store) lenLocked() int {
	n := 0
	for _, b := range s.data {
		n += len(b)
	}
	return n
}

// Replace swaps the stored records for the document's, as on a reload from disk.
// Records whose fields did not change keep their revision. Live queries are notified.
func (s *Store) Replace(doc repository.Document) error {
	for _, r := range doc.Records {
		if err := s.validate(r); err != nil {
			return err
		}
	}

	if err := s.lock(context.Background()); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	s.version++
	next := make(map[string]map[string]entity.Record)
	touched := make(map[string]struct{})
	for t := range s.data {
		touched[t] = struct{}{}
	}
	for _, r := range doc.Records {
		r = r.Clone()
		if r.Fields == nil {
			r.Fields = jsonvalue.Object{}
		}
		r.Revision = s.version
		if old, ok := s.data[r.Type][r.ID]; ok && jsonvalue.Equal(old.Fields, r.Fields) {
			r.Revision = old.Revision
		}
		b, ok := next[r.Type]
		if !ok {
			b = make(map[string]entity.Record)
			next[r.Type] = b
		}
		b[r.ID] = r
		touched[r.Type] = struct{}{}
	}
	s.data = next
	s.lastUpdate = doc.Metadata.LastUpdate
	s.dirty = false
	s.mu.Unlock()

	s.notify(touched)
	return nil
}

// Reset removes every record, as on logout. Live queries are notified.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	touched := make(map[string]struct{}, len(s.data))
	for t := range s.data {
		touched[t] = struct{}{}
	}
	s.data = make(map[string]map[string]entity.Record)
	s.version++
	s.dirty = true
	s.mu.Unlock()

	logger.WithComponent("localstore").Info("local store reset")
	s.notify(touched)
	return nil
}
