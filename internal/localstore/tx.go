package localstore

import (
	"context"
	"errors"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/scope"
)

// Tx stages upserts and deletes; nothing is visible to readers until commit.
// A Tx is only valid inside the body passed to Transaction and is not safe
// for concurrent use.
type Tx struct {
	s       *Store
	upserts map[entity.Key]entity.Record
	deletes map[entity.Key]struct{}
	closed  bool
}

// Transaction runs body with exclusive write access. If body returns an error,
// or ctx is done before commit, every staged change is discarded. On commit,
// live queries over the touched entity types are notified before Transaction
// returns. Listeners run while the write lock is held and must not open
// transactions themselves.
func (s *Store) Transaction(ctx context.Context, body func(tx *Tx) error) error {
	if body == nil {
		return errors.New("transaction body is required")
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	tx := &Tx{
		s:       s,
		upserts: make(map[entity.Key]entity.Record),
		deletes: make(map[entity.Key]struct{}),
	}
	err := body(tx)
	tx.closed = true
	if err != nil {
		logger.WithComponent("localstore").Debugf("transaction rolled back: %v", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		logger.WithComponent("localstore").Debugf("transaction abandoned before commit: %v", err)
		return err
	}

	touched := s.commit(tx)
	if len(touched) > 0 {
		s.notify(touched)
	}
	return nil
}

// commit applies the staged changes. Upserts whose fields are unchanged keep
// their revision and do not count as a change.
func (s *Store) commit(tx *Tx) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.version + 1
	touched := make(map[string]struct{})
	for key := range tx.deletes {
		if _, ok := s.data[key.Type][key.ID]; ok {
			delete(s.data[key.Type], key.ID)
			touched[key.Type] = struct{}{}
		}
	}
	for key, r := range tx.upserts {
		b := s.bucket(key.Type)
		if old, ok := b[key.ID]; ok && jsonvalue.Equal(old.Fields, r.Fields) {
			continue
		}
		r.Revision = next
		b[key.ID] = r
		touched[key.Type] = struct{}{}
	}
	if len(touched) == 0 {
		return nil
	}
	s.version = next
	s.dirty = true
	logger.WithComponent("localstore").Tracef("committed version %d (%d upserts, %d deletes)", next, len(tx.upserts), len(tx.deletes))
	return touched
}

// Upsert stages an insert-or-update by identity.
func (tx *Tx) Upsert(r entity.Record) error {
	if tx.closed {
		return ErrTxClosed
	}
	if err := tx.s.validate(r); err != nil {
		return err
	}
	r = r.Clone()
	if r.Fields == nil {
		r.Fields = jsonvalue.Object{}
	}
	key := r.Key()
	delete(tx.deletes, key)
	tx.upserts[key] = r
	return nil
}

// UpsertAll stages every record, stopping at the first invalid one.
func (tx *Tx) UpsertAll(records []entity.Record) error {
	for _, r := range records {
		if err := tx.Upsert(r); err != nil {
			return err
		}
	}
	return nil
}

// Delete stages the removal of a record. It reports whether the record existed.
func (tx *Tx) Delete(entityType, id string) bool {
	if tx.closed {
		return false
	}
	if _, ok := tx.Get(entityType, id); !ok {
		return false
	}
	key := entity.Key{Type: entityType, ID: id}
	delete(tx.upserts, key)
	tx.deletes[key] = struct{}{}
	return true
}

// DeleteScope stages the removal of every record matching the scope and
// returns how many were removed.
func (tx *Tx) DeleteScope(sc scope.Scope) int {
	n := 0
	for _, r := range tx.Query(sc) {
		if tx.Delete(r.Type, r.ID) {
			n++
		}
	}
	return n
}

// Get reads a record as the transaction currently sees it.
func (tx *Tx) Get(entityType, id string) (entity.Record, bool) {
	if tx.closed {
		return entity.Record{}, false
	}
	key := entity.Key{Type: entityType, ID: id}
	if _, gone := tx.deletes[key]; gone {
		return entity.Record{}, false
	}
	if r, ok := tx.upserts[key]; ok {
		return r, true
	}
	r, ok := tx.s.data[entityType][id]
	return r, ok
}

// Query evaluates a scope over committed records merged with staged changes.
func (tx *Tx) Query(sc scope.Scope) []entity.Record {
	if tx.closed {
		return nil
	}
	committed := tx.s.data[sc.Type]
	merged := make([]entity.Record, 0, len(committed))
	for id, r := range committed {
		key := entity.Key{Type: sc.Type, ID: id}
		if _, gone := tx.deletes[key]; gone {
			continue
		}
		if staged, ok := tx.upserts[key]; ok {
			r = staged
		}
		merged = append(merged, r)
	}
	for key, r := range tx.upserts {
		if key.Type != sc.Type {
			continue
		}
		if _, ok := committed[key.ID]; !ok {
			merged = append(merged, r)
		}
	}
	return sc.Apply(merged)
}
