package localstore

import (
	"maps"
	"slices"
	"sync"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/scope"
)

// Listener receives the full, ordered result of a live query after every
// commit that changes it. The slice is owned by the listener.
type Listener func(records []entity.Record)

type signature struct {
	id  string
	rev uint64
}

func signatures(records []entity.Record) []signature {
	out := make([]signature, len(records))
	for i, r := range records {
		out[i] = signature{id: r.ID, rev: r.Revision}
	}
	return out
}

// liveQuery is one evaluation group: every subscriber with an equal scope.
type liveQuery struct {
	scope scope.Scope
	subs  map[uint64]Listener
	// last is written at creation (under registry.mu) and afterwards only by
	// notify, which runs under the store's write lock.
	last []signature
}

// registry indexes live queries by entity type, then scope fingerprint.
// Fingerprint collisions are resolved with structural scope equality.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	byType map[string]map[uint64][]*liveQuery
}

func newRegistry() *registry {
	return &registry{byType: make(map[string]map[uint64][]*liveQuery)}
}

func (r *registry) find(sc scope.Scope) *liveQuery {
	for _, q := range r.byType[sc.Type][sc.Fingerprint()] {
		if q.scope.Equal(sc) {
			return q
		}
	}
	return nil
}

// Subscribe registers a live query. It returns the current results and a
// function that detaches the listener; calling it more than once is safe.
func (s *Store) Subscribe(sc scope.Scope, fn Listener) ([]entity.Record, func()) {
	reg := s.live
	reg.mu.Lock()

	s.mu.RLock()
	initial := s.queryLocked(sc)
	s.mu.RUnlock()

	q := reg.find(sc)
	if q == nil {
		q = &liveQuery{scope: sc, subs: make(map[uint64]Listener), last: signatures(initial)}
		fp := sc.Fingerprint()
		byFP, ok := reg.byType[sc.Type]
		if !ok {
			byFP = make(map[uint64][]*liveQuery)
			reg.byType[sc.Type] = byFP
		}
		byFP[fp] = append(byFP[fp], q)
	}
	reg.nextID++
	id := reg.nextID
	q.subs[id] = fn
	reg.mu.Unlock()

	var once sync.Once
	return initial, func() {
		once.Do(func() { reg.remove(q, id) })
	}
}

func (r *registry) remove(q *liveQuery, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(q.subs, id)
	if len(q.subs) > 0 {
		return
	}
	fp := q.scope.Fingerprint()
	byFP := r.byType[q.scope.Type]
	byFP[fp] = slices.DeleteFunc(byFP[fp], func(other *liveQuery) bool { return other == q })
	if len(byFP[fp]) == 0 {
		delete(byFP, fp)
	}
	if len(byFP) == 0 {
		delete(r.byType, q.scope.Type)
	}
}

type pending struct {
	q         *liveQuery
	listeners []Listener
}

// snapshot copies the groups and listeners for the touched types.
func (r *registry) snapshot(touched map[string]struct{}) []pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []pending
	for _, t := range slices.Sorted(maps.Keys(touched)) {
		for _, fp := range slices.Sorted(maps.Keys(r.byType[t])) {
			for _, q := range r.byType[t][fp] {
				ids := slices.Sorted(maps.Keys(q.subs))
				listeners := make([]Listener, len(ids))
				for i, id := range ids {
					listeners[i] = q.subs[id]
				}
				out = append(out, pending{q: q, listeners: listeners})
			}
		}
	}
	return out
}

// notify re-evaluates each live query over a touched type and calls its
// listeners when the ordered (id, revision) list changed. Callers hold the write lock.
func (s *Store) notify(touched map[string]struct{}) {
	for _, p := range s.live.snapshot(touched) {
		s.mu.RLock()
		results := s.queryLocked(p.q.scope)
		s.mu.RUnlock()

		sig := signatures(results)
		if slices.Equal(sig, p.q.last) {
			continue
		}
		p.q.last = sig
		for _, fn := range p.listeners {
			fn(slices.Clone(results))
		}
	}
}

// LiveQueries returns the number of distinct live queries being evaluated.
func (s *Store) LiveQueries() int {
	s.live.mu.Lock()
	defer s.live.mu.Unlock()
	n := 0
	for _, byFP := range s.live.byType {
		for _, qs := range byFP {
			n += len(qs)
		}
	}
	return n
}

// Subscribers returns the number of attached listeners.
func (s *Store) Subscribers() int {
	s.live.mu.Lock()
	defer s.live.mu.Unlock()
	n := 0
	for _, byFP := range s.live.byType {
		for _, qs := range byFP {
			for _, q := range qs {
				n += len(q.subs)
			}
		}
	}
	return n
}
