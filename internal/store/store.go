package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/fetch"
	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/usecase"
)

// ErrReleased is returned by a Store after Release.
var ErrReleased = errors.New("store released")

// Store binds a use case to the local store and the fetch coordinator. Its
// items always equal the use case's scope applied to the local store, and
// its state follows Loading -> Data | Empty | Error.
//
// Locking: mu is never held while calling the coordinator, since commits
// deliver live results back into the Store.
type Store[M any] struct {
	coord *fetch.Coordinator
	local localstore.LiveQuerier
	codec entity.Codec[M]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	uc          usecase.Runnable
	gen         uint64
	unsubscribe func()
	records     []entity.Record
	snap        Snapshot[M]
	cursor      string
	watchers    map[uint64]chan Snapshot[M]
	nextWatcher uint64
	released    bool
}

// New creates a Store in the Loading state and starts a non-forced refresh
// in the background.
func New[M any](coord *fetch.Coordinator, local localstore.LiveQuerier, codec entity.Codec[M], uc usecase.Runnable) (*Store[M], error) {
	if err := checkUseCase(codec, uc); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store[M]{
		coord:    coord,
		local:    local,
		codec:    codec,
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[uint64]chan Snapshot[M]),
	}

	s.mu.Lock()
	s.bindLocked(uc)
	s.snap.Complete = true
	s.snap = s.buildLocked(Loading, nil, nil)
	s.refreshInBackgroundLocked()
	s.mu.Unlock()
	return s, nil
}

func checkUseCase[M any](codec entity.Codec[M], uc usecase.Runnable) error {
	if uc == nil {
		return errors.New("use case is required")
	}
	if uc.Scope().Type != codec.EntityType() {
		return fmt.Errorf("use case %s scopes %q but codec decodes %q", uc.Name(), uc.Scope().Type, codec.EntityType())
	}
	return nil
}

// bindLocked subscribes to uc's scope, replacing any previous subscription.
// The new listener is registered before the old one is removed, so an equal
// scope keeps its live query group. Holding mu across Subscribe orders the
// initial results before any notification the listener may receive.
func (s *Store[M]) bindLocked(uc usecase.Runnable) {
	s.gen++
	gen := s.gen
	s.uc = uc
	initial, unsubscribe := s.local.Subscribe(uc.Scope(), func(records []entity.Record) {
		s.onLive(gen, records)
	})
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.unsubscribe = unsubscribe
	s.records = initial
}

// onLive handles passive mutations. It toggles Data and Empty but leaves
// Loading and Error alone.
func (s *Store[M]) onLive(gen uint64, records []entity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || gen != s.gen {
		return
	}
	prev := s.records
	s.records = records
	state := s.snap.State
	if state == Data || state == Empty {
		state = dataOrEmpty(records)
	}
	s.publishLocked(state, s.snap.Err, diff(prev, records))
}

func dataOrEmpty(records []entity.Record) State {
	if len(records) == 0 {
		return Empty
	}
	return Data
}

// buildLocked materializes a snapshot from the current records.
func (s *Store[M]) buildLocked(state State, err error, changes []Change) Snapshot[M] {
	sc := s.uc.Scope()
	items := make([]M, 0, len(s.records))
	var sections []string
	if sc.SectionKey != "" {
		sections = make([]string, 0, len(s.records))
	}
	for _, r := range s.records {
		m, derr := s.codec.FromRecord(r)
		if derr != nil {
			logger.WithKey("store", s.uc.CacheKey()).Warnf("skipping %s/%s: %v", r.Type, r.ID, derr)
			continue
		}
		items = append(items, m)
		if sections != nil {
			sections = append(sections, sc.Section(r))
		}
	}
	if state != Error {
		err = nil
	}
	return Snapshot[M]{
		State:       state,
		Err:         err,
		Items:       items,
		Changes:     changes,
		Complete:    s.snap.Complete,
		LoadingMore: s.snap.LoadingMore,
		Seq:         s.snap.Seq + 1,
		errorPolicy: s.uc.ErrorPolicy(),
		sections:    sections,
	}
}

// publishLocked builds a snapshot and hands it to every watcher. Watchers
// hold at most one pending snapshot; a newer one replaces it.
func (s *Store[M]) publishLocked(state State, err error, changes []Change) {
	s.snap = s.buildLocked(state, err, changes)
	for _, ch := range s.watchers {
		offer(ch, s.snap)
	}
}

func offer[M any](ch chan Snapshot[M], snap Snapshot[M]) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Current returns the latest snapshot.
func (s *Store[M]) Current() Snapshot[M] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// UseCase returns the bound use case.
func (s *Store[M]) UseCase() usecase.Runnable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uc
}

// Watch streams snapshots, starting with the current one, until ctx is done
// or the Store is released. Slow readers only see the latest snapshot.
func (s *Store[M]) Watch(ctx context.Context) <-chan Snapshot[M] {
	ch := make(chan Snapshot[M], 1)
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = ch
	ch <- s.snap
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	})
	return ch
}

// callCtx ties a caller's context to the Store's lifetime.
func (s *Store[M]) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// begin captures the use case and, when a network request is expected,
// moves to Loading. It returns the state to restore if the call is abandoned.
func (s *Store[M]) begin(ctx context.Context, force bool) (usecase.Runnable, uint64, State, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, 0, 0, ErrReleased
	}
	uc, gen, prev := s.uc, s.gen, s.snap.State
	s.mu.Unlock()

	if s.coord.NeedsFetch(ctx, uc, force) {
		s.mu.Lock()
		if !s.released && gen == s.gen && s.snap.State != Loading {
			s.publishLocked(Loading, nil, nil)
		}
		s.mu.Unlock()
	}
	return uc, gen, prev, nil
}

// finish applies a coordinator result. Results for a replaced use case are
// dropped; a call whose own context ended restores the previous state.
func (s *Store[M]) finish(ctx context.Context, gen uint64, prev State, res fetch.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || gen != s.gen {
		return
	}
	if res.Next != "" || res.Pages > 0 || res.FromCache {
		s.cursor = res.Next
		s.snap.Complete = res.Complete
	}
	s.snap.LoadingMore = false

	switch {
	case res.Err != nil && ctx.Err() != nil:
		if prev == Loading {
			prev = dataOrEmpty(s.records)
		}
		s.publishLocked(prev, s.snap.Err, nil)
	case res.Err != nil:
		logger.WithKey("store", s.uc.CacheKey()).Debugf("%s failed: %v", s.uc.Name(), res.Err)
		s.publishLocked(Error, res.Err, nil)
	default:
		s.publishLocked(dataOrEmpty(s.records), nil, nil)
	}
}

// Refresh runs the fetch-once path. With force false and a fresh ledger the
// state resolves without passing through Loading.
func (s *Store[M]) Refresh(ctx context.Context, force bool) fetch.Result {
	ctx, done := s.callCtx(ctx)
	defer done()
	uc, gen, prev, err := s.begin(ctx, force)
	if err != nil {
		return fetch.Result{Err: err}
	}
	res := s.coord.Refresh(ctx, uc, force)
	s.finish(ctx, gen, prev, res)
	return res
}

// ExhaustAll loads every page of the use case.
func (s *Store[M]) ExhaustAll(ctx context.Context, force bool) fetch.Result {
	ctx, done := s.callCtx(ctx)
	defer done()
	uc, gen, prev, err := s.begin(ctx, force)
	if err != nil {
		return fetch.Result{Err: err}
	}
	res := s.coord.ExhaustAll(ctx, uc, force)
	s.finish(ctx, gen, prev, res)
	return res
}

// NextPage loads one more page. The state is kept; LoadingMore is raised
// while the request is outstanding.
func (s *Store[M]) NextPage(ctx context.Context) fetch.Result {
	ctx, done := s.callCtx(ctx)
	defer done()

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return fetch.Result{Err: ErrReleased}
	}
	uc, gen, prev, cursor := s.uc, s.gen, s.snap.State, s.cursor
	if cursor == "" && s.snap.Complete {
		s.mu.Unlock()
		return fetch.Result{UseCase: uc.Name(), FromCache: true, Complete: true}
	}
	s.snap.LoadingMore = true
	s.publishLocked(s.snap.State, s.snap.Err, nil)
	s.mu.Unlock()

	res := s.coord.NextPage(ctx, uc, cursor)
	s.finish(ctx, gen, prev, res)
	return res
}

// SetUseCase swaps the bound use case. An equal scope keeps the live query
// and the current state; otherwise the query is rebuilt and the Store goes
// back to Loading. A non-forced refresh of the new use case follows.
func (s *Store[M]) SetUseCase(uc usecase.Runnable) error {
	if err := checkUseCase(s.codec, uc); err != nil {
		return err
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrReleased
	}
	prev := s.records
	sameScope := s.uc.Scope().Equal(uc.Scope())
	s.bindLocked(uc)
	s.cursor = ""
	s.snap.Complete = true
	if sameScope {
		s.publishLocked(s.snap.State, s.snap.Err, diff(prev, s.records))
	} else {
		s.publishLocked(Loading, nil, diff(prev, s.records))
	}
	s.refreshInBackgroundLocked()
	s.mu.Unlock()
	return nil
}

// refreshInBackgroundLocked registers with wg under mu so Release, which
// flips released under mu before waiting, never races an Add.
func (s *Store[M]) refreshInBackgroundLocked() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Refresh(s.ctx, false)
	}()
}

// Release detaches the Store. In-flight calls are abandoned (a shared fetch
// keeps running for its other callers), watchers are closed and every later
// call returns ErrReleased. Release waits for background refreshes to stop.
func (s *Store[M]) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.unsubscribe()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
