package fetch

import (
	"context"

	"github.com/google/uuid"

	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/syncerr"
)

type mode int

const (
	modePage mode = iota
	modeAll
	modeNext
)

func (m mode) String() string {
	switch m {
	case modeAll:
		return "all"
	case modeNext:
		return "next"
	default:
		return "page"
	}
}

// flight is one in-progress run for a cache key.
type flight struct {
	id     uuid.UUID
	mode   mode
	force  bool
	cursor string
	// epoch is the coordinator epoch the flight started in; its writes are
	// dropped once Reset moves the epoch on.
	epoch uint64
	// fetching is set once the run has committed to a network request.
	fetching bool
	waiters  int
	cancel   context.CancelFunc
	done     chan struct{}
	res      Result
}

// covers reports whether a caller asking for m with force can take this
// flight's outcome instead of starting its own. A forced caller may only
// attach to a flight that is (or will be) going to the network.
func (f *flight) covers(m mode, force bool, cursor string) bool {
	if force && !f.force && !f.fetching {
		return false
	}
	switch m {
	case modePage:
		return f.mode == modePage || f.mode == modeAll
	case modeNext:
		return f.mode == modeNext && f.cursor == cursor
	default:
		return f.mode == m
	}
}

// do runs fn at most once per key at a time. Callers whose request the
// running flight covers attach to it; others wait for it to finish and retry.
// The flight's context is detached from any single caller and is cancelled
// only when every attached caller has gone away.
func (c *Coordinator) do(ctx context.Context, key string, m mode, force bool, cursor string, fn func(ctx context.Context, f *flight) Result) Result {
	log := logger.WithKey("fetch", key)
	if key == "" {
		f := &flight{id: uuid.New(), mode: m, force: force, cursor: cursor, epoch: c.epoch.Load()}
		return fn(ctx, f)
	}

	for {
		c.mu.Lock()
		f, ok := c.flights[key]
		// a flight nobody waits for is being cancelled and cannot be joined
		if ok && f.waiters > 0 && f.covers(m, force, cursor) {
			f.waiters++
			c.mu.Unlock()
			log.Debugf("attached to %s flight %s", f.mode, f.id)
			return c.wait(ctx, key, f)
		}
		if ok {
			c.mu.Unlock()
			log.Debugf("waiting for %s flight %s before starting %s", f.mode, f.id, m)
			select {
			case <-f.done:
				continue
			case <-ctx.Done():
				return Result{Err: syncerr.Network(key, ctx.Err())}
			}
		}

		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{
			id:      uuid.New(),
			mode:    m,
			force:   force,
			cursor:  cursor,
			epoch:   c.epoch.Load(),
			waiters: 1,
			cancel:  cancel,
			done:    make(chan struct{}),
		}
		c.flights[key] = f
		c.mu.Unlock()
		log.Debugf("started %s flight %s (force=%t)", m, f.id, force)

		go func() {
			res := fn(fctx, f)
			cancel()
			// the ledger is already updated, so a caller arriving after
			// removal sees the fresh record
			c.mu.Lock()
			if c.flights[key] == f {
				delete(c.flights, key)
			}
			f.res = res
			c.mu.Unlock()
			close(f.done)
		}()
		return c.wait(ctx, key, f)
	}
}

func (c *Coordinator) wait(ctx context.Context, key string, f *flight) Result {
	select {
	case <-f.done:
		return f.res
	case <-ctx.Done():
		c.mu.Lock()
		f.waiters--
		last := f.waiters == 0
		c.mu.Unlock()
		if last {
			logger.WithKey("fetch", key).Debugf("last caller left, cancelling flight %s", f.id)
			f.cancel()
		}
		return Result{ID: f.id, Err: syncerr.Network(key, ctx.Err())}
	}
}

// markFetching records that the flight is going to the network, under the
// same lock joiners inspect it with.
func (c *Coordinator) markFetching(f *flight) {
	c.mu.Lock()
	f.fetching = true
	c.mu.Unlock()
}

// Reset starts a new epoch and cancels every running flight, as on logout.
// Once it returns, no flight started before it writes to the store or the
// ledger again, so callers can wipe both afterwards.
func (c *Coordinator) Reset() {
	c.resetMu.Lock()
	c.epoch.Add(1)
	c.resetMu.Unlock()

	c.mu.Lock()
	n := len(c.flights)
	for key, f := range c.flights {
		f.cancel()
		delete(c.flights, key)
	}
	c.mu.Unlock()
	logger.WithComponent("fetch").Debugf("reset, cancelled %d flight(s)", n)
}

// guard runs write unless a Reset happened since the flight started. Reset
// waits for a running write to finish.
func (c *Coordinator) guard(f *flight, write func() error) error {
	c.resetMu.RLock()
	defer c.resetMu.RUnlock()
	if c.epoch.Load() != f.epoch {
		return ErrReset
	}
	return write()
}

// InFlight reports whether a run is outstanding for key.
func (c *Coordinator) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.flights[key]
	return ok
}
