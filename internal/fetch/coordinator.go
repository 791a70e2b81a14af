package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bassista/go_lmsync/internal/connectivity"
	"github.com/bassista/go_lmsync/internal/ledger"
	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/remote"
	"github.com/bassista/go_lmsync/internal/syncerr"
	"github.com/bassista/go_lmsync/internal/usecase"
)

const (
	defaultMaxPages    = 100
	defaultConcurrency = 4
)

// ErrReset is reported by runs whose results were discarded by Reset.
var ErrReset = errors.New("sync state was reset")

// Coordinator runs use cases against the network: it decides whether a
// fetch is needed, de-duplicates concurrent fetches per cache key, writes
// each page in its own transaction and records progress in the ledger.
type Coordinator struct {
	exec    remote.Executor
	ledger  ledger.Ledger
	store   localstore.Writer
	monitor connectivity.Monitor

	maxPages    int
	concurrency int

	mu      sync.Mutex
	flights map[string]*flight

	// resetMu is held for reading across every store or ledger write.
	resetMu sync.RWMutex
	epoch   atomic.Uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMonitor sets the connectivity signal consulted before non-forced fetches.
func WithMonitor(m connectivity.Monitor) Option {
	return func(c *Coordinator) { c.monitor = m }
}

// WithMaxPages caps every exhaustion run.
func WithMaxPages(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithConcurrency bounds how many use cases Warm runs at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a Coordinator.
func New(exec remote.Executor, led ledger.Ledger, store localstore.Writer, opts ...Option) *Coordinator {
	c := &Coordinator{
		exec:        exec,
		ledger:      led,
		store:       store,
		monitor:     connectivity.Online,
		maxPages:    defaultMaxPages,
		concurrency: defaultConcurrency,
		flights:     make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh runs the fetch-once path: a fresh ledger record (unless force) or a
// local use case is served from the store; otherwise the first page is fetched.
func (c *Coordinator) Refresh(ctx context.Context, uc usecase.Runnable, force bool) Result {
	if uc.IsLocal() {
		return cached(uc, "")
	}
	return c.do(ctx, uc.CacheKey(), modePage, force, "", func(ctx context.Context, f *flight) Result {
		if !force {
			if res, ok := c.shortCircuit(ctx, uc, modePage); ok {
				return res
			}
		}
		c.markFetching(f)
		return c.run(ctx, f, uc, "", true, 1)
	})
}

// ExhaustAll follows next cursors until the server reports no more pages or
// the page cap is hit. A fresh but incomplete sync resumes from its cursor.
func (c *Coordinator) ExhaustAll(ctx context.Context, uc usecase.Runnable, force bool) Result {
	if uc.IsLocal() {
		return cached(uc, "")
	}
	return c.do(ctx, uc.CacheKey(), modeAll, force, "", func(ctx context.Context, f *flight) Result {
		cursor, first := "", true
		if !force {
			res, ok := c.shortCircuit(ctx, uc, modeAll)
			if ok {
				return res
			}
			if res.Next != "" {
				cursor, first = res.Next, false
			}
		}
		c.markFetching(f)
		return c.run(ctx, f, uc, cursor, first, c.pageCap(uc))
	})
}

// NextPage loads exactly one page after cursor, or after the ledger cursor
// when cursor is empty. It reports Complete when there is nothing to load.
func (c *Coordinator) NextPage(ctx context.Context, uc usecase.Runnable, cursor string) Result {
	if uc.IsLocal() {
		return cached(uc, "")
	}
	key := uc.CacheKey()
	if cursor == "" {
		rec, ok, err := c.ledger.Get(ctx, key)
		if err != nil {
			logger.WithKey("fetch", key).Warnf("ledger lookup failed: %v", err)
		}
		if !ok || !rec.HasNext() {
			return cached(uc, "")
		}
		cursor = rec.Cursor
	}
	if !c.monitor.IsReachable() {
		res := cached(uc, cursor)
		res.Err = syncerr.Offline(uc.Name())
		return res
	}
	return c.do(ctx, key, modeNext, true, cursor, func(ctx context.Context, f *flight) Result {
		c.markFetching(f)
		return c.run(ctx, f, uc, cursor, false, 1)
	})
}

// NeedsFetch predicts whether Refresh would go to the network, so observers
// can show progress only when a request is really issued.
func (c *Coordinator) NeedsFetch(ctx context.Context, uc usecase.Runnable, force bool) bool {
	if uc.IsLocal() {
		return false
	}
	if c.InFlight(uc.CacheKey()) || force {
		return true
	}
	fresh, err := c.ledger.IsFresh(ctx, uc.CacheKey(), uc.TTL())
	if err == nil && fresh {
		return false
	}
	return c.monitor.IsReachable()
}

// Warm exhausts many use cases with bounded concurrency, the way an offline
// download pre-fills the cache. Failures of individual use cases are reported
// in their Result and joined in the error.
func (c *Coordinator) Warm(ctx context.Context, ucs []usecase.Runnable, force bool) ([]Result, error) {
	results := make([]Result, len(ucs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, uc := range ucs {
		g.Go(func() error {
			results[i] = c.ExhaustAll(gctx, uc, force)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.UseCase, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (c *Coordinator) pageCap(uc usecase.Runnable) int {
	limit := c.maxPages
	if n := uc.MaxPages(); n > 0 && n < limit {
		limit = n
	}
	return limit
}

func cached(uc usecase.Runnable, next string) Result {
	return Result{
		ID:        uuid.New(),
		UseCase:   uc.Name(),
		FromCache: true,
		Complete:  next == "",
		Next:      next,
	}
}

// shortCircuit serves non-forced calls without the network: when the ledger
// is fresh, or when offline. For exhaustion, a fresh record with a pending
// cursor is not served; its cursor is returned in Next for resumption.
func (c *Coordinator) shortCircuit(ctx context.Context, uc usecase.Runnable, m mode) (Result, bool) {
	key := uc.CacheKey()
	log := logger.WithKey("fetch", key)

	fresh, err := c.ledger.IsFresh(ctx, key, uc.TTL())
	if err != nil {
		log.Warnf("ledger freshness check failed, fetching: %v", err)
	}
	if fresh {
		rec, _, err := c.ledger.Get(ctx, key)
		if err != nil {
			log.Warnf("ledger lookup failed: %v", err)
		}
		if m == modeAll && rec.HasNext() {
			log.Debugf("fresh but incomplete, resuming exhaustion")
			if !c.monitor.IsReachable() {
				res := cached(uc, rec.Cursor)
				res.Err = syncerr.Offline(uc.Name())
				return res, true
			}
			return Result{Next: rec.Cursor}, false
		}
		log.Debugf("cache hit for %s", uc.Name())
		return cached(uc, rec.Cursor), true
	}
	if !c.monitor.IsReachable() {
		log.Debugf("offline, serving cached %s", uc.Name())
		res := cached(uc, "")
		res.Err = syncerr.Offline(uc.Name())
		return res, true
	}
	return Result{}, false
}

// run fetches up to limit pages starting at cursor. Each page is decoded,
// written in its own transaction and recorded in the ledger before the next
// one is requested. Writes are dropped once a Reset has happened since the
// flight started.
func (c *Coordinator) run(ctx context.Context, f *flight, uc usecase.Runnable, cursor string, firstPage bool, limit int) Result {
	key := uc.CacheKey()
	log := logger.WithKey("fetch", key)
	res := Result{ID: f.id, UseCase: uc.Name()}
	start := time.Now()

	for {
		req := uc.Request().WithCursor(cursor)
		op := uc.Name()

		res.Fetched = true
		resp, err := c.exec.Execute(ctx, req)
		if err != nil {
			res.Err = classify(op, err)
			break
		}
		batch, err := uc.Decode(resp)
		if err != nil {
			res.Err = tag(syncerr.KindDecode, op, err)
			break
		}
		first := firstPage && res.Pages == 0
		err = c.guard(f, func() error {
			return c.store.Transaction(ctx, func(tx *localstore.Tx) error {
				return batch(tx, first)
			})
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrReset):
				res.Err = syncerr.Network(op, err)
			case ctx.Err() != nil:
				res.Err = syncerr.Network(op, ctx.Err())
			default:
				res.Err = syncerr.Reconciliation(op, err)
			}
			break
		}
		res.Pages++

		next := resp.Next()
		err = c.guard(f, func() error { return c.ledger.RecordSuccess(ctx, key, next) })
		if errors.Is(err, ErrReset) {
			res.Err = syncerr.Network(op, err)
			break
		}
		if err != nil {
			log.Warnf("page %d written but ledger update failed: %v", res.Pages, err)
		}
		res.Next = next
		if next == "" {
			res.Complete = true
			break
		}
		if res.Pages >= limit {
			break
		}
		cursor = next
	}

	if res.Err != nil {
		log.Warnf("%s stopped after %d page(s): %v", uc.Name(), res.Pages, res.Err)
	} else {
		log.Debugf("%s fetched %d page(s) in %s (complete=%t)", uc.Name(), res.Pages, time.Since(start).Round(time.Millisecond), res.Complete)
	}
	return res
}

// classify keeps errors already tagged by the executor and treats anything
// else as a network failure.
func classify(op string, err error) error {
	return tag(syncerr.KindOf(err), op, err)
}

func tag(kind syncerr.Kind, op string, err error) error {
	var se *syncerr.Error
	if errors.As(err, &se) {
		return err
	}
	return syncerr.New(kind, op, err)
}
