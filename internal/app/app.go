package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bassista/go_lmsync/internal/config"
	"github.com/bassista/go_lmsync/internal/connectivity"
	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/fetch"
	"github.com/bassista/go_lmsync/internal/ledger"
	"github.com/bassista/go_lmsync/internal/lms"
	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/logger"
	"github.com/bassista/go_lmsync/internal/remote"
	"github.com/bassista/go_lmsync/internal/repository"
	"github.com/bassista/go_lmsync/internal/store"
	"github.com/bassista/go_lmsync/internal/usecase"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config  *config.Config
	Repo    repository.Repository
	Store   localstore.AppStore
	Ledger  ledger.Ledger
	Coord   *fetch.Coordinator
	Catalog *lms.Catalog
	Network *connectivity.Toggle

	BaseCtx context.Context
	Cancel  context.CancelFunc

	persistDone <-chan struct{}
}

func New(cfg *config.Config, repo repository.Repository, st localstore.AppStore, led ledger.Ledger, exec remote.Executor) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if repo == nil {
		return nil, errors.New("repo is nil")
	}
	if st == nil {
		return nil, errors.New("local store is nil")
	}
	if led == nil {
		return nil, errors.New("ledger is nil")
	}
	if exec == nil {
		return nil, errors.New("executor is nil")
	}

	network := connectivity.NewToggle(!cfg.Sync.Offline)
	coord := fetch.New(exec, led, st,
		fetch.WithMonitor(network),
		fetch.WithMaxPages(cfg.Sync.MaxPages),
		fetch.WithConcurrency(cfg.Sync.Concurrency),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:  cfg,
		Repo:    repo,
		Store:   st,
		Ledger:  led,
		Coord:   coord,
		Catalog: lms.NewCatalog(),
		Network: network,
		BaseCtx: ctx,
		Cancel:  cancel,
	}, nil
}

// Bootstrap builds every dependency from configuration: the snapshot
// repository, the local store seeded from it, the ledger backend and the
// network executor.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	repo, err := repository.NewJSONRepository(cfg.Data.FilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot init repository: %w", err)
	}
	doc, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load data file: %w", err)
	}
	st := localstore.NewStore(*doc)

	led, err := ledger.NewFromConfig(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("cannot init ledger: %w", err)
	}
	exec, err := NewExecutor(cfg)
	if err != nil {
		_ = led.Close()
		return nil, err
	}

	a, err := New(cfg, repo, st, led, exec)
	if err != nil {
		_ = led.Close()
		return nil, err
	}
	logger.WithComponent("app").Debugf("loaded %d record(s), ledger=%s", len(doc.Records), cfg.Ledger.Backend)
	return a, nil
}

// NewExecutor returns the fixture executor when sync.fixtures_path is set,
// otherwise an HTTP client for api.base_url.
func NewExecutor(cfg *config.Config) (remote.Executor, error) {
	if cfg.Sync.FixturesPath != "" {
		exec, err := remote.LoadFixtures(cfg.Sync.FixturesPath)
		if err != nil {
			return nil, fmt.Errorf("cannot load fixtures: %w", err)
		}
		return exec, nil
	}
	client, err := remote.NewClient(cfg.API.BaseURL, cfg.API.Timeout,
		remote.WithToken(cfg.API.Token),
		remote.WithPerPage(cfg.API.PerPage),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot init api client: %w", err)
	}
	return client, nil
}

// Shutdown cancels the lifecycle context, waits for the final persistence
// flush and closes the ledger.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()
	if a.persistDone != nil {
		<-a.persistDone
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			logger.WithComponent("app").Warnf("closing ledger: %v", err)
		}
	}
}

// StartWatchers starts the snapshot file watcher (when data.watch is set)
// and the persistence scheduler.
func (a *App) StartWatchers() error {
	if a.Config.Data.Watch {
		if err := a.Repo.StartWatcher(a.BaseCtx, a.Store); err != nil {
			return fmt.Errorf("cannot start data file watcher: %w", err)
		}
	}
	a.persistDone = localstore.StartPersistenceScheduler(a.BaseCtx, a.Store, a.Repo, a.Config.Data.PersistInterval)
	return nil
}

// UseCaseOptions are applied to every catalog use case.
func (a *App) UseCaseOptions() []usecase.Option {
	if a.Config.Sync.DefaultTTL <= 0 {
		return nil
	}
	return []usecase.Option{usecase.WithTTL(a.Config.Sync.DefaultTTL)}
}

// Build constructs a catalog use case with the configured defaults.
func (a *App) Build(name string, params lms.Params) (usecase.Runnable, error) {
	return a.Catalog.Build(name, params, a.UseCaseOptions()...)
}

// Sync runs uc once: a single page, or every page when all is set.
func (a *App) Sync(ctx context.Context, uc usecase.Runnable, force, all bool) fetch.Result {
	if all {
		return a.Coord.ExhaustAll(ctx, uc, force)
	}
	return a.Coord.Refresh(ctx, uc, force)
}

// Warm exhausts every catalog entry that needs no parameters and does not
// mutate server state, as a bulk offline download does.
func (a *App) Warm(ctx context.Context, force bool) ([]fetch.Result, error) {
	var ucs []usecase.Runnable
	for _, e := range a.Catalog.Entries() {
		if e.Mutates || len(e.Params) > 0 {
			continue
		}
		uc, err := a.Build(e.Name, nil)
		if err != nil {
			return nil, err
		}
		if uc.IsLocal() {
			continue
		}
		ucs = append(ucs, uc)
	}
	return a.Coord.Warm(ctx, ucs, force)
}

// View opens a Store on uc the way a screen would, waits until it leaves
// Loading and releases it. On ctx expiry the last snapshot is returned with
// the context error.
func (a *App) View(ctx context.Context, uc usecase.Runnable) (store.Snapshot[entity.Record], error) {
	s, err := store.New[entity.Record](a.Coord, a.Store, entity.RecordCodec{Type: uc.Scope().Type}, uc)
	if err != nil {
		return store.Snapshot[entity.Record]{}, err
	}
	defer s.Release()

	for snap := range s.Watch(ctx) {
		if snap.State != store.Loading {
			return snap, nil
		}
	}
	return s.Current(), ctx.Err()
}

// Logout clears every trace of the signed-in user: the local store, the
// ledger and the persisted snapshot. Running fetches are cancelled first so
// none of them writes the previous user's data back.
func (a *App) Logout(ctx context.Context) error {
	log := logger.WithComponent("app")
	a.Coord.Reset()
	var errs []error
	if err := a.Store.Reset(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reset local store: %w", err))
	}
	if err := a.Ledger.Reset(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reset ledger: %w", err))
	}
	// the persistence scheduler may have flushed the reset already
	if len(errs) == 0 && a.Store.IsDirty() && !localstore.Flush(ctx, a.Store, a.Repo) {
		errs = append(errs, errors.New("persisting the empty snapshot failed"))
	}
	if err := errors.Join(errs...); err != nil {
		log.Errorf("logout incomplete: %v", err)
		return err
	}
	log.Info("logged out, local data cleared")
	return nil
}
