package localstore

import (
	"context"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/repository"
	"github.com/bassista/go_lmsync/internal/scope"
)

// Reader is the minimal store API for read-only consumers.
type Reader interface {
	Get(entityType, id string) (entity.Record, bool)
	Query(sc scope.Scope) []entity.Record
	Count(entityType string) int
	Types() []string
}

// Writer is the only mutation boundary.
type Writer interface {
	Transaction(ctx context.Context, body func(tx *Tx) error) error
}

// LiveQuerier registers live queries.
type LiveQuerier interface {
	Subscribe(sc scope.Scope, fn Listener) ([]entity.Record, func())
}

// PersistableStore is the store API needed by the persistence scheduler.
type PersistableStore interface {
	IsDirty() bool
	Snapshot() (repository.Document, error)
	ClearDirty()
	SetLastUpdate(ts int64)
}

// AppStore is the store contract the application container exposes.
// It covers the sync engine, the persistence scheduler and the repository watcher.
type AppStore interface {
	repository.Reloadable
	Reader
	Writer
	LiveQuerier
	PersistableStore
	Reset(ctx context.Context) error
}

var _ AppStore = (*Store)(nil)
