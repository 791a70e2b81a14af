package repository

import "context"

// Saver persists a Document.
// Small interface used by background jobs like the persistence scheduler.
type Saver interface {
	Save(ctx context.Context, doc *Document) error
}

// Repository abstracts persistence and watching of the snapshot file.
// JSONRepository implements this interface.
type Repository interface {
	Saver
	Load(ctx context.Context) (*Document, error)
	StartWatcher(ctx context.Context, local Reloadable) error
}

// Reloadable is the local store as seen by the snapshot watcher: it can be
// replaced wholesale when another process writes a newer snapshot.
type Reloadable interface {
	GetLastUpdate() int64
	IsDirty() bool
	Snapshot() (Document, error)
	Replace(doc Document) error
}
