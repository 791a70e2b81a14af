package usecase

import (
	"fmt"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/remote"
	"github.com/bassista/go_lmsync/internal/scope"
)

// Collection declares the common list fetch: the body is a JSON array of M,
// and every element is upserted through codec.
func Collection[M any](name string, req remote.Request, sc scope.Scope, codec entity.Codec[M], opts ...Option) *UseCase[[]M] {
	return New(name, req, sc, UpsertWith(codec), opts...)
}

// Single declares a fetch of one object upserted through codec.
func Single[M any](name string, req remote.Request, sc scope.Scope, codec entity.Codec[M], opts ...Option) *UseCase[M] {
	return New(name, req, sc, func(tx *localstore.Tx, m M) error {
		rec, err := codec.ToRecord(m)
		if err != nil {
			return err
		}
		return tx.Upsert(rec)
	}, opts...)
}

// UpsertWith returns a WriteFunc that upserts every element through codec.
func UpsertWith[M any](codec entity.Codec[M]) WriteFunc[[]M] {
	return func(tx *localstore.Tx, items []M) error {
		records := make([]entity.Record, 0, len(items))
		for i, item := range items {
			rec, err := codec.ToRecord(item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			records = append(records, rec)
		}
		return tx.UpsertAll(records)
	}
}

// Delete declares a server-side delete. On success every local entity in
// scope is removed; the response body is ignored.
func Delete(name string, req remote.Request, sc scope.Scope, opts ...Option) *UseCase[struct{}] {
	uc := New(name, req, sc, func(tx *localstore.Tx, _ struct{}) error {
		tx.DeleteScope(sc)
		return nil
	}, opts...)
	uc.decode = func(*remote.Response) (struct{}, error) { return struct{}{}, nil }
	return uc
}

// Local declares a use case with no network side: it only exposes a scope
// of the local store.
func Local(name string, sc scope.Scope) *UseCase[struct{}] {
	uc := New[struct{}](name, remote.Request{}, sc, nil)
	uc.local = true
	return uc
}
