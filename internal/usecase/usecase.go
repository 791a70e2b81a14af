package usecase

import (
	"fmt"
	"time"

	"github.com/bassista/go_lmsync/internal/localstore"
	"github.com/bassista/go_lmsync/internal/remote"
	"github.com/bassista/go_lmsync/internal/scope"
)

// DefaultTTL is how long a successful sync stays fresh unless overridden.
const DefaultTTL = 2 * time.Hour

// Policy decides what happens to local entities a response no longer contains.
type Policy int

const (
	// UpsertOnly never deletes; entities missing from a response stay cached.
	UpsertOnly Policy = iota
	// ReplaceScope deletes every entity in scope before writing the first page,
	// in the same transaction, so the scope mirrors the server after a full sync.
	ReplaceScope
)

func (p Policy) String() string {
	if p == ReplaceScope {
		return "replace-scope"
	}
	return "upsert-only"
}

// ErrorPolicy decides how a failed refresh over cached items is presented.
type ErrorPolicy int

const (
	// Soft keeps showing cached items with an error indicator.
	Soft ErrorPolicy = iota
	// Blocking asks for a full error screen even when items are cached.
	Blocking
)

func (p ErrorPolicy) String() string {
	if p == Blocking {
		return "blocking"
	}
	return "soft"
}

// Batch is a decoded page ready to be written inside a transaction.
type Batch func(tx *localstore.Tx, firstPage bool) error

// Runnable is the type-erased view of a use case the fetch coordinator runs.
type Runnable interface {
	Name() string
	CacheKey() string
	TTL() time.Duration
	Scope() scope.Scope
	Request() remote.Request
	IsLocal() bool
	Policy() Policy
	ErrorPolicy() ErrorPolicy
	MaxPages() int
	// Decode turns a response into a Batch. It performs no store access.
	Decode(resp *remote.Response) (Batch, error)
}

// WriteFunc reconciles a decoded response into the local store. It must be
// idempotent and must not perform I/O.
type WriteFunc[R any] func(tx *localstore.Tx, resp R) error

// DecodeFunc decodes a raw response.
type DecodeFunc[R any] func(resp *remote.Response) (R, error)

type settings struct {
	cacheKey    string
	ttl         time.Duration
	policy      Policy
	errorPolicy ErrorPolicy
	maxPages    int
}

// Option configures a use case.
type Option func(*settings)

// WithCacheKey names the fetch for the sync ledger. Without one the use case
// is never considered synced and always fetches.
func WithCacheKey(key string) Option {
	return func(s *settings) { s.cacheKey = key }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) { s.ttl = ttl }
}

// WithPolicy sets the deletion policy.
func WithPolicy(p Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithErrorPolicy sets how failures over cached data are presented.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(s *settings) { s.errorPolicy = p }
}

// WithMaxPages caps pagination exhaustion for this use case. Zero defers to the
// coordinator's global cap.
func WithMaxPages(n int) Option {
	return func(s *settings) { s.maxPages = n }
}

// UseCase declares a remote fetch, its cache identity, the local scope it owns
// and how its response is written. Constructing one performs no I/O.
type UseCase[R any] struct {
	name    string
	request remote.Request
	scope   scope.Scope
	write   WriteFunc[R]
	decode  DecodeFunc[R]
	local   bool
	settings
}

// New declares a use case whose response body is JSON-decoded into R.
func New[R any](name string, req remote.Request, sc scope.Scope, write WriteFunc[R], opts ...Option) *UseCase[R] {
	uc := &UseCase[R]{
		name:     name,
		request:  req,
		scope:    sc,
		write:    write,
		decode:   remote.DecodeJSON[R],
		settings: settings{ttl: DefaultTTL},
	}
	for _, opt := range opts {
		opt(&uc.settings)
	}
	return uc
}

// WithDecoder returns a copy using fn instead of JSON decoding.
func (u *UseCase[R]) WithDecoder(fn DecodeFunc[R]) *UseCase[R] {
	cp := *u
	cp.decode = fn
	return &cp
}

func (u *UseCase[R]) Name() string             { return u.name }
func (u *UseCase[R]) CacheKey() string         { return u.cacheKey }
func (u *UseCase[R]) TTL() time.Duration       { return u.ttl }
func (u *UseCase[R]) Scope() scope.Scope       { return u.scope }
func (u *UseCase[R]) Request() remote.Request  { return u.request }
func (u *UseCase[R]) IsLocal() bool            { return u.local }
func (u *UseCase[R]) Policy() Policy           { return u.policy }
func (u *UseCase[R]) ErrorPolicy() ErrorPolicy { return u.errorPolicy }
func (u *UseCase[R]) MaxPages() int            { return u.maxPages }

// Decode implements Runnable.
func (u *UseCase[R]) Decode(resp *remote.Response) (Batch, error) {
	if u.local {
		return nil, fmt.Errorf("use case %s is local and has no response", u.name)
	}
	payload, err := u.decode(resp)
	if err != nil {
		return nil, err
	}
	return func(tx *localstore.Tx, firstPage bool) error {
		return u.Write(tx, payload, firstPage)
	}, nil
}

// Write applies the deletion policy then the write function.
func (u *UseCase[R]) Write(tx *localstore.Tx, payload R, firstPage bool) error {
	if u.policy == ReplaceScope && firstPage {
		tx.DeleteScope(u.scope)
	}
	if u.write == nil {
		return nil
	}
	return u.write(tx, payload)
}

var _ Runnable = (*UseCase[struct{}])(nil)
