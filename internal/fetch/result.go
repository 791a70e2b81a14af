package fetch

import (
	"github.com/google/uuid"

	"github.com/bassista/go_lmsync/internal/syncerr"
)

// Result is the outcome of one refresh, exhaustion or next-page call. Every
// caller attached to the same flight receives the same Result.
type Result struct {
	// ID identifies the flight that produced the result; cache hits get their own ID.
	ID      uuid.UUID
	UseCase string
	// Fetched is true when at least one network request was issued.
	Fetched bool
	// FromCache is true when the result was served from the local store without
	// a network request.
	FromCache bool
	// Pages counts pages written by this call.
	Pages int
	// Complete is true when the server signalled there are no further pages.
	Complete bool
	// Next is the cursor of the following page, when known.
	Next string
	Err  error
}

// Kind classifies Err.
func (r Result) Kind() syncerr.Kind {
	return syncerr.KindOf(r.Err)
}

// OK reports whether the call finished without error.
func (r Result) OK() bool {
	return r.Err == nil
}
