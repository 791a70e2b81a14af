package store

import (
	"fmt"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/syncerr"
	"github.com/bassista/go_lmsync/internal/usecase"
)

// State is the observable lifecycle of a Store.
type State int

const (
	Loading State = iota
	Data
	Empty
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Data:
		return "data"
	case Empty:
		return "empty"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ChangeKind classifies one difference between two item lists.
type ChangeKind int

const (
	Insert ChangeKind = iota
	Update
	Delete
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	default:
		return "delete"
	}
}

// Change describes one item difference. Index refers to the previous list for
// deletes and to the new list otherwise.
type Change struct {
	Kind  ChangeKind
	ID    string
	Index int
}

// Section is a contiguous run of items sharing a section value.
type Section[M any] struct {
	Key   string
	Items []M
}

// Snapshot is an immutable view of a Store at one point in time.
type Snapshot[M any] struct {
	State State
	// Err is set in the Error state. Items stay visible alongside it.
	Err   error
	Items []M
	// Changes lists the differences from the previous snapshot's items.
	Changes []Change
	// Complete is false while more pages are known to exist on the server.
	Complete bool
	// LoadingMore is true while a next-page request is outstanding.
	LoadingMore bool
	// Seq increases with every published snapshot.
	Seq uint64

	errorPolicy usecase.ErrorPolicy
	sections    []string
}

// ErrorKind classifies Err; it is KindNone outside the Error state.
func (s Snapshot[M]) ErrorKind() syncerr.Kind {
	if s.State != Error {
		return syncerr.KindNone
	}
	return syncerr.KindOf(s.Err)
}

// ShowsFullError reports whether the error should replace the content
// rather than be shown as a banner over stale items.
func (s Snapshot[M]) ShowsFullError() bool {
	if s.State != Error {
		return false
	}
	return len(s.Items) == 0 || s.errorPolicy == usecase.Blocking
}

// Sections groups the items by the scope's section field. Without a section
// field every item is in one section with an empty key.
func (s Snapshot[M]) Sections() []Section[M] {
	var out []Section[M]
	for i, item := range s.Items {
		key := ""
		if i < len(s.sections) {
			key = s.sections[i]
		}
		if n := len(out); n > 0 && out[n-1].Key == key {
			out[n-1].Items = append(out[n-1].Items, item)
			continue
		}
		out = append(out, Section[M]{Key: key, Items: []M{item}})
	}
	return out
}

// diff compares two ordered record lists by identity and revision.
func diff(prev, next []entity.Record) []Change {
	prevIdx := make(map[string]int, len(prev))
	for i, r := range prev {
		prevIdx[r.ID] = i
	}
	nextIDs := make(map[string]struct{}, len(next))
	var changes []Change
	for i, r := range next {
		nextIDs[r.ID] = struct{}{}
		j, ok := prevIdx[r.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Insert, ID: r.ID, Index: i})
		case prev[j].Revision != r.Revision:
			changes = append(changes, Change{Kind: Update, ID: r.ID, Index: i})
		}
	}
	for i, r := range prev {
		if _, ok := nextIDs[r.ID]; !ok {
			changes = append(changes, Change{Kind: Delete, ID: r.ID, Index: i})
		}
	}
	return changes
}
