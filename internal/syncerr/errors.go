// Package syncerr classifies sync engine failures into the kinds callers act on.
package syncerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the error category surfaced to observers.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindDecode
	KindUnauthorized
	KindOffline
	KindReconciliation
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindUnauthorized:
		return "unauthorized"
	case KindOffline:
		return "offline"
	case KindReconciliation:
		return "reconciliation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for c := KindNone; c <= KindReconciliation; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

var (
	// ErrOffline is returned when the connectivity signal reports no network.
	ErrOffline = errors.New("network unreachable")
	// ErrUnauthorized is returned when the server rejects the credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Error carries a Kind plus the operation and cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindDecode}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New wraps err with a kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind && existing.Op == op {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Network(op string, err error) error        { return New(KindNetwork, op, err) }
func Decode(op string, err error) error         { return New(KindDecode, op, err) }
func Reconciliation(op string, err error) error { return New(KindReconciliation, op, err) }

func Unauthorized(op string, err error) error {
	if err == nil {
		err = ErrUnauthorized
	}
	return New(KindUnauthorized, op, err)
}

func Offline(op string) error {
	return New(KindOffline, op, ErrOffline)
}

// KindOf classifies any error. Unknown failures count as network errors,
// since they are the recoverable default.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrOffline):
		return KindOffline
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	return KindNetwork
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
