package entity

import (
	"fmt"

	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

// Record is the engine's view of any stored entity: a type, a natural
// identifier, and the field values scopes filter and sort on.
type Record struct {
	Type   string           `json:"type" validate:"required"`
	ID     string           `json:"id" validate:"required"`
	Fields jsonvalue.Object `json:"fields"`

	// Revision is the local store version at which this record was last written.
	Revision uint64 `json:"-"`
}

// Key identifies a record across types.
type Key struct {
	Type string
	ID   string
}

// Key returns the identity of the record.
func (r Record) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// Lookup resolves a field by dotted path. "id" always resolves to the identity.
func (r Record) Lookup(field string) (jsonvalue.Value, bool) {
	if field == "id" {
		if v, ok := r.Fields.Get("id"); ok {
			return v, true
		}
		return jsonvalue.String(r.ID), true
	}
	return r.Fields.Lookup(field)
}

// Clone deep-copies the record fields.
func (r Record) Clone() Record {
	r.Fields = r.Fields.Clone()
	return r
}

// Codec converts between a typed model and its Record representation.
type Codec[M any] interface {
	EntityType() string
	ToRecord(m M) (Record, error)
	FromRecord(r Record) (M, error)
}

// FuncCodec adapts a pair of functions to Codec.
type FuncCodec[M any] struct {
	Type string
	To   func(M) (Record, error)
	From func(Record) (M, error)
}

func (c FuncCodec[M]) EntityType() string { return c.Type }

func (c FuncCodec[M]) ToRecord(m M) (Record, error) {
	rec, err := c.To(m)
	if err != nil {
		return Record{}, err
	}
	if rec.Type == "" {
		rec.Type = c.Type
	}
	if rec.Type != c.Type {
		return Record{}, fmt.Errorf("codec %s produced record of type %s", c.Type, rec.Type)
	}
	return rec, nil
}

func (c FuncCodec[M]) FromRecord(r Record) (M, error) {
	if r.Type != c.Type {
		var zero M
		return zero, fmt.Errorf("codec %s cannot decode record of type %s", c.Type, r.Type)
	}
	return c.From(r)
}

// RecordCodec is the identity codec, for callers that work on raw records.
type RecordCodec struct {
	Type string
}

func (c RecordCodec) EntityType() string                  { return c.Type }
func (c RecordCodec) ToRecord(r Record) (Record, error)   { return r, nil }
func (c RecordCodec) FromRecord(r Record) (Record, error) { return r, nil }

// DecodeAll converts records with a codec, stopping at the first failure.
func DecodeAll[M any](codec Codec[M], records []Record) ([]M, error) {
	out := make([]M, 0, len(records))
	for _, r := range records {
		m, err := codec.FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", r.Type, r.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}
