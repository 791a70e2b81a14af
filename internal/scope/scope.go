package scope

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

// SortKey orders by one field. Natural ordering compares strings
// case-insensitively with embedded numbers ordered by value ("Week 2" < "Week 10").
type SortKey struct {
	Field      string
	Descending bool
	Natural    bool
}

// Asc orders ascending by field.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc orders descending by field.
func Desc(field string) SortKey { return SortKey{Field: field, Descending: true} }

// Naturally orders ascending by field with natural string collation.
func Naturally(field string) SortKey { return SortKey{Field: field, Natural: true} }

// Scope names the entities a use case owns: an entity type, a filter and an order.
// Scopes are plain values; equal scopes select the same entities in the same order.
type Scope struct {
	Type       string
	Predicate  Predicate
	Order      []SortKey
	SectionKey string
}

// All selects every entity of a type.
func All(entityType string, order ...SortKey) Scope {
	return Scope{Type: entityType, Predicate: True{}, Order: order}
}

// Where selects entities of a type whose field equals value.
func Where(entityType, field string, value jsonvalue.Value, order ...SortKey) Scope {
	return Scope{Type: entityType, Predicate: Eq(field, value), Order: order}
}

// WithSection returns a copy grouping results by the given field.
func (s Scope) WithSection(field string) Scope {
	s.SectionKey = field
	return s
}

// Matches reports whether a record belongs to the scope.
func (s Scope) Matches(r entity.Record) bool {
	return r.Type == s.Type && Match(s.Predicate, r)
}

// Canonical renders the scope deterministically.
func (s Scope) Canonical() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(s.Type))
	b.WriteByte('|')
	writeCanonical(&b, s.Predicate)
	b.WriteByte('|')
	for i, k := range s.Order {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k.Field))
		if k.Descending {
			b.WriteString(" desc")
		}
		if k.Natural {
			b.WriteString(" natural")
		}
	}
	b.WriteByte('|')
	b.WriteString(strconv.Quote(s.SectionKey))
	return b.String()
}

// Equal reports structural equality of type, predicate, order and section.
func (s Scope) Equal(other Scope) bool {
	return s.Canonical() == other.Canonical()
}

// Fingerprint is a stable hash of the canonical form, used to group live queries.
func (s Scope) Fingerprint() uint64 {
	return xxhash.Sum64String(s.Canonical())
}

// Sorter compares records under a scope's order. It is not safe for concurrent use.
type Sorter struct {
	order    []SortKey
	collator *collate.Collator
}

// NewSorter prepares a comparator for the scope's order.
func (s Scope) NewSorter() *Sorter {
	sorter := &Sorter{order: s.Order}
	for _, k := range s.Order {
		if k.Natural {
			sorter.collator = collate.New(language.Und, collate.IgnoreCase, collate.Numeric)
			break
		}
	}
	return sorter
}

// Compare orders a before b by the sort keys, then by identity so the order is total.
func (s *Sorter) Compare(a, b entity.Record) int {
	for _, k := range s.order {
		av, _ := a.Lookup(k.Field)
		bv, _ := b.Lookup(k.Field)
		c := s.compareValues(k, av, bv)
		if k.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

func (s *Sorter) compareValues(k SortKey, a, b jsonvalue.Value) int {
	if k.Natural && s.collator != nil {
		as, aok := jsonvalue.AsString(a)
		bs, bok := jsonvalue.AsString(b)
		if aok && bok {
			return s.collator.CompareString(as, bs)
		}
	}
	return jsonvalue.Compare(a, b)
}

// Apply filters records by the scope and returns them sorted. The input is not modified.
func (s Scope) Apply(records []entity.Record) []entity.Record {
	out := make([]entity.Record, 0, len(records))
	for _, r := range records {
		if s.Matches(r) {
			out = append(out, r)
		}
	}
	sorter := s.NewSorter()
	slices.SortStableFunc(out, sorter.Compare)
	return out
}

// Section returns the section value of a record, or "" when the scope has none.
func (s Scope) Section(r entity.Record) string {
	if s.SectionKey == "" {
		return ""
	}
	v, ok := r.Lookup(s.SectionKey)
	if !ok || jsonvalue.IsNull(v) {
		return ""
	}
	if str, ok := jsonvalue.AsString(v); ok {
		return str
	}
	return jsonvalue.Canonical(v)
}
