package scope

import (
	"strconv"
	"strings"

	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

// Getter is anything a predicate can read fields from.
type Getter interface {
	Lookup(field string) (jsonvalue.Value, bool)
}

// Predicate is a sealed boolean expression over entity fields.
//
// Implementations: True, Equals, In, Contains, IsNull, Cmp, And, Or, Not.
// A nil Predicate behaves like True.
type Predicate interface {
	predicateNode()
}

// True matches every entity.
type True struct{}

func (True) predicateNode() {}

// Equals matches when the field equals Value. A missing field equals Null.
type Equals struct {
	Field string
	Value jsonvalue.Value
}

func (Equals) predicateNode() {}

// In matches when the field equals any of Values.
type In struct {
	Field  string
	Values []jsonvalue.Value
}

func (In) predicateNode() {}

// Contains matches a substring of a string field, or a string element of an array field.
type Contains struct {
	Field      string
	Substring  string
	IgnoreCase bool
}

func (Contains) predicateNode() {}

// IsNull matches a missing or null field.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// Op is a comparison operator for Cmp.
type Op string

const (
	Lt  Op = "lt"
	Lte Op = "lte"
	Gt  Op = "gt"
	Gte Op = "gte"
)

// Cmp compares a field against Value. Null fields never match.
type Cmp struct {
	Field string
	Op    Op
	Value jsonvalue.Value
}

func (Cmp) predicateNode() {}

// And matches when all predicates match (empty = true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or matches when any predicate matches (empty = false).
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Eq is shorthand for Equals.
func Eq(field string, v jsonvalue.Value) Predicate {
	return Equals{Field: field, Value: v}
}

// EqString is shorthand for an Equals on a string value.
func EqString(field, v string) Predicate {
	return Equals{Field: field, Value: jsonvalue.String(v)}
}

// AllOf builds an And, dropping nil and True members.
func AllOf(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		switch p.(type) {
		case nil, True:
			continue
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return True{}
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}

// Match evaluates p against g.
func Match(p Predicate, g Getter) bool {
	switch t := p.(type) {
	case nil, True:
		return true
	case Equals:
		v, _ := g.Lookup(t.Field)
		return jsonvalue.Equal(v, t.Value)
	case In:
		v, _ := g.Lookup(t.Field)
		for _, candidate := range t.Values {
			if jsonvalue.Equal(v, candidate) {
				return true
			}
		}
		return false
	case Contains:
		v, ok := g.Lookup(t.Field)
		if !ok {
			return false
		}
		return contains(v, t.Substring, t.IgnoreCase)
	case IsNull:
		v, ok := g.Lookup(t.Field)
		return !ok || jsonvalue.IsNull(v)
	case Cmp:
		v, ok := g.Lookup(t.Field)
		if !ok || jsonvalue.IsNull(v) || jsonvalue.IsNull(t.Value) {
			return false
		}
		if jsonvalue.TypeName(v) != jsonvalue.TypeName(t.Value) {
			return false
		}
		c := jsonvalue.Compare(v, t.Value)
		switch t.Op {
		case Lt:
			return c < 0
		case Lte:
			return c <= 0
		case Gt:
			return c > 0
		case Gte:
			return c >= 0
		}
		return false
	case And:
		for _, sub := range t.Predicates {
			if !Match(sub, g) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range t.Predicates {
			if Match(sub, g) {
				return true
			}
		}
		return false
	case Not:
		return !Match(t.Predicate, g)
	}
	return false
}

func contains(v jsonvalue.Value, sub string, ignoreCase bool) bool {
	norm := func(s string) string {
		if ignoreCase {
			return strings.ToLower(s)
		}
		return s
	}
	switch t := v.(type) {
	case jsonvalue.String:
		return strings.Contains(norm(string(t)), norm(sub))
	case jsonvalue.Array:
		for _, e := range t {
			if s, ok := jsonvalue.AsString(e); ok && norm(s) == norm(sub) {
				return true
			}
		}
	}
	return false
}

// writeCanonical renders a predicate deterministically; structurally equal
// predicates render identically.
func writeCanonical(b *strings.Builder, p Predicate) {
	switch t := p.(type) {
	case nil, True:
		b.WriteString("true")
	case Equals:
		b.WriteString("eq(")
		b.WriteString(strconv.Quote(t.Field))
		b.WriteByte(',')
		b.WriteString(jsonvalue.Canonical(t.Value))
		b.WriteByte(')')
	case In:
		b.WriteString("in(")
		b.WriteString(strconv.Quote(t.Field))
		b.WriteString(",[")
		for i, v := range t.Values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(jsonvalue.Canonical(v))
		}
		b.WriteString("])")
	case Contains:
		b.WriteString("contains(")
		b.WriteString(strconv.Quote(t.Field))
		b.WriteByte(',')
		b.WriteString(strconv.Quote(t.Substring))
		b.WriteByte(',')
		b.WriteString(strconv.FormatBool(t.IgnoreCase))
		b.WriteByte(')')
	case IsNull:
		b.WriteString("null(")
		b.WriteString(strconv.Quote(t.Field))
		b.WriteByte(')')
	case Cmp:
		b.WriteString(string(t.Op))
		b.WriteByte('(')
		b.WriteString(strconv.Quote(t.Field))
		b.WriteByte(',')
		b.WriteString(jsonvalue.Canonical(t.Value))
		b.WriteByte(')')
	case And:
		writeList(b, "and", t.Predicates)
	case Or:
		writeList(b, "or", t.Predicates)
	case Not:
		b.WriteString("not(")
		writeCanonical(b, t.Predicate)
		b.WriteByte(')')
	}
}

func writeList(b *strings.Builder, name string, preds []Predicate) {
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range preds {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonical(b, p)
	}
	b.WriteByte(')')
}
