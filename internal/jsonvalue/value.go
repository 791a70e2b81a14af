// Package jsonvalue is a closed sum type for arbitrary JSON payloads.
//
// Wire responses that do not map onto a fixed struct (settings blobs, custom
// columns, free-form metadata) are decoded into a Value and converted with the
// explicit As* helpers instead of runtime type inspection of interface{} trees.
package jsonvalue

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Value is a sealed interface; only the types in this package implement it.
type Value interface {
	jsonValue()
}

// Null is the JSON null literal.
type Null struct{}

func (Null) jsonValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a JSON string.
type String string

func (String) jsonValue() {}

// Int is a JSON number without fraction or exponent.
type Int int64

func (Int) jsonValue() {}

// Float is any other JSON number.
type Float float64

func (Float) jsonValue() {}

// Bool is a JSON boolean.
type Bool bool

func (Bool) jsonValue() {}

// Array is a JSON array.
type Array []Value

func (Array) jsonValue() {}

// Object is a JSON object. Iteration order is unspecified; use SortedKeys.
type Object map[string]Value

func (Object) jsonValue() {}

// SortedKeys returns the object keys in byte order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the direct member named key.
func (o Object) Get(key string) (Value, bool) {
	v, ok := o[key]
	if !ok || v == nil {
		return Null{}, ok
	}
	return v, true
}

// Lookup resolves a dotted path ("group.position") through nested objects.
func (o Object) Lookup(path string) (Value, bool) {
	cur := o
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur.Get(part)
		if !ok {
			return Null{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(Object)
		if !ok {
			return Null{}, false
		}
		cur = next
	}
	return Null{}, false
}

// Clone deep-copies the object so callers cannot alias stored state.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = clone(v)
	}
	return out
}

func clone(v Value) Value {
	switch t := v.(type) {
	case Object:
		return t.Clone()
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	case nil:
		return Null{}
	default:
		return t
	}
}

// UnmarshalJSON implements json.Unmarshaler so Object can be embedded in structs.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case Object:
		*o = t
		return nil
	case Null:
		*o = nil
		return nil
	default:
		return fmt.Errorf("jsonvalue: expected object, got %s", TypeName(v))
	}
}

// Decode parses a JSON document into a Value. Numbers keep integer precision.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("jsonvalue: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("jsonvalue: trailing data after document")
	}
	return FromAny(raw)
}

// FromAny converts decoded Go values (encoding/json shapes plus common scalars).
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("jsonvalue: invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case []any:
		arr := make(Array, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, err
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, err
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("jsonvalue: unsupported type %T", v)
	}
}

// ToAny converts back to plain Go values (map[string]any, []any, scalars, nil).
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(t)
	case Int:
		return int64(t)
	case Float:
		return float64(t)
	case Bool:
		return bool(t)
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToAny(e)
		}
		return out
	}
	return nil
}

// TypeName names the variant, for error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int, Float:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// AsString returns the string payload.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsInt returns an integer payload; integral floats are accepted.
func AsInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case Int:
		return int64(t), true
	case Float:
		f := float64(t)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}

// AsFloat returns any numeric payload as float64.
func AsFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	}
	return 0, false
}

// AsBool returns the boolean payload.
func AsBool(v Value) (bool, bool) {
	b, ok := v.(Bool)
	return bool(b), ok
}

// AsObject returns the object payload.
func AsObject(v Value) (Object, bool) {
	o, ok := v.(Object)
	return o, ok
}

// AsArray returns the array payload.
func AsArray(v Value) (Array, bool) {
	a, ok := v.(Array)
	return a, ok
}

// IsNull reports whether v is absent or the null literal.
func IsNull(v Value) bool {
	switch v.(type) {
	case nil, Null:
		return true
	}
	return false
}

func rank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return 2
	case String:
		return 3
	case Array:
		return 4
	case Object:
		return 5
	}
	return 6
}

// Compare orders values: null < bool < number < string < array < object.
// Ints and floats compare numerically.
func Compare(a, b Value) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch at := a.(type) {
	case Bool:
		bt := b.(Bool)
		switch {
		case at == bt:
			return 0
		case !bool(at):
			return -1
		default:
			return 1
		}
	case Int:
		if bi, ok := b.(Int); ok {
			return cmp.Compare(at, bi)
		}
		bf, _ := AsFloat(b)
		return cmp.Compare(float64(at), bf)
	case Float:
		bf, _ := AsFloat(b)
		return cmp.Compare(float64(at), bf)
	case String:
		return strings.Compare(string(at), string(b.(String)))
	case Array:
		bt := b.(Array)
		for i := 0; i < len(at) && i < len(bt); i++ {
			if c := Compare(at[i], bt[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(at), len(bt))
	case Object:
		bt := b.(Object)
		ak, bk := at.SortedKeys(), bt.SortedKeys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(at[ak[i]], bt[bk[i]]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(ak), len(bk))
	}
	return 0
}

// Equal reports structural equality under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Canonical renders a deterministic JSON text (object keys sorted).
func Canonical(v Value) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
