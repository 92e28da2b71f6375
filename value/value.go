// Package value defines the format-agnostic configuration value model.
//
// Every configuration backend parses into and serializes from this closed
// set of kinds, so layering and diffing never depend on a concrete file
// format. The zero Value is Null.
package value

import (
	"fmt"
	"math"
	"time"
)

// Kind identifies the type of a Value.
type Kind uint8

const (
	// KindNull is the absence of a value.
	KindNull Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindInteger is a 64-bit signed integer.
	KindInteger
	// KindFloat is a 64-bit float.
	KindFloat
	// KindString is a UTF-8 string.
	KindString
	// KindTimestamp is an absolute point in time.
	KindTimestamp
	// KindArray is an ordered list of values.
	KindArray
	// KindTable is a string-keyed map of values.
	KindTable
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the configuration value kinds.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	arr  []Value
	tab  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Timestamp returns a timestamp value.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }

// Array returns an array value holding the given elements.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

// Table returns a table value wrapping the given map.
// A nil map yields an empty table.
func Table(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{kind: KindTable, tab: m}
}

// EmptyTable returns a table with no keys.
func EmptyTable() Value { return Table(nil) }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsTable reports whether the value is a table.
func (v Value) IsTable() bool { return v.kind == KindTable }

// IsArray reports whether the value is an array.
func (v Value) IsArray() bool { return v.kind == KindArray }

// AsBool returns the boolean content. ok is false for other kinds.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsInteger returns the integer content. ok is false for other kinds.
func (v Value) AsInteger() (i int64, ok bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the float content. Integers convert losslessly.
func (v Value) AsFloat() (f float64, ok bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string content. ok is false for other kinds.
func (v Value) AsString() (s string, ok bool) { return v.s, v.kind == KindString }

// AsTimestamp returns the timestamp content. ok is false for other kinds.
func (v Value) AsTimestamp() (t time.Time, ok bool) { return v.t, v.kind == KindTimestamp }

// Elems returns the array elements, or nil for other kinds.
// The returned slice is the value's own storage; callers must not mutate it.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Fields returns the table fields, or nil for other kinds.
// The returned map is the value's own storage; callers must not mutate it.
func (v Value) Fields() map[string]Value {
	if v.kind != KindTable {
		return nil
	}
	return v.tab
}

// Field returns the named table field.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindTable {
		return Value{}, false
	}
	f, ok := v.tab[key]
	return f, ok
}

// Len returns the number of elements or fields, and 0 for scalar kinds.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindTable:
		return len(v.tab)
	default:
		return 0
	}
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindTable:
		tab := make(map[string]Value, len(v.tab))
		for k, f := range v.tab {
			tab[k] = f.Clone()
		}
		return Value{kind: KindTable, tab: tab}
	default:
		return v
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindTable:
		if len(v.tab) != len(o.tab) {
			return false
		}
		for k, f := range v.tab {
			of, ok := o.tab[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a short debug form of the value.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindTimestamp:
		return v.t.Format(time.RFC3339)
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.arr))
	case KindTable:
		return fmt.Sprintf("table[%d]", len(v.tab))
	default:
		return "invalid"
	}
}

// FromAny converts a decoded document tree (maps, slices, and Go scalars as
// produced by the format libraries) into a Value. Unsupported types are an
// error rather than a silent coercion.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Integer(int64(x)), nil
	case int8:
		return Integer(int64(x)), nil
	case int16:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint:
		return Integer(int64(x)), nil
	case uint8:
		return Integer(int64(x)), nil
	case uint16:
		return Integer(int64(x)), nil
	case uint32:
		return Integer(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d overflows int64", x)
		}
		return Integer(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return Timestamp(x), nil
	case map[string]any:
		tab := make(map[string]Value, len(x))
		for k, raw := range x {
			f, err := FromAny(raw)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			tab[k] = f
		}
		return Table(tab), nil
	case []any:
		arr := make([]Value, len(x))
		for i, raw := range x {
			e, err := FromAny(raw)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = e
		}
		return Array(arr...), nil
	case []map[string]any:
		arr := make([]Value, len(x))
		for i, raw := range x {
			e, err := FromAny(raw)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = e
		}
		return Array(arr...), nil
	case []string:
		arr := make([]Value, len(x))
		for i, s := range x {
			arr[i] = String(s)
		}
		return Array(arr...), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// ToAny converts a Value back into the map/slice/scalar form the format
// libraries serialize. Null becomes nil.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTimestamp:
		return v.t
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindTable:
		out := make(map[string]any, len(v.tab))
		for k, f := range v.tab {
			out[k] = f.ToAny()
		}
		return out
	default:
		return nil
	}
}
