package canonical

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"unicode/utf8"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a JSON value: null, bool, number, string, array or object.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the JSON null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value. Non-finite numbers are accepted here and
// rejected when the value is canonicalized.
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding elems in order.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, arr: slices.Clone(elems)}
}

// Object returns an object value holding a copy of fields.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	maps.Copy(obj, fields)

	return Value{kind: KindObject, obj: obj}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Len returns the number of elements of an array or fields of an object,
// and zero for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Field returns the named field of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}

	f, ok := v.obj[name]

	return f, ok
}

// Index returns the i-th element of an array value.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}

	return v.arr[i], true
}

// Interface returns v as the plain Go tree used by encoding/json:
// nil, bool, float64, string, []any and map[string]any.
func (v Value) Interface() any {
	out, _ := v.native("")
	return out
}

// native converts v into the encoding/json tree, validating that every
// leaf is representable in canonical form.
func (v Value) native(path string) (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil, fmt.Errorf("%w: %s: non-finite number", ErrEncoding, pathOrRoot(path))
		}

		return v.n, nil
	case KindString:
		if !utf8.ValidString(v.s) {
			return nil, fmt.Errorf("%w: %s: invalid UTF-8 string", ErrEncoding, pathOrRoot(path))
		}

		return v.s, nil
	case KindArray:
		out := make([]any, len(v.arr))
		for i, elem := range v.arr {
			n, err := elem.native(fmt.Sprintf("%s/%d", path, i))
			if err != nil {
				return nil, err
			}

			out[i] = n
		}

		return out, nil
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for key, field := range v.obj {
			if !utf8.ValidString(key) {
				return nil, fmt.Errorf("%w: %s: invalid UTF-8 object key", ErrEncoding, pathOrRoot(path))
			}

			n, err := field.native(path + "/" + escapePointer(key))
			if err != nil {
				return nil, err
			}

			out[key] = n
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %s", ErrEncoding, pathOrRoot(path), v.kind)
	}
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}

	return path
}

// escapePointer escapes a key as a JSON pointer reference token (RFC 6901).
func escapePointer(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, key[i])
		}
	}

	return string(out)
}
