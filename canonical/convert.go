package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// maxDepth bounds the nesting of arrays and objects.
const maxDepth = 1000

// maxSafeInteger is the largest integer n such that every integer in
// [-n, n] is exactly representable as an IEEE 754 double (RFC 7493).
const maxSafeInteger = 1<<53 - 1

// FromAny converts a Go value into a Value.
//
// Supported inputs are nil, bool, string, every integer and float kind,
// json.Number, Record, Value, maps with string keys, slices and arrays,
// pointers to any of these, and values that encoding/json can marshal
// (structs and json.Marshaler implementations). Everything else, along
// with cyclic structures, non-finite numbers and integers beyond 2^53
// whose canonical rendering would differ from their digits, is rejected
// with ErrEncoding.
func FromAny(v any) (Value, error) {
	c := &converter{seen: make(map[visit]struct{})}
	return c.convert(v, "", 0)
}

type visit struct {
	ptr uintptr
	len int
}

type converter struct {
	seen map[visit]struct{}
}

func (c *converter) convert(v any, path string, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: %s: nesting deeper than %d", ErrEncoding, pathOrRoot(path), maxDepth)
	}

	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return numberFromText(string(x), path)
	case float64:
		return floatValue(x, path)
	case float32:
		return floatValue(float64(x), path)
	case int:
		return intValue(int64(x), path)
	case int8:
		return intValue(int64(x), path)
	case int16:
		return intValue(int64(x), path)
	case int32:
		return intValue(int64(x), path)
	case int64:
		return intValue(x, path)
	case uint:
		return uintValue(uint64(x), path)
	case uint8:
		return uintValue(uint64(x), path)
	case uint16:
		return uintValue(uint64(x), path)
	case uint32:
		return uintValue(uint64(x), path)
	case uint64:
		return uintValue(x, path)
	case Record:
		return c.reflectMap(reflect.ValueOf(map[string]any(x)), path, depth)
	case map[string]any:
		return c.reflectMap(reflect.ValueOf(x), path, depth)
	case []any:
		return c.reflectList(reflect.ValueOf(x), path, depth)
	case json.Marshaler:
		return c.marshaled(v, path, depth)
	}

	return c.reflectValue(reflect.ValueOf(v), path, depth)
}

func (c *converter) reflectValue(rv reflect.Value, path string, depth int) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}

		key := visit{ptr: rv.Pointer()}
		if _, ok := c.seen[key]; ok {
			return Value{}, fmt.Errorf("%w: %s: cyclic structure", ErrEncoding, pathOrRoot(path))
		}

		c.seen[key] = struct{}{}
		defer delete(c.seen, key)

		return c.convert(rv.Elem().Interface(), path, depth+1)
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}

		return c.convert(rv.Elem().Interface(), path, depth)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue(rv.Int(), path)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint(), path)
	case reflect.Float32, reflect.Float64:
		return floatValue(rv.Float(), path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: %s: map key type %s is not a string", ErrEncoding, pathOrRoot(path), rv.Type().Key())
		}

		return c.reflectMap(rv, path, depth)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return c.marshaled(rv.Interface(), path, depth)
		}

		return c.reflectList(rv, path, depth)
	case reflect.Array:
		return c.reflectList(rv, path, depth)
	case reflect.Struct:
		return c.marshaled(rv.Interface(), path, depth)
	default:
		return Value{}, fmt.Errorf("%w: %s: unsupported type %s", ErrEncoding, pathOrRoot(path), rv.Type())
	}
}

func (c *converter) reflectMap(rv reflect.Value, path string, depth int) (Value, error) {
	if rv.IsNil() {
		return Object(nil), nil
	}

	key := visit{ptr: rv.Pointer()}
	if _, ok := c.seen[key]; ok {
		return Value{}, fmt.Errorf("%w: %s: cyclic structure", ErrEncoding, pathOrRoot(path))
	}

	c.seen[key] = struct{}{}
	defer delete(c.seen, key)

	obj := make(map[string]Value, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		name := iter.Key().String()

		field, err := c.convert(iter.Value().Interface(), path+"/"+escapePointer(name), depth+1)
		if err != nil {
			return Value{}, err
		}

		obj[name] = field
	}

	return Value{kind: KindObject, obj: obj}, nil
}

func (c *converter) reflectList(rv reflect.Value, path string, depth int) (Value, error) {
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return Null(), nil
		}

		if rv.Len() > 0 {
			key := visit{ptr: rv.Pointer(), len: rv.Len()}
			if _, ok := c.seen[key]; ok {
				return Value{}, fmt.Errorf("%w: %s: cyclic structure", ErrEncoding, pathOrRoot(path))
			}

			c.seen[key] = struct{}{}
			defer delete(c.seen, key)
		}
	}

	arr := make([]Value, rv.Len())
	for i := range arr {
		elem, err := c.convert(rv.Index(i).Interface(), fmt.Sprintf("%s/%d", path, i), depth+1)
		if err != nil {
			return Value{}, err
		}

		arr[i] = elem
	}

	return Value{kind: KindArray, arr: arr}, nil
}

// marshaled converts v through its encoding/json representation.
func (c *converter) marshaled(v any, path string, depth int) (Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s: %w", ErrEncoding, pathOrRoot(path), err)
	}

	tree, err := decodeJSON(b)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s: %w", ErrEncoding, pathOrRoot(path), err)
	}

	return c.convert(tree, path, depth+1)
}

func floatValue(f float64, path string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %s: non-finite number", ErrEncoding, pathOrRoot(path))
	}

	return Number(f), nil
}

func intValue(n int64, path string) (Value, error) {
	if n > maxSafeInteger || n < -maxSafeInteger {
		return wideInteger(strconv.FormatInt(n, 10), float64(n), path)
	}

	return Number(float64(n)), nil
}

func uintValue(n uint64, path string) (Value, error) {
	if n > maxSafeInteger {
		return wideInteger(strconv.FormatUint(n, 10), float64(n), path)
	}

	return Number(float64(n)), nil
}

// wideInteger accepts an integer outside the safe range only when text is
// already the canonical rendering of f. Anything else would be rounded, or
// would come back from its canonical form as a different literal.
func wideInteger(text string, f float64, path string) (Value, error) {
	rendered, err := jsoncanonicalizer.NumberToJSON(f)
	if err != nil || rendered != text {
		return Value{}, fmt.Errorf("%w: %s: integer %s exceeds 2^53 and is not exactly representable", ErrEncoding, pathOrRoot(path), text)
	}

	return Number(f), nil
}

// numberFromText converts a JSON number literal. Integer literals must be
// exactly representable as a double.
func numberFromText(s string, path string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return intValue(n, path)
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Value{}, fmt.Errorf("%w: %s: invalid number %q", ErrEncoding, pathOrRoot(path), s)
		}

		return wideInteger(s, f, path)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s: invalid number %q", ErrEncoding, pathOrRoot(path), s)
	}

	return floatValue(f, path)
}

// decodeJSON decodes a single JSON value keeping numbers as json.Number.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}

	return out, nil
}
