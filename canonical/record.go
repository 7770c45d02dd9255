package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is a JSON object with string keys. Key order carries no meaning.
type Record map[string]any

// ParseRecord decodes a JSON object. Numbers are kept as json.Number so
// that their value reaches the canonicalizer unchanged.
func ParseRecord(data []byte) (Record, error) {
	tree, err := decodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotObject, err)
	}

	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	return Record(obj), nil
}

// ParseCanonicalRecord decodes data like ParseRecord and requires data to
// be the canonical rendering of the decoded record, byte for byte. The one
// tolerated variant is the HTML-safe escaping that encoding/json applies
// to marshaled output (\u003c, \u003e, \u0026, \u2028, \u2029). Any other
// difference in whitespace, key order, number text or string escapes fails
// with ErrNotCanonical.
func ParseCanonicalRecord(data []byte) (Record, error) {
	r, err := ParseRecord(data)
	if err != nil {
		return nil, err
	}

	canon, err := Canonicalize(r)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(data, canon) {
		return r, nil
	}

	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, canon)

	if bytes.Equal(data, escaped.Bytes()) {
		return r, nil
	}

	return nil, ErrNotCanonical
}

// UnmarshalJSON decodes a JSON object into r, keeping numbers as
// json.Number. A JSON null leaves r unchanged.
func (r *Record) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	parsed, err := ParseRecord(data)
	if err != nil {
		return err
	}

	*r = parsed

	return nil
}

// MarshalJSON renders r in canonical form.
func (r Record) MarshalJSON() ([]byte, error) {
	return Canonicalize(r)
}

// Clone returns a deep copy of r holding only canonical JSON types.
func (r Record) Clone() (Record, error) {
	b, err := Canonicalize(r)
	if err != nil {
		return nil, err
	}

	return ParseRecord(b)
}
