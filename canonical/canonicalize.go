package canonical

import (
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Canonicalize returns the canonical bytes of r. A nil record
// canonicalizes as the empty object.
func Canonicalize(r Record) ([]byte, error) {
	v, err := FromAny(r)
	if err != nil {
		return nil, err
	}

	return CanonicalizeValue(v)
}

// CanonicalizeValue returns the canonical bytes of v.
func CanonicalizeValue(v Value) ([]byte, error) {
	tree, err := v.native("")
	if err != nil {
		return nil, err
	}

	plain, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	out, err := jsoncanonicalizer.Transform(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	return out, nil
}

// MarshalJSON renders v in canonical form.
func (v Value) MarshalJSON() ([]byte, error) {
	return CanonicalizeValue(v)
}

// Equal reports whether a and b are logically equal, which is the case
// exactly when their canonical forms are identical.
func Equal(a, b Value) bool {
	ab, err := CanonicalizeValue(a)
	if err != nil {
		return false
	}

	bb, err := CanonicalizeValue(b)
	if err != nil {
		return false
	}

	return string(ab) == string(bb)
}
