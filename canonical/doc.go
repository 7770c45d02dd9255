// Package canonical converts structured records into a unique, deterministic
// byte sequence suitable for hashing and signing.
//
// The canonical form is the JSON Canonicalization Scheme (JCS, RFC 8785):
//
//   - object keys are sorted at every nesting level (UTF-16 code unit order)
//   - no insignificant whitespace is emitted
//   - numbers use the ECMAScript shortest round-trip representation
//   - strings use a single escaping rule
//   - array element order is preserved
//
// Two records canonicalize to the same bytes if and only if they are
// logically equal, independent of key insertion order or the whitespace and
// number formatting of the JSON they were decoded from.
//
// # Values
//
// Records are converted into a tagged Value union (null, bool, number,
// string, array, object) before rendering. The conversion is exhaustive:
// anything that is not representable in that model, such as functions,
// channels, NaN, cyclic maps or values whose MarshalJSON fails, is rejected
// with ErrEncoding.
//
//	b, err := canonical.Canonicalize(canonical.Record{
//	    "message": "Hello, World!",
//	    "id":      123,
//	})
//	// b == []byte(`{"id":123,"message":"Hello, World!"}`)
//
// # Decoding
//
// ParseRecord decodes a JSON object while keeping numbers as json.Number, so
// that canonicalization sees the number exactly as it was transmitted.
package canonical
