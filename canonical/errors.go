package canonical

import "errors"

var (
	// ErrEncoding is returned when a record contains a value that is not
	// representable in the canonical value model.
	ErrEncoding = errors.New("canonical: value not representable")

	// ErrNotObject is returned by ParseRecord when the input is valid JSON
	// but not a JSON object.
	ErrNotObject = errors.New("canonical: record must be a JSON object")

	// ErrNotCanonical is returned by ParseCanonicalRecord when the input
	// decodes but is not in canonical form.
	ErrNotCanonical = errors.New("canonical: record is not in canonical form")
)
