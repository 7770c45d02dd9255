package keys

import "errors"

// Key lifecycle errors.
var (
	// ErrKeyGeneration is returned when a key pair cannot be generated,
	// either because the parameters are invalid or the entropy source
	// failed.
	ErrKeyGeneration = errors.New("keys: key generation failed")

	// ErrNoKey is returned when a Manager has no key pair loaded yet.
	ErrNoKey = errors.New("keys: no signing key loaded")

	// ErrPrivateKeyExport is returned when a key pair is marshalled. Only
	// serialized public keys may leave the process.
	ErrPrivateKeyExport = errors.New("keys: key pairs cannot be serialized")
)

// Key material errors.
var (
	// ErrMalformedKey is returned when bytes do not decode to a
	// structurally valid RSA key.
	ErrMalformedKey = errors.New("keys: malformed key")
)

// Storage errors.
var (
	// ErrKeyNotFound is returned by a Store that holds no key pair.
	ErrKeyNotFound = errors.New("keys: key not found")
)
