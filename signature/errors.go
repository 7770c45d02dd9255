package signature

import "errors"

var (
	// ErrSigning is returned when a signature cannot be produced: the key
	// is missing, not RSA or too small, the digest does not match its
	// algorithm, or the private key operation failed.
	ErrSigning = errors.New("signature: signing failed")

	// ErrUnsupportedScheme is returned for scheme ids outside the
	// registry.
	ErrUnsupportedScheme = errors.New("signature: unsupported signature scheme")

	// ErrSignatureInvalid is returned when a signature does not verify.
	ErrSignatureInvalid = errors.New("signature: signature verification failed")

	// ErrInvalidKey is returned when a verification key is nil or smaller
	// than the minimum size.
	ErrInvalidKey = errors.New("signature: invalid key material")
)
