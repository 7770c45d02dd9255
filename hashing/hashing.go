// Package hashing implements the digest engine: a small closed registry of
// hash algorithms identified by the strings that travel in signed
// envelopes.
package hashing

import (
	"crypto"
	_ "crypto/sha256" // registers crypto.SHA256 for go-digest
	_ "crypto/sha512" // registers crypto.SHA512 for go-digest
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"slices"

	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/sha3"
)

// Errors.
var (
	// ErrUnsupportedAlgorithm is returned for hash algorithm ids outside
	// the registry.
	ErrUnsupportedAlgorithm = errors.New("hashing: unsupported hash algorithm")

	// ErrDigestSize is returned when a digest value does not have the
	// length of its algorithm.
	ErrDigestSize = errors.New("hashing: digest length does not match algorithm")
)

// Algorithm identifies a hash algorithm.
type Algorithm string

const (
	// SHA256 is SHA-256. It is the default algorithm.
	SHA256 Algorithm = "sha256"

	// SHA512 is SHA-512.
	SHA512 Algorithm = "sha512"

	// SHA3_256 is SHA3-256.
	SHA3_256 Algorithm = "sha3-256"
)

// Default is the algorithm used when none is configured.
const Default = SHA256

type entry struct {
	hash crypto.Hash
	new  func() hash.Hash
}

var registry = map[Algorithm]entry{
	SHA256:   {hash: crypto.SHA256, new: digest.SHA256.Hash},
	SHA512:   {hash: crypto.SHA512, new: digest.SHA512.Hash},
	SHA3_256: {hash: crypto.SHA3_256, new: sha3.New256},
}

// Algorithms returns the registered algorithm ids in sorted order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(registry))
	for alg := range registry {
		out = append(out, alg)
	}

	slices.Sort(out)

	return out
}

// Parse returns the Algorithm for id.
func Parse(id string) (Algorithm, error) {
	alg := Algorithm(id)
	if _, ok := registry[alg]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, id)
	}

	return alg, nil
}

// String returns the algorithm id.
func (a Algorithm) String() string {
	return string(a)
}

// Supported reports whether a is in the registry.
func (a Algorithm) Supported() bool {
	_, ok := registry[a]
	return ok
}

// CryptoHash returns the crypto.Hash for a, or zero for unsupported ids.
func (a Algorithm) CryptoHash() crypto.Hash {
	return registry[a].hash
}

// Size returns the digest length in bytes, or zero for unsupported ids.
func (a Algorithm) Size() int {
	e, ok := registry[a]
	if !ok {
		return 0
	}

	return e.hash.Size()
}

// Digest is the output of a hash algorithm over canonical bytes.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
}

// Compute hashes data with alg.
func Compute(data []byte, alg Algorithm) (Digest, error) {
	e, ok := registry[alg]
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	h := e.new()
	h.Write(data)

	return Digest{Algorithm: alg, Sum: h.Sum(nil)}, nil
}

// Validate checks that d names a supported algorithm and carries a value
// of the matching length.
func (d Digest) Validate() error {
	size := d.Algorithm.Size()
	if size == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, d.Algorithm)
	}

	if len(d.Sum) != size {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrDigestSize, d.Algorithm, size, len(d.Sum))
	}

	return nil
}

// Equal reports whether d and other hold the same algorithm and value.
// The value comparison is constant time.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && subtle.ConstantTimeCompare(d.Sum, other.Sum) == 1
}

// String renders d as "<algorithm>:<hex>".
func (d Digest) String() string {
	switch d.Algorithm {
	case SHA256:
		return digest.NewDigestFromBytes(digest.SHA256, d.Sum).String()
	case SHA512:
		return digest.NewDigestFromBytes(digest.SHA512, d.Sum).String()
	default:
		return string(d.Algorithm) + ":" + hex.EncodeToString(d.Sum)
	}
}
