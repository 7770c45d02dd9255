package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// RSA key size bounds in bits.
const (
	MinKeyBits     = 2048
	MaxKeyBits     = 8192
	DefaultKeyBits = 2048
)

// KeyPair is an RSA signing identity. The private key never leaves the
// value: KeyPair refuses to be marshalled and redacts itself when printed
// or logged. It implements crypto.Signer.
type KeyPair struct {
	id        string
	private   *rsa.PrivateKey
	publicDER []byte
}

// GenerateKeyPair generates a new RSA key pair with public exponent 65537.
// bits must be a multiple of 8 within [MinKeyBits, MaxKeyBits].
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if err := checkBits(bits); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: key id: %w", ErrKeyGeneration, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}

	return NewKeyPair(id.String(), key)
}

func checkBits(bits int) error {
	if bits < MinKeyBits || bits > MaxKeyBits {
		return fmt.Errorf("%w: key size %d outside [%d, %d]", ErrKeyGeneration, bits, MinKeyBits, MaxKeyBits)
	}

	if bits%8 != 0 {
		return fmt.Errorf("%w: key size %d is not a multiple of 8", ErrKeyGeneration, bits)
	}

	return nil
}

// NewKeyPair wraps an existing RSA private key. An empty id is replaced
// with a fresh UUIDv7.
func NewKeyPair(id string, key *rsa.PrivateKey) (*KeyPair, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: rsa private key must not be nil", ErrMalformedKey)
	}

	if key.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrMalformedKey, MinKeyBits)
	}

	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}

	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("%w: key id: %w", ErrKeyGeneration, err)
		}

		id = u.String()
	}

	der, err := MarshalPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &KeyPair{id: id, private: key, publicDER: der}, nil
}

// ID returns the key identifier.
func (kp *KeyPair) ID() string { return kp.id }

// Bits returns the modulus size in bits.
func (kp *KeyPair) Bits() int { return kp.private.N.BitLen() }

// PublicKey returns the RSA public key.
func (kp *KeyPair) PublicKey() *rsa.PublicKey { return &kp.private.PublicKey }

// Public implements crypto.Signer.
func (kp *KeyPair) Public() crypto.PublicKey { return kp.PublicKey() }

// Sign implements crypto.Signer. It signs a precomputed digest.
func (kp *KeyPair) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return kp.private.Sign(random, digest, opts)
}

// MarshalJSON always fails with ErrPrivateKeyExport.
func (kp *KeyPair) MarshalJSON() ([]byte, error) {
	return nil, ErrPrivateKeyExport
}

// MarshalText always fails with ErrPrivateKeyExport.
func (kp *KeyPair) MarshalText() ([]byte, error) {
	return nil, ErrPrivateKeyExport
}

func (kp *KeyPair) String() string {
	return fmt.Sprintf("KeyPair(%s, rsa-%d)", kp.id, kp.Bits())
}

func (kp *KeyPair) GoString() string {
	return kp.String()
}

// LogValue implements slog.LogValuer.
func (kp *KeyPair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", kp.id),
		slog.Int("bits", kp.Bits()),
	)
}

// ExportPublicKey returns the DER (PKIX) encoding of the public half of
// kp, the only form of key material that travels with signed payloads.
func ExportPublicKey(kp *KeyPair) ([]byte, error) {
	if kp == nil {
		return nil, ErrNoKey
	}

	return append([]byte(nil), kp.publicDER...), nil
}
