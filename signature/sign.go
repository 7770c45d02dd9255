// Package signature produces and checks RSA signatures over digests
// computed by package hashing.
package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
)

// Sign signs the digest d with key using scheme s. The digest is signed as
// is; it is never hashed a second time.
func Sign(d hashing.Digest, key crypto.Signer, s Scheme) ([]byte, error) {
	if !s.Supported() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	if key == nil {
		return nil, fmt.Errorf("%w: signing key must not be nil", ErrSigning)
	}

	pub, ok := key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signing key is %T, not RSA", ErrSigning, key.Public())
	}

	if pub.N.BitLen() < keys.MinKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrSigning, keys.MinKeyBits)
	}

	sig, err := key.Sign(rand.Reader, d.Sum, s.signerOpts(d.Algorithm.CryptoHash()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return sig, nil
}

// Verify checks sig against the digest d and pub under scheme s. Any
// cryptographic mismatch is reported as ErrSignatureInvalid.
func Verify(d hashing.Digest, pub *rsa.PublicKey, sig []byte, s Scheme) error {
	if !s.Supported() {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}

	if err := d.Validate(); err != nil {
		return err
	}

	if pub == nil {
		return fmt.Errorf("%w: rsa public key must not be nil", ErrInvalidKey)
	}

	if pub.N == nil || pub.N.BitLen() < keys.MinKeyBits {
		return fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, keys.MinKeyBits)
	}

	h := d.Algorithm.CryptoHash()

	var err error

	switch s {
	case PSS:
		err = rsa.VerifyPSS(pub, h, d.Sum, sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	default:
		err = rsa.VerifyPKCS1v15(pub, h, d.Sum, sig)
	}

	if err != nil {
		return ErrSignatureInvalid
	}

	return nil
}
