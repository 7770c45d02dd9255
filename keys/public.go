package keys

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// PEM block types.
const (
	pemPKIXPublicKey   = "PUBLIC KEY"
	pemPKCS1PublicKey  = "RSA PUBLIC KEY"
	pemPKCS8PrivateKey = "PRIVATE KEY"
)

// MarshalPublicKey returns the DER SubjectPublicKeyInfo (PKIX) encoding
// of pub.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: rsa public key must not be nil", ErrMalformedKey)
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}

	return der, nil
}

// EncodePublicKeyPEM wraps a DER public key in a "PUBLIC KEY" PEM block.
func EncodePublicKeyPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemPKIXPublicKey, Bytes: der})
}

// ParsePublicKey decodes an RSA public key. It accepts DER in PKIX or
// PKCS#1 form and PEM with "PUBLIC KEY" or "RSA PUBLIC KEY" blocks. Keys
// of another algorithm family or below MinKeyBits are rejected.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty public key", ErrMalformedKey)
	}

	var (
		pub *rsa.PublicKey
		err error
	)

	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		pub, err = parsePublicKeyPEM(data)
	} else {
		pub, err = parsePublicKeyDER(data)
	}

	if err != nil {
		return nil, err
	}

	if pub.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrMalformedKey, MinKeyBits)
	}

	return pub, nil
}

func parsePublicKeyDER(der []byte) (*rsa.PublicKey, error) {
	if k, err := x509.ParsePKIXPublicKey(der); err == nil {
		pub, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: public key is %T, not RSA", ErrMalformedKey, k)
		}

		return pub, nil
	}

	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}

	return pub, nil
}

func parsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	for len(data) > 0 {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}

		switch block.Type {
		case pemPKIXPublicKey, pemPKCS1PublicKey:
			return parsePublicKeyDER(block.Bytes)
		}

		data = rest
	}

	return nil, fmt.Errorf("%w: no public key PEM block", ErrMalformedKey)
}
