package signature

import (
	"crypto"
	"crypto/rsa"
	"fmt"
	"slices"
)

// Scheme identifies an RSA signature scheme.
type Scheme string

const (
	// PKCS1v15 is RSASSA-PKCS1-v1_5.
	PKCS1v15 Scheme = "rsa-pkcs1v15"

	// PSS is RSASSA-PSS with a salt as long as the digest.
	PSS Scheme = "rsa-pss"

	// Default is the scheme used when none is configured.
	Default = PKCS1v15
)

// Schemes returns the supported scheme ids in sorted order.
func Schemes() []Scheme {
	return []Scheme{PKCS1v15, PSS}
}

// ParseScheme resolves a scheme id.
func ParseScheme(id string) (Scheme, error) {
	s := Scheme(id)
	if !s.Supported() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, id)
	}

	return s, nil
}

// String returns the scheme id.
func (s Scheme) String() string {
	return string(s)
}

// Supported reports whether s is a known scheme.
func (s Scheme) Supported() bool {
	return slices.Contains(Schemes(), s)
}

func (s Scheme) signerOpts(h crypto.Hash) crypto.SignerOpts {
	if s == PSS {
		return &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h}
	}

	return h
}
