package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
)

var (
	keyOnce  sync.Once
	keyA     *keys.KeyPair
	keyB     *keys.KeyPair
	keyError error
)

func testKeys(t *testing.T) (*keys.KeyPair, *keys.KeyPair) {
	t.Helper()

	keyOnce.Do(func() {
		keyA, keyError = keys.GenerateKeyPair(2048)
		if keyError != nil {
			return
		}

		keyB, keyError = keys.GenerateKeyPair(2048)
	})

	require.NoError(t, keyError)

	return keyA, keyB
}

func TestScheme(t *testing.T) {
	assert.Equal(t, []Scheme{PKCS1v15, PSS}, Schemes())
	assert.Equal(t, PKCS1v15, Default)
	assert.Equal(t, "rsa-pss", PSS.String())

	for _, s := range Schemes() {
		got, err := ParseScheme(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	for _, id := range []string{"", "rsa-v1_5-sha256", "ed25519", "RSA-PSS"} {
		_, err := ParseScheme(id)
		assert.ErrorIs(t, err, ErrUnsupportedScheme, id)
	}
}

func TestSignVerify(t *testing.T) {
	a, b := testKeys(t)

	for _, scheme := range Schemes() {
		for _, alg := range hashing.Algorithms() {
			t.Run(string(scheme)+"/"+string(alg), func(t *testing.T) {
				d, err := hashing.Compute([]byte(`{"id":123,"message":"Hello, World!"}`), alg)
				require.NoError(t, err)

				sig, err := Sign(d, a, scheme)
				require.NoError(t, err)
				assert.Len(t, sig, 256)

				assert.NoError(t, Verify(d, a.PublicKey(), sig, scheme))

				t.Run("other key", func(t *testing.T) {
					assert.ErrorIs(t, Verify(d, b.PublicKey(), sig, scheme), ErrSignatureInvalid)
				})

				t.Run("other digest", func(t *testing.T) {
					other, err := hashing.Compute([]byte(`{"id":124,"message":"Hello, World!"}`), alg)
					require.NoError(t, err)

					assert.ErrorIs(t, Verify(other, a.PublicKey(), sig, scheme), ErrSignatureInvalid)
				})

				t.Run("flipped bit", func(t *testing.T) {
					tampered := append([]byte(nil), sig...)
					tampered[len(tampered)/2] ^= 0x01

					assert.ErrorIs(t, Verify(d, a.PublicKey(), tampered, scheme), ErrSignatureInvalid)
				})

				t.Run("truncated", func(t *testing.T) {
					assert.ErrorIs(t, Verify(d, a.PublicKey(), sig[:len(sig)-1], scheme), ErrSignatureInvalid)
					assert.ErrorIs(t, Verify(d, a.PublicKey(), nil, scheme), ErrSignatureInvalid)
				})
			})
		}
	}
}

func TestSignDeterminism(t *testing.T) {
	a, _ := testKeys(t)

	d, err := hashing.Compute([]byte("x"), hashing.SHA256)
	require.NoError(t, err)

	first, err := Sign(d, a, PKCS1v15)
	require.NoError(t, err)

	second, err := Sign(d, a, PKCS1v15)
	require.NoError(t, err)

	assert.Equal(t, first, second, "pkcs1v15 signatures are deterministic")

	first, err = Sign(d, a, PSS)
	require.NoError(t, err)

	second, err = Sign(d, a, PSS)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "pss signatures are salted")
}

func TestSignSchemesDiffer(t *testing.T) {
	a, _ := testKeys(t)

	d, err := hashing.Compute([]byte("x"), hashing.SHA256)
	require.NoError(t, err)

	sig, err := Sign(d, a, PKCS1v15)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(d, a.PublicKey(), sig, PSS), ErrSignatureInvalid)
}

func TestSignErrors(t *testing.T) {
	a, _ := testKeys(t)

	d, err := hashing.Compute([]byte("x"), hashing.SHA256)
	require.NoError(t, err)

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := Sign(d, a, "rsa-oaep")
		assert.ErrorIs(t, err, ErrUnsupportedScheme)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := Sign(d, nil, PKCS1v15)
		assert.ErrorIs(t, err, ErrSigning)
	})

	t.Run("non rsa key", func(t *testing.T) {
		ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		_, err = Sign(d, ec, PKCS1v15)
		assert.ErrorIs(t, err, ErrSigning)
	})

	t.Run("weak key", func(t *testing.T) {
		weak, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)

		_, err = Sign(d, weak, PKCS1v15)
		assert.ErrorIs(t, err, ErrSigning)
	})

	t.Run("digest size mismatch", func(t *testing.T) {
		_, err := Sign(hashing.Digest{Algorithm: hashing.SHA256, Sum: d.Sum[:16]}, a, PKCS1v15)
		assert.ErrorIs(t, err, ErrSigning)
		assert.ErrorIs(t, err, hashing.ErrDigestSize)
	})

	t.Run("unknown digest algorithm", func(t *testing.T) {
		_, err := Sign(hashing.Digest{Algorithm: "md5-legacy", Sum: d.Sum}, a, PKCS1v15)
		assert.ErrorIs(t, err, ErrSigning)
		assert.ErrorIs(t, err, hashing.ErrUnsupportedAlgorithm)
	})

	t.Run("failing signer", func(t *testing.T) {
		_, err := Sign(d, failingSigner{pub: a.PublicKey()}, PKCS1v15)
		assert.ErrorIs(t, err, ErrSigning)
	})
}

func TestVerifyErrors(t *testing.T) {
	a, _ := testKeys(t)

	d, err := hashing.Compute([]byte("x"), hashing.SHA256)
	require.NoError(t, err)

	sig, err := Sign(d, a, PKCS1v15)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(d, a.PublicKey(), sig, "rsa-oaep"), ErrUnsupportedScheme)
	assert.ErrorIs(t, Verify(d, nil, sig, PKCS1v15), ErrInvalidKey)
	assert.ErrorIs(t, Verify(d, &rsa.PublicKey{}, sig, PKCS1v15), ErrInvalidKey)
	assert.ErrorIs(t, Verify(hashing.Digest{Algorithm: "md5-legacy", Sum: d.Sum}, a.PublicKey(), sig, PKCS1v15), hashing.ErrUnsupportedAlgorithm)
}

type failingSigner struct {
	pub *rsa.PublicKey
}

func (s failingSigner) Public() crypto.PublicKey { return s.pub }

func (failingSigner) Sign(_ io.Reader, _ []byte, _ crypto.SignerOpts) ([]byte, error) {
	return nil, assert.AnError
}
