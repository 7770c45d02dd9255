package envelope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

// propertyRecords covers the number, string and nesting shapes the
// round trip and tamper tests run over.
func propertyRecords() []canonical.Record {
	return []canonical.Record{
		helloWorld(),
		{},
		{"nested": map[string]any{"z": []any{1, "two", 3.5, nil, true}, "a": false}},
		{"unicode": "café ☃ \U0001F600", "big": int64(1) << 52},
		{"amount": 0.30000000000000004},
		{"n": 1e20},
		{"n": json.Number("1e16")},
		{"n": float64(1 << 53)},
		{"z": math.Copysign(0, -1), "tiny": -1.5e-7, "huge": 1e300},
		{
			"s":    "tab\t quote\" back\\ ctl\u001f html<&> sep\u2028 é",
			"list": []any{[]any{}, map[string]any{}, []any{map[string]any{"deep": []any{0.5}}}},
		},
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	records := propertyRecords()

	for _, scheme := range signature.Schemes() {
		for _, alg := range hashing.Algorithms() {
			t.Run(fmt.Sprintf("%s/%s", scheme, alg), func(t *testing.T) {
				s := testSigner(t, alg, scheme)

				for i, r := range records {
					env, err := s.Sign(context.Background(), r)
					require.NoError(t, err)

					assert.Equal(t, alg, env.HashAlgorithm)
					assert.Equal(t, scheme, env.SignatureScheme)

					out := Verify(env)
					assert.True(t, out.Valid(), "record %d: %s", i, out)
					assert.NoError(t, out.Reason)

					assert.True(t, VerifyJSON(marshalEnvelope(t, env)).Valid(), "record %d", i)
				}
			})
		}
	}
}

func TestHelloWorldScenario(t *testing.T) {
	_, foreign := testManager(t)
	env := signHelloWorld(t)

	t.Run("valid", func(t *testing.T) {
		assert.Equal(t, Valid, Verify(env).Result)
	})

	t.Run("mutated id", func(t *testing.T) {
		tampered := *env
		tampered.Record = canonical.Record{"message": "Hello, World!", "id": 124}

		out := Verify(&tampered)
		assert.Equal(t, InvalidSignature, out.Result)
		assert.ErrorIs(t, out.Reason, signature.ErrSignatureInvalid)
	})

	t.Run("foreign public key", func(t *testing.T) {
		der, err := keys.ExportPublicKey(foreign)
		require.NoError(t, err)

		tampered := *env
		tampered.PublicKey = der

		assert.Equal(t, InvalidSignature, Verify(&tampered).Result)
	})

	t.Run("record re-encoded in transit", func(t *testing.T) {
		for _, record := range []string{
			`{"message":"Hello, World!","id":123}`,
			`{"id": 123,"message":"Hello, World!"}`,
			`{"id":1.23e2,"message":"Hello, World!"}`,
			`{"id":123,"message":"Hello, W\u006frld!"}`,
		} {
			fields := map[string]json.RawMessage{}
			require.NoError(t, json.Unmarshal(marshalEnvelope(t, env), &fields))

			fields["record"] = json.RawMessage(record)

			data, err := json.Marshal(fields)
			require.NoError(t, err)

			out := VerifyJSON(data)
			assert.Equal(t, MalformedEnvelope, out.Result, record)
			assert.ErrorIs(t, out.Reason, canonical.ErrNotCanonical, record)
		}
	})
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	env := signHelloWorld(t)

	t.Run("hash algorithm", func(t *testing.T) {
		tampered := *env
		tampered.HashAlgorithm = "md5-legacy"

		out := Verify(&tampered)
		assert.Equal(t, UnsupportedAlgorithm, out.Result)
		assert.ErrorIs(t, out.Reason, hashing.ErrUnsupportedAlgorithm)
	})

	t.Run("signature scheme", func(t *testing.T) {
		tampered := *env
		tampered.SignatureScheme = "rsa-oaep"

		out := Verify(&tampered)
		assert.Equal(t, UnsupportedAlgorithm, out.Result)
		assert.ErrorIs(t, out.Reason, signature.ErrUnsupportedScheme)
	})

	t.Run("scheme checked before key parsing", func(t *testing.T) {
		tampered := *env
		tampered.SignatureScheme = "rsa-oaep"
		tampered.PublicKey = []byte("not a key")

		assert.Equal(t, UnsupportedAlgorithm, Verify(&tampered).Result)
	})

	t.Run("wrong but supported scheme", func(t *testing.T) {
		tampered := *env
		tampered.SignatureScheme = signature.PSS

		assert.Equal(t, InvalidSignature, Verify(&tampered).Result)
	})

	t.Run("wrong but supported hash", func(t *testing.T) {
		tampered := *env
		tampered.HashAlgorithm = hashing.SHA3_256

		assert.Equal(t, InvalidSignature, Verify(&tampered).Result)
	})
}

func TestVerifyMalformed(t *testing.T) {
	env := signHelloWorld(t)

	t.Run("nil", func(t *testing.T) {
		out := Verify(nil)
		assert.Equal(t, MalformedEnvelope, out.Result)
		assert.ErrorIs(t, out.Reason, ErrMalformedEnvelope)
	})

	t.Run("missing signature", func(t *testing.T) {
		tampered := *env
		tampered.Signature = nil

		assert.Equal(t, MalformedEnvelope, Verify(&tampered).Result)

		fields := map[string]json.RawMessage{}
		require.NoError(t, json.Unmarshal(marshalEnvelope(t, env), &fields))
		delete(fields, "signature")

		data, err := json.Marshal(fields)
		require.NoError(t, err)

		out := VerifyJSON(data)
		assert.Equal(t, MalformedEnvelope, out.Result)
		assert.ErrorIs(t, out.Reason, ErrMalformedEnvelope)
	})

	t.Run("public key garbage", func(t *testing.T) {
		tampered := *env
		tampered.PublicKey = []byte("not a key")

		out := Verify(&tampered)
		assert.Equal(t, MalformedEnvelope, out.Result)
		assert.ErrorIs(t, out.Reason, ErrMalformedEnvelope)
		assert.ErrorIs(t, out.Reason, keys.ErrMalformedKey)
	})

	t.Run("record not canonicalizable", func(t *testing.T) {
		tampered := *env
		tampered.Record = canonical.Record{"ch": make(chan int)}

		out := Verify(&tampered)
		assert.Equal(t, MalformedEnvelope, out.Result)
		assert.ErrorIs(t, out.Reason, canonical.ErrEncoding)
	})

	t.Run("invalid json", func(t *testing.T) {
		assert.Equal(t, MalformedEnvelope, VerifyJSON([]byte("{")).Result)
		assert.Equal(t, MalformedEnvelope, VerifyJSON(nil).Result)
	})
}

func TestVerifyTamperedWire(t *testing.T) {
	data := marshalEnvelope(t, signHelloWorld(t))
	require.True(t, VerifyJSON(data).Valid())

	counts := map[Result]int{}

	for i := range data {
		for bit := range 8 {
			tampered := bytes.Clone(data)
			tampered[i] ^= 1 << bit

			out := VerifyJSON(tampered)
			counts[out.Result]++

			if out.Valid() {
				t.Fatalf("flipping bit %d of byte %d (%q) still verifies", bit, i, data[i])
			}
		}
	}

	assert.Zero(t, counts[Valid])
	assert.NotZero(t, counts[InvalidSignature])
	assert.NotZero(t, counts[MalformedEnvelope])
}

func TestVerifyTamperedWireRecord(t *testing.T) {
	s := testSigner(t, "", "")

	for i, r := range propertyRecords() {
		env, err := s.Sign(context.Background(), r)
		require.NoError(t, err)

		data := marshalEnvelope(t, env)
		require.True(t, VerifyJSON(data).Valid(), "record %d", i)

		embedded, err := json.Marshal(env.Record)
		require.NoError(t, err)

		start := bytes.Index(data, embedded)
		require.GreaterOrEqual(t, start, 0, "record %d", i)

		for pos := start; pos < start+len(embedded); pos++ {
			for bit := range 8 {
				tampered := bytes.Clone(data)
				tampered[pos] ^= 1 << bit

				if out := VerifyJSON(tampered); out.Valid() {
					t.Fatalf("record %d: flipping bit %d of byte %d (%q) still verifies", i, bit, pos, data[pos])
				}
			}
		}
	}
}

func TestVerifyNumberTextFlip(t *testing.T) {
	env, err := testSigner(t, "", "").Sign(context.Background(), canonical.Record{"amount": 0.30000000000000004})
	require.NoError(t, err)

	data := marshalEnvelope(t, env)
	require.True(t, VerifyJSON(data).Valid())

	// 0.30000000000000005 is one bit away and rounds to the same double
	tampered := bytes.Replace(data, []byte("0.30000000000000004"), []byte("0.30000000000000005"), 1)
	require.NotEqual(t, data, tampered)

	out := VerifyJSON(tampered)
	assert.Equal(t, MalformedEnvelope, out.Result)
	assert.ErrorIs(t, out.Reason, canonical.ErrNotCanonical)
}

func TestVerifyTamperedFields(t *testing.T) {
	flipAll := func(t *testing.T, env *Envelope, field []byte, set func(e *Envelope, b []byte)) {
		t.Helper()

		for i := range field {
			for bit := range 8 {
				tampered := bytes.Clone(field)
				tampered[i] ^= 1 << bit

				copied := *env
				set(&copied, tampered)

				out := Verify(&copied)
				if out.Result != InvalidSignature && out.Result != MalformedEnvelope {
					t.Fatalf("flipping bit %d of byte %d gave %s", bit, i, out)
				}
			}
		}
	}

	s := testSigner(t, "", "")

	for n, r := range propertyRecords() {
		env, err := s.Sign(context.Background(), r)
		require.NoError(t, err)

		t.Run(fmt.Sprintf("record %d", n), func(t *testing.T) {
			t.Run("signature", func(t *testing.T) {
				flipAll(t, env, env.Signature, func(e *Envelope, b []byte) { e.Signature = b })
			})

			t.Run("public key", func(t *testing.T) {
				flipAll(t, env, env.PublicKey, func(e *Envelope, b []byte) { e.PublicKey = b })
			})

			t.Run("canonical record", func(t *testing.T) {
				canon, err := canonical.Canonicalize(env.Record)
				require.NoError(t, err)

				for i := range canon {
					for bit := range 8 {
						tampered := bytes.Clone(canon)
						tampered[i] ^= 1 << bit

						record, err := canonical.ParseCanonicalRecord(tampered)
						if err != nil {
							continue
						}

						copied := *env
						copied.Record = record

						assert.NotEqual(t, Valid, Verify(&copied).Result, "byte %d bit %d", i, bit)
					}
				}
			})
		})
	}
}

func TestVerifyDoesNotMutate(t *testing.T) {
	env := signHelloWorld(t)
	before := marshalEnvelope(t, env)

	Verify(env)

	tampered := *env
	tampered.HashAlgorithm = "md5-legacy"
	Verify(&tampered)

	assert.Equal(t, before, marshalEnvelope(t, env))
}
