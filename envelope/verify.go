package envelope

import (
	"errors"
	"fmt"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

// Verify checks that the record, signature and public key in env are
// mutually consistent. Every failure is reported as an Outcome; Verify
// does not modify env.
func Verify(env *Envelope) Outcome {
	if err := env.Validate(); err != nil {
		return outcome(MalformedEnvelope, err)
	}

	data, err := canonical.Canonicalize(env.Record)
	if err != nil {
		return outcome(MalformedEnvelope, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err))
	}

	if !env.HashAlgorithm.Supported() {
		return outcome(UnsupportedAlgorithm, fmt.Errorf("%w: %q", hashing.ErrUnsupportedAlgorithm, env.HashAlgorithm))
	}

	if !env.SignatureScheme.Supported() {
		return outcome(UnsupportedAlgorithm, fmt.Errorf("%w: %q", signature.ErrUnsupportedScheme, env.SignatureScheme))
	}

	digest, err := hashing.Compute(data, env.HashAlgorithm)
	if err != nil {
		return outcome(UnsupportedAlgorithm, err)
	}

	pub, err := keys.ParsePublicKey(env.PublicKey)
	if err != nil {
		return outcome(MalformedEnvelope, fmt.Errorf("%w: %s: %w", ErrMalformedEnvelope, fieldPublicKey, err))
	}

	err = signature.Verify(digest, pub, env.Signature, env.SignatureScheme)
	switch {
	case err == nil:
		return outcome(Valid, nil)
	case errors.Is(err, signature.ErrInvalidKey):
		return outcome(MalformedEnvelope, fmt.Errorf("%w: %s: %w", ErrMalformedEnvelope, fieldPublicKey, err))
	default:
		return outcome(InvalidSignature, err)
	}
}

// VerifyJSON parses data with Parse and verifies the result.
func VerifyJSON(data []byte) Outcome {
	env, err := Parse(data)
	if err != nil {
		return outcome(MalformedEnvelope, err)
	}

	return Verify(env)
}
