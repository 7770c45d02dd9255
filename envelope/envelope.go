package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/signature"
)

// ErrMalformedEnvelope is returned when an envelope is missing a required
// field or a field has the wrong shape.
var ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

// Envelope is a signed record together with everything needed to verify
// it. Signature and PublicKey hold raw bytes and travel as standard padded
// base64. The record never carries signature or key material.
type Envelope struct {
	Record          canonical.Record  `json:"record"`
	Signature       []byte            `json:"signature"`
	PublicKey       []byte            `json:"public_key"`
	HashAlgorithm   hashing.Algorithm `json:"hash_algorithm"`
	SignatureScheme signature.Scheme  `json:"signature_scheme"`
}

// Wire field names.
const (
	fieldRecord          = "record"
	fieldSignature       = "signature"
	fieldPublicKey       = "public_key"
	fieldHashAlgorithm   = "hash_algorithm"
	fieldSignatureScheme = "signature_scheme"
)

var fieldNames = []string{
	fieldRecord,
	fieldSignature,
	fieldPublicKey,
	fieldHashAlgorithm,
	fieldSignatureScheme,
}

// Parse decodes an envelope from JSON. Decoding is strict: field names
// must match exactly, unknown fields are rejected, every field is required
// and base64 must be canonical. The record must arrive in canonical form,
// so two wire encodings of the same logical record never both verify.
// Record numbers are kept as json.Number. Failures wrap
// ErrMalformedEnvelope.
func Parse(data []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	if fields == nil {
		return nil, fmt.Errorf("%w: envelope must be a JSON object", ErrMalformedEnvelope)
	}

	for name := range fields {
		if !isField(name) {
			return nil, fmt.Errorf("%w: unknown field %q", ErrMalformedEnvelope, name)
		}
	}

	for _, name := range fieldNames {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, name)
		}
	}

	record, err := canonical.ParseCanonicalRecord(fields[fieldRecord])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEnvelope, fieldRecord, err)
	}

	env := &Envelope{Record: record}

	if env.Signature, err = decodeBytes(fields, fieldSignature); err != nil {
		return nil, err
	}

	if env.PublicKey, err = decodeBytes(fields, fieldPublicKey); err != nil {
		return nil, err
	}

	alg, err := decodeString(fields, fieldHashAlgorithm)
	if err != nil {
		return nil, err
	}

	scheme, err := decodeString(fields, fieldSignatureScheme)
	if err != nil {
		return nil, err
	}

	env.HashAlgorithm = hashing.Algorithm(alg)
	env.SignatureScheme = signature.Scheme(scheme)

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}

func isField(name string) bool {
	for _, f := range fieldNames {
		if f == name {
			return true
		}
	}

	return false
}

func decodeString(fields map[string]json.RawMessage, name string) (string, error) {
	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedEnvelope, name)
	}

	return s, nil
}

func decodeBytes(fields map[string]json.RawMessage, name string) ([]byte, error) {
	s, err := decodeString(fields, name)
	if err != nil {
		return nil, err
	}

	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEnvelope, name, err)
	}

	if base64.StdEncoding.EncodeToString(b) != s {
		return nil, fmt.Errorf("%w: %s: non-canonical base64", ErrMalformedEnvelope, name)
	}

	return b, nil
}

// UnmarshalJSON decodes e with the rules of Parse.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}

	*e = *parsed

	return nil
}

// Validate reports whether every field is present. It does not check that
// the algorithm ids are supported or that the signature verifies.
func (e *Envelope) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: envelope is nil", ErrMalformedEnvelope)
	case e.Record == nil:
		return fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, fieldRecord)
	case len(e.Signature) == 0:
		return fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, fieldSignature)
	case len(e.PublicKey) == 0:
		return fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, fieldPublicKey)
	case e.HashAlgorithm == "":
		return fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, fieldHashAlgorithm)
	case e.SignatureScheme == "":
		return fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, fieldSignatureScheme)
	}

	return nil
}

// RecordCID returns the content id of the canonical record.
func (e *Envelope) RecordCID() (cid.Cid, error) {
	b, err := canonical.Canonicalize(e.Record)
	if err != nil {
		return cid.Undef, err
	}

	return hashing.ContentID(b)
}
