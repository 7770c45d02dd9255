// Package envelope signs records and verifies signed envelopes.
//
// # Envelope
//
// An Envelope bundles a record with its signature and the DER encoded
// public key of the signer, along with the ids of the digest algorithm and
// signature scheme that were used:
//
//	{
//	  "record": {"id":123,"message":"Hello, World!"},
//	  "signature": "<base64>",
//	  "public_key": "<base64 DER>",
//	  "hash_algorithm": "sha256",
//	  "signature_scheme": "rsa-pkcs1v15"
//	}
//
// The signature covers the digest of the canonical form of the record
// (see package canonical). Parse insists that the record arrives in that
// form, so a record re-encoded in transit is a MalformedEnvelope.
//
// # Signing
//
//	signer, err := envelope.NewSigner(envelope.SignerConfig{Keys: manager})
//	if err != nil {
//		return err
//	}
//
//	env, err := signer.Sign(ctx, canonical.Record{"id": 123, "message": "Hello, World!"})
//
// # Verification
//
// Verify and VerifyJSON never return an error. They classify the envelope
// as Valid, InvalidSignature, MalformedEnvelope or UnsupportedAlgorithm and
// explain anything but Valid in Outcome.Reason:
//
//	out := envelope.VerifyJSON(body)
//	if !out.Valid() {
//		log.Printf("rejected: %s", out)
//	}
//
// An envelope only proves that the holder of the embedded public key signed
// the record. Deciding whether that key is trusted is up to the caller.
package envelope
