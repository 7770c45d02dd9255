package envelope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

// ErrNoKeyManager is returned by NewSigner when SignerConfig has no key
// manager.
var ErrNoKeyManager = errors.New("envelope: key manager must not be nil")

// SignerConfig configures a Signer.
type SignerConfig struct {
	// Keys provides the active signing key. Required.
	Keys *keys.Manager

	// HashAlgorithm defaults to hashing.Default.
	HashAlgorithm hashing.Algorithm

	// Scheme defaults to signature.Default.
	Scheme signature.Scheme

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Signer turns records into envelopes using the active key of a
// keys.Manager. It is safe for concurrent use, including while the key is
// being rotated.
type Signer struct {
	keys   *keys.Manager
	alg    hashing.Algorithm
	scheme signature.Scheme
	logger *slog.Logger
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.Keys == nil {
		return nil, ErrNoKeyManager
	}

	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = hashing.Default
	}

	if _, err := hashing.Parse(string(cfg.HashAlgorithm)); err != nil {
		return nil, err
	}

	if cfg.Scheme == "" {
		cfg.Scheme = signature.Default
	}

	if _, err := signature.ParseScheme(string(cfg.Scheme)); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Signer{
		keys:   cfg.Keys,
		alg:    cfg.HashAlgorithm,
		scheme: cfg.Scheme,
		logger: cfg.Logger,
	}, nil
}

// HashAlgorithm returns the configured digest algorithm.
func (s *Signer) HashAlgorithm() hashing.Algorithm { return s.alg }

// Scheme returns the configured signature scheme.
func (s *Signer) Scheme() signature.Scheme { return s.scheme }

// Sign canonicalizes r, signs its digest with the active key and returns
// the envelope. The envelope holds its own copy of the record. Errors wrap
// canonical.ErrEncoding or signature.ErrSigning.
func (s *Signer) Sign(ctx context.Context, r canonical.Record) (*Envelope, error) {
	data, err := canonical.Canonicalize(r)
	if err != nil {
		return nil, err
	}

	record, err := canonical.ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", canonical.ErrEncoding, err)
	}

	digest, err := hashing.Compute(data, s.alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", signature.ErrSigning, err)
	}

	env := &Envelope{
		Record:          record,
		HashAlgorithm:   s.alg,
		SignatureScheme: s.scheme,
	}

	var keyID string

	err = s.keys.WithKeyPair(func(kp *keys.KeyPair) error {
		sig, err := signature.Sign(digest, kp, s.scheme)
		if err != nil {
			return err
		}

		pub, err := keys.ExportPublicKey(kp)
		if err != nil {
			return err
		}

		env.Signature = sig
		env.PublicKey = pub
		keyID = kp.ID()

		return nil
	})
	if err != nil {
		if !errors.Is(err, signature.ErrSigning) {
			err = fmt.Errorf("%w: %w", signature.ErrSigning, err)
		}

		s.logger.ErrorContext(ctx, "record signing failed", slog.Any("error", err))

		return nil, err
	}

	attrs := []slog.Attr{
		slog.String("key_id", keyID),
		slog.String("hash_algorithm", s.alg.String()),
		slog.String("signature_scheme", s.scheme.String()),
	}

	if id, err := hashing.ContentID(data); err == nil {
		attrs = append(attrs, slog.String("record_cid", id.String()))
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "record signed", attrs...)

	return env, nil
}
