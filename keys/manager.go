package keys

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Store persists the active key pair. Defaults to a MemoryStore.
	Store Store

	// KeyBits is the modulus size used when a key pair has to be
	// generated. Defaults to DefaultKeyBits.
	KeyBits int

	// Logger receives key lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns the active signing key pair. Any number of goroutines may
// sign concurrently through WithKeyPair; Rotate swaps the key pair only
// after in-flight signing completes, so every signature is produced by a
// single consistent key.
type Manager struct {
	mu      sync.RWMutex
	current *KeyPair

	// rotateMu serializes generation so the store and the in-memory key
	// never diverge.
	rotateMu sync.Mutex

	store  Store
	bits   int
	logger *slog.Logger
}

// NewManager creates a Manager. No key pair is loaded until Init, Generate
// or Rotate is called.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.KeyBits == 0 {
		cfg.KeyBits = DefaultKeyBits
	}

	if err := checkBits(cfg.KeyBits); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:  cfg.Store,
		bits:   cfg.KeyBits,
		logger: cfg.Logger,
	}, nil
}

// Init loads the stored key pair, generating and persisting a new one when
// the store is empty.
func (m *Manager) Init(ctx context.Context) error {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	kp, err := m.store.Load(ctx)
	switch {
	case err == nil:
		m.swap(kp)
		m.logger.InfoContext(ctx, "signing key loaded", slog.Any("key", kp))

		return nil

	case errors.Is(err, ErrKeyNotFound):
		_, err = m.replace(ctx, m.bits, "signing key generated")
		return err

	default:
		return fmt.Errorf("keys: load signing key: %w", err)
	}
}

// Generate creates a new key pair of the given size, persists it and makes
// it the active key. A zero bits uses the configured size.
func (m *Manager) Generate(ctx context.Context, bits int) (*KeyPair, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	return m.replace(ctx, bits, "signing key generated")
}

// Rotate replaces the active key pair with a freshly generated one.
// Signatures made with the previous key stay verifiable because every
// envelope embeds the public key it was signed with.
func (m *Manager) Rotate(ctx context.Context, bits int) (*KeyPair, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	previous := m.KeyID()

	kp, err := m.replace(ctx, bits, "signing key rotated")
	if err != nil {
		m.logger.ErrorContext(ctx, "signing key rotation failed",
			slog.String("previous_key_id", previous),
			slog.Any("error", err),
		)

		return nil, err
	}

	return kp, nil
}

// replace must be called with rotateMu held. Key generation and storage
// run outside mu so signing is only blocked for the swap itself.
func (m *Manager) replace(ctx context.Context, bits int, msg string) (*KeyPair, error) {
	if bits == 0 {
		bits = m.bits
	}

	previous := m.KeyID()

	kp, err := GenerateKeyPair(bits)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, kp); err != nil {
		return nil, fmt.Errorf("keys: persist signing key: %w", err)
	}

	m.swap(kp)

	attrs := []any{slog.Any("key", kp)}
	if previous != "" {
		attrs = append(attrs, slog.String("previous_key_id", previous))
	}

	m.logger.InfoContext(ctx, msg, attrs...)

	return kp, nil
}

func (m *Manager) swap(kp *KeyPair) {
	m.mu.Lock()
	m.current = kp
	m.mu.Unlock()
}

// Current returns the active key pair.
func (m *Manager) Current() (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNoKey
	}

	return m.current, nil
}

// WithKeyPair calls fn with the active key pair. The key pair cannot be
// rotated until fn returns.
func (m *Manager) WithKeyPair(fn func(kp *KeyPair) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ErrNoKey
	}

	return fn(m.current)
}

// KeyID returns the id of the active key pair, or "" when none is loaded.
func (m *Manager) KeyID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ""
	}

	return m.current.id
}

// PublicKey returns the active RSA public key.
func (m *Manager) PublicKey() (*rsa.PublicKey, error) {
	kp, err := m.Current()
	if err != nil {
		return nil, err
	}

	return kp.PublicKey(), nil
}

// ExportPublicKey returns the DER (PKIX) encoding of the active public key.
func (m *Manager) ExportPublicKey() ([]byte, error) {
	kp, err := m.Current()
	if err != nil {
		return nil, err
	}

	return ExportPublicKey(kp)
}
