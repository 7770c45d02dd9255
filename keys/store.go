package keys

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the active signing key pair.
type Store interface {
	// Load returns the stored key pair or ErrKeyNotFound.
	Load(ctx context.Context) (*KeyPair, error)
	// Save replaces the stored key pair.
	Save(ctx context.Context, kp *KeyPair) error
}

// MemoryStore keeps the key pair in process memory. It suits tests and
// ephemeral servers whose identity does not outlive the process.
type MemoryStore struct {
	mu sync.Mutex
	kp *KeyPair
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored key pair, or ErrKeyNotFound if none was saved.
func (s *MemoryStore) Load(ctx context.Context) (*KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kp == nil {
		return nil, ErrKeyNotFound
	}

	return s.kp, nil
}

// Save replaces the stored key pair.
func (s *MemoryStore) Save(ctx context.Context, kp *KeyPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if kp == nil {
		return ErrNoKey
	}

	s.mu.Lock()
	s.kp = kp
	s.mu.Unlock()

	return nil
}

const (
	privateKeyFile = "signing.key"
	publicKeyFile  = "signing.pub"
	keyIDHeader    = "Key-Id"
)

// FileStore persists the key pair in a directory. The private key is
// written as a PKCS#8 PEM block readable only by the owner, carrying the
// key id as a PEM header. The public key is written alongside it as a
// PKIX PEM block for distribution.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created
// on first Save.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("keys: file store directory must not be empty")
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the key files.
func (s *FileStore) Dir() string { return s.dir }

// PrivateKeyPath returns the path of the private key file.
func (s *FileStore) PrivateKeyPath() string { return filepath.Join(s.dir, privateKeyFile) }

// PublicKeyPath returns the path of the public key file.
func (s *FileStore) PublicKeyPath() string { return filepath.Join(s.dir, publicKeyFile) }

// Load reads the private key file. A missing file yields ErrKeyNotFound.
func (s *FileStore) Load(ctx context.Context) (*KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.PrivateKeyPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}

		return nil, fmt.Errorf("keys: read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPKCS8PrivateKey {
		return nil, fmt.Errorf("%w: %s: no %q PEM block", ErrMalformedKey, s.PrivateKeyPath(), pemPKCS8PrivateKey)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is %T, not RSA", ErrMalformedKey, parsed)
	}

	return NewKeyPair(block.Headers[keyIDHeader], key)
}

// Save writes the private and public key files, each through an atomic
// rename.
func (s *FileStore) Save(ctx context.Context, kp *KeyPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if kp == nil {
		return ErrNoKey
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("keys: create key directory: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(kp.private)
	if err != nil {
		return fmt.Errorf("keys: marshal private key: %w", err)
	}

	private := pem.EncodeToMemory(&pem.Block{
		Type:    pemPKCS8PrivateKey,
		Headers: map[string]string{keyIDHeader: kp.id},
		Bytes:   der,
	})

	if err := writeFileAtomic(s.PrivateKeyPath(), private, 0o600); err != nil {
		return fmt.Errorf("keys: write private key: %w", err)
	}

	if err := writeFileAtomic(s.PublicKeyPath(), EncodePublicKeyPEM(kp.publicDER), 0o644); err != nil {
		return fmt.Errorf("keys: write public key: %w", err)
	}

	return nil
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it over path, so readers never observe a partial key.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}

	return nil
}
