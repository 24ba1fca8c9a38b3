package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	masterKeyFile = "master.key"
	secretExt     = ".secret"
	keyLen        = 32
	nonceLen      = 24
)

// FileStore keeps secrets as secretbox-sealed files under a directory, with
// a machine-local master key created on first use. It is the backend for
// headless hosts without a usable OS keychain, and for tests.
type FileStore struct {
	dir string
	key [keyLen]byte
}

var _ Secrets = (*FileStore)(nil)

// OpenFileStore opens (creating if needed) an encrypted file store at dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secret store dir: %w", err)
	}
	s := &FileStore{dir: dir}

	keyPath := filepath.Join(dir, masterKeyFile)
	raw, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		if len(raw) != keyLen {
			return nil, fmt.Errorf("master key %s: unexpected length %d", keyPath, len(raw))
		}
	case errors.Is(err, os.ErrNotExist):
		raw = make([]byte, keyLen)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate master key: %w", err)
		}
		if err := os.WriteFile(keyPath, raw, 0o600); err != nil {
			return nil, fmt.Errorf("write master key: %w", err)
		}
	default:
		return nil, fmt.Errorf("read master key: %w", err)
	}
	copy(s.key[:], raw)
	return s, nil
}

func (s *FileStore) path(account string) string {
	return filepath.Join(s.dir, account+secretExt)
}

// Save implements Secrets.
func (s *FileStore) Save(account string, value []byte) error {
	if _, err := os.Stat(s.path(account)); err == nil {
		return fmt.Errorf("%w: %s", ErrSecretExists, account)
	}
	return s.seal(account, value)
}

// Update implements Secrets.
func (s *FileStore) Update(account string, value []byte) error {
	if _, err := os.Stat(s.path(account)); err != nil {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, account)
	}
	return s.seal(account, value)
}

// Read implements Secrets.
func (s *FileStore) Read(account string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(account))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, account)
		}
		return nil, fmt.Errorf("read secret %s: %w", account, err)
	}
	if len(raw) < nonceLen {
		return nil, fmt.Errorf("secret %s: sealed payload too short", account)
	}
	var nonce [nonceLen]byte
	copy(nonce[:], raw[:nonceLen])
	plain, ok := secretbox.Open(nil, raw[nonceLen:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("secret %s: unseal failed", account)
	}
	return plain, nil
}

// Delete implements Secrets.
func (s *FileStore) Delete(account string) error {
	if err := os.Remove(s.path(account)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, account)
		}
		return fmt.Errorf("delete secret %s: %w", account, err)
	}
	return nil
}

func (s *FileStore) seal(account string, value []byte) error {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, nonceLen+len(value)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, value, &nonce, &s.key)
	if err := os.WriteFile(s.path(account), out, 0o600); err != nil {
		return fmt.Errorf("write secret %s: %w", account, err)
	}
	return nil
}
