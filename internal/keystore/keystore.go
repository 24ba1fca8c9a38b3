// Package keystore derives and manages per-archive key material. Only the
// random salt is persisted, in a secret store; the symmetric key is
// recomputed each session as base64(SHA-512(password ++ salt)), so neither
// the password nor the usable key ever touches durable storage.
package keystore

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/errs"
)

// saltLength is the hex-encoded salt length in characters (32 random bytes).
const saltLength = 64

// KeyStore issues and re-derives per-archive symmetric keys.
type KeyStore struct {
	secrets Secrets
	log     *zap.Logger
}

// New constructs a KeyStore over the given secrets backend.
func New(secrets Secrets, log *zap.Logger) *KeyStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &KeyStore{secrets: secrets, log: log}
}

// RandomHex returns n hex characters of cryptographically random data.
// n must be even.
func RandomHex(n int) (string, error) {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func derive(password, salt string) string {
	h := sha512.New()
	h.Write([]byte(password))
	h.Write([]byte(salt))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// CreateKey generates a fresh salt, persists it keyed by the archive id, and
// returns the derived key. An empty password is allowed; the caller marks
// the archive noPassword, but the key still exists and attach still
// formally requires it.
func (s *KeyStore) CreateKey(password string, archiveID uuid.UUID) (string, error) {
	salt, err := RandomHex(saltLength)
	if err != nil {
		return "", err
	}
	if err := s.secrets.Save(archiveID.String(), []byte(salt)); err != nil {
		return "", fmt.Errorf("store salt for %s: %w", archiveID, err)
	}
	s.log.Debug("created key material", zap.String("archive", archiveID.String()))
	return derive(password, salt), nil
}

// DeriveKey recomputes the key for an existing archive from password and its
// stored salt. Returns errs.ErrKeyNotFound when no salt is on record.
func (s *KeyStore) DeriveKey(password string, archiveID uuid.UUID) (string, error) {
	salt, err := s.secrets.Read(archiveID.String())
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return "", fmt.Errorf("%w: archive %s", errs.ErrKeyNotFound, archiveID)
		}
		return "", fmt.Errorf("%w: read salt for %s: %v", errs.ErrSecretStore, archiveID, err)
	}
	return derive(password, string(salt)), nil
}

// DeletePassword purges the stored salt for a permanently removed archive.
func (s *KeyStore) DeletePassword(archiveID uuid.UUID) error {
	if err := s.secrets.Delete(archiveID.String()); err != nil {
		return fmt.Errorf("delete salt for %s: %w", archiveID, err)
	}
	return nil
}

// SaveCredential stores an unrelated secret (e.g. a cloud secret access key)
// under the given account. Duplicates are rejected, as save semantics demand.
func (s *KeyStore) SaveCredential(account string, secret string) error {
	if err := s.secrets.Save(account, []byte(secret)); err != nil {
		return fmt.Errorf("store credential %q: %w", account, err)
	}
	return nil
}

// UpdateCredential replaces an existing credential secret.
func (s *KeyStore) UpdateCredential(account string, secret string) error {
	if err := s.secrets.Update(account, []byte(secret)); err != nil {
		return fmt.Errorf("update credential %q: %w", account, err)
	}
	return nil
}

// ReadCredential returns a secret previously stored with SaveCredential.
func (s *KeyStore) ReadCredential(account string) (string, error) {
	v, err := s.secrets.Read(account)
	if err != nil {
		return "", fmt.Errorf("read credential %q: %w", account, err)
	}
	return string(v), nil
}
