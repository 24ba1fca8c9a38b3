package keystore

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringStore keeps secrets in the OS-native keychain (macOS Keychain,
// Secret Service, wincred) via 99designs/keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

var _ Secrets = (*KeyringStore)(nil)

// OpenKeyring opens the OS keychain under the given service name.
func OpenKeyring(service string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

// Save implements Secrets. The keychain Set overwrites silently, so a
// pre-read enforces the save-fails-on-duplicate contract.
func (k *KeyringStore) Save(account string, value []byte) error {
	if _, err := k.ring.Get(account); err == nil {
		return fmt.Errorf("%w: %s", ErrSecretExists, account)
	} else if !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("probe keyring item %s: %w", account, err)
	}
	return k.set(account, value)
}

// Update implements Secrets.
func (k *KeyringStore) Update(account string, value []byte) error {
	if _, err := k.ring.Get(account); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, account)
		}
		return fmt.Errorf("probe keyring item %s: %w", account, err)
	}
	return k.set(account, value)
}

// Read implements Secrets.
func (k *KeyringStore) Read(account string) ([]byte, error) {
	item, err := k.ring.Get(account)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, account)
		}
		return nil, fmt.Errorf("read keyring item %s: %w", account, err)
	}
	return item.Data, nil
}

// Delete implements Secrets.
func (k *KeyringStore) Delete(account string) error {
	if err := k.ring.Remove(account); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, account)
		}
		return fmt.Errorf("delete keyring item %s: %w", account, err)
	}
	return nil
}

func (k *KeyringStore) set(account string, value []byte) error {
	err := k.ring.Set(keyring.Item{Key: account, Data: value})
	if err != nil {
		return fmt.Errorf("write keyring item %s: %w", account, err)
	}
	return nil
}
