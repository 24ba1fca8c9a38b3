package keystore

import "errors"

// Secrets backend sentinels.
var (
	// ErrSecretNotFound indicates a read or update of an item that does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretExists indicates a save over an existing item; use Update instead.
	ErrSecretExists = errors.New("secret already exists")
)

// Secrets is key-value secret storage addressed by account name within a
// fixed service namespace. Implementations: the OS keychain and an
// encrypted-file store for headless hosts and tests.
type Secrets interface {
	// Save stores a new item; fails with ErrSecretExists on duplicates.
	Save(account string, value []byte) error
	// Update overwrites an existing item; fails with ErrSecretNotFound.
	Update(account string, value []byte) error
	// Read returns the stored item; fails with ErrSecretNotFound.
	Read(account string) ([]byte, error)
	// Delete removes the item; fails with ErrSecretNotFound.
	Delete(account string) error
}
