// Package model defines domain entities shared by the lifecycle, reconciliation
// and watchdog layers.
package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// BundleExt is the extension of an archive's on-disk backing bundle.
const BundleExt = ".sparsebundle"

// RecoveryExt is the extension of an exported recovery-key file.
const RecoveryExt = ".locke"

// Archive is the persisted representation of one managed encrypted volume.
//
// Attached is a cache of "mount point is live" and is rewritten on every
// reconciliation pass. Size and Modified are valid only as of the last
// detach or compact; they are stale while the archive is attached.
type Archive struct {
	ID         uuid.UUID `json:"id"`          // immutable, generated at creation
	Name       string    `json:"name"`        // unique, user-chosen
	BundlePath string    `json:"bundle_path"` // backing sparse-bundle location
	MountPath  string    `json:"mount_path"`  // mount-point location
	MaxSizeGB  int       `json:"max_size_gb"` // capacity, immutable after create

	Size     int64     `json:"size"`     // bytes on disk, refreshed on detach/compact
	Modified time.Time `json:"modified"` // bundle mtime, refreshed on detach/compact

	Created    time.Time `json:"created"`
	LastOpened time.Time `json:"last_opened"`

	Attached       bool   `json:"attached"`
	Favorite       bool   `json:"favorite"`
	NoPassword     bool   `json:"no_password"`     // created with an empty password
	Watched        bool   `json:"watched"`         // auto-close timer armed
	ScheduledClose string `json:"scheduled_close"` // display string, e.g. "Closes 10/16 5:04 PM"
}

// DefaultBundlePath returns the managed bundle location for an archive id.
func DefaultBundlePath(archivesDir string, id uuid.UUID) string {
	return filepath.Join(archivesDir, id.String()+BundleExt)
}

// DefaultMountPath returns the managed mount point for an archive id.
func DefaultMountPath(mountDir string, id uuid.UUID) string {
	return filepath.Join(mountDir, id.String())
}

// BundleRef is one bundle found on disk in the managed archives directory.
type BundleRef struct {
	ID   uuid.UUID
	Path string
}

// ListBundles returns the archive bundles present in dir. Entries whose name
// is not "<uuid>.sparsebundle" are ignored; a missing dir yields an empty list.
func ListBundles(dir string) []BundleRef {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var refs []BundleRef
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, BundleExt) {
			continue
		}
		id, err := uuid.FromString(strings.TrimSuffix(name, BundleExt))
		if err != nil {
			continue
		}
		refs = append(refs, BundleRef{ID: id, Path: filepath.Join(dir, name)})
	}
	return refs
}

// RecoveryKey is the exported recovery document for one archive. The key
// field holds the derived symmetric key itself, not the password.
type RecoveryKey struct {
	Info    string          `json:"info"`
	Archive RecoveryArchive `json:"archive"`
	Date    string          `json:"date"`
	Key     string          `json:"key"`
}

// RecoveryArchive names the archive a recovery key belongs to.
type RecoveryArchive struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// RecoveryInfoLabel is the constant "info" value of every recovery file.
const RecoveryInfoLabel = "ArcKeeper Recovery Key"

// NewRecoveryKey builds the recovery document for an archive and its derived key.
func NewRecoveryKey(a *Archive, key string, now time.Time) RecoveryKey {
	return RecoveryKey{
		Info: RecoveryInfoLabel,
		Archive: RecoveryArchive{
			Name: a.Name,
			ID:   a.ID.String(),
		},
		Date: now.Format("1/2/2006, 3:04 PM"),
		Key:  key,
	}
}

// Marshal renders the recovery document as indented JSON.
func (r RecoveryKey) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ParseRecoveryKey decodes an exported recovery document and verifies its
// info label and that a key is present.
func ParseRecoveryKey(data []byte) (RecoveryKey, error) {
	var r RecoveryKey
	if err := json.Unmarshal(data, &r); err != nil {
		return RecoveryKey{}, err
	}
	if r.Info != RecoveryInfoLabel {
		return RecoveryKey{}, errors.New("not a recovery key document")
	}
	if r.Key == "" {
		return RecoveryKey{}, errors.New("recovery document has no key")
	}
	return r, nil
}
