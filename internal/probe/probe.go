// Package probe answers questions about on-disk archive state: whether the
// backing bundle exists, whether the mount point is live, and how big a
// directory tree is. A live mount always materializes its root as an
// existing path, so path existence is the sole attachment signal; no mount
// table parsing is needed.
package probe

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/arc-keeper/internal/model"
)

// Exists reports whether the archive's backing bundle is present on disk.
func Exists(a *model.Archive) bool {
	_, err := os.Stat(a.BundlePath)
	return err == nil
}

// Attached reports whether the archive's mount point is live.
func Attached(a *model.Archive) bool {
	_, err := os.Stat(a.MountPath)
	return err == nil
}

// DirectorySize returns the recursive sum of file sizes under path.
// Unreadable paths and entries contribute zero; it never fails.
func DirectorySize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

// DirectoryModified returns the modification time of path itself, and
// whether it could be read.
func DirectoryModified(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
