package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/arc-keeper/internal/model"
)

func TestExistsAndAttached(t *testing.T) {
	dir := t.TempDir()
	a := &model.Archive{
		BundlePath: filepath.Join(dir, "a.sparsebundle"),
		MountPath:  filepath.Join(dir, "mnt"),
	}

	require.False(t, Exists(a))
	require.False(t, Attached(a))

	require.NoError(t, os.MkdirAll(a.BundlePath, 0o755))
	require.True(t, Exists(a))
	require.False(t, Attached(a))

	require.NoError(t, os.MkdirAll(a.MountPath, 0o755))
	require.True(t, Attached(a))
}

func TestDirectorySize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "two"), make([]byte, 250), 0o644))

	require.Equal(t, int64(350), DirectorySize(dir))
}

func TestDirectorySize_MissingPathIsZero(t *testing.T) {
	if got := DirectorySize(filepath.Join(t.TempDir(), "nope")); got != 0 {
		t.Fatalf("missing path size want 0, got %d", got)
	}
}

func TestDirectoryModified(t *testing.T) {
	dir := t.TempDir()

	ts, ok := DirectoryModified(dir)
	require.True(t, ok)
	require.False(t, ts.IsZero())

	_, ok = DirectoryModified(filepath.Join(dir, "nope"))
	require.False(t, ok)
}
