package backup

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, data := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
}

func TestZipBundle(t *testing.T) {
	src := filepath.Join(t.TempDir(), "vol.sparsebundle")
	writeTree(t, src, map[string][]byte{
		"Info.plist":          []byte("<plist/>"),
		"bands/0":             make([]byte, 4096),
		"bands/1":             make([]byte, 1024),
		"token":               {},
	})
	dst := filepath.Join(t.TempDir(), "vol.zip")

	var reports []float64
	err := ZipBundle(context.Background(), src, dst, func(f float64) { reports = append(reports, f) })
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	require.Equal(t, 1.0, reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		require.GreaterOrEqual(t, reports[i], reports[i-1])
	}

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names["vol.sparsebundle/Info.plist"])
	require.True(t, names["vol.sparsebundle/bands/0"])
	require.True(t, names["vol.sparsebundle/bands/1"])
}

func TestZipBundle_Cancelled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "vol.sparsebundle")
	writeTree(t, src, map[string][]byte{"bands/0": make([]byte, 128)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ZipBundle(ctx, src, filepath.Join(t.TempDir(), "vol.zip"), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCopyBundle(t *testing.T) {
	src := filepath.Join(t.TempDir(), "vol.sparsebundle")
	writeTree(t, src, map[string][]byte{
		"Info.plist": []byte("<plist/>"),
		"bands/0":    []byte("banddata"),
	})
	dst := filepath.Join(t.TempDir(), "copy.sparsebundle")

	require.NoError(t, CopyBundle(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "bands", "0"))
	require.NoError(t, err)
	require.Equal(t, []byte("banddata"), got)

	// Destination collision is rejected.
	require.Error(t, CopyBundle(src, dst))
}
