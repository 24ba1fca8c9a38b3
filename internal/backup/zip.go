// Package backup implements bundle backups: plain byte-for-byte copies, zip
// packaging, and the cloud upload path behind an Uploader interface.
package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/and161185/arc-keeper/internal/probe"
)

// ReportFunc receives fractional progress in [0,1].
type ReportFunc func(fraction float64)

func noReport(float64) {}

// ZipBundle packages the directory tree at src into a zip file at dst,
// reporting byte-ratio progress. The deflate stream comes from
// klauspost/compress.
func ZipBundle(ctx context.Context, src, dst string, report ReportFunc) (err error) {
	if report == nil {
		report = noReport
	}

	total := probe.DirectorySize(src)

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create zip %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close zip %s: %w", dst, cerr)
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestSpeed)
	})

	base := filepath.Base(src)
	var done int64

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			_, err := zw.Create(name + "/")
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := io.Copy(w, f)
		if err != nil {
			return err
		}
		done += n
		if total > 0 {
			report(float64(done) / float64(total))
		}
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return fmt.Errorf("zip %s: %w", src, walkErr)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip %s: %w", dst, err)
	}
	report(1)
	return nil
}

// CopyBundle copies the directory tree at src to dst byte-for-byte,
// preserving file modes. dst must not already exist.
func CopyBundle(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup destination %s already exists", dst)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
