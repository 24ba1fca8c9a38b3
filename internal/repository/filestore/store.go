// Package filestore persists archive records as a catalog of JSON documents,
// one file per record, written atomically via temp-file rename.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/model"
	"github.com/and161185/arc-keeper/internal/repository"
)

const recordExt = ".json"

// Store is a directory-backed ArchiveRepository.
type Store struct {
	dir string
	log *zap.Logger
}

var _ repository.ArchiveRepository = (*Store)(nil)

// New opens (creating if needed) a record catalog at dir.
func New(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+recordExt)
}

// List implements repository.ArchiveRepository. Corrupt documents are
// skipped with a log line rather than failing the whole listing.
func (s *Store) List(ctx context.Context) ([]*model.Archive, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read record dir: %w", err)
	}

	var archives []*model.Archive
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		a, err := s.load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Error("skipping unreadable record", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		archives = append(archives, a)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Created.After(archives[j].Created)
	})
	return archives, nil
}

// Get implements repository.ArchiveRepository.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Archive, error) {
	a, err := s.load(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
		}
		return nil, err
	}
	return a, nil
}

// Save implements repository.ArchiveRepository.
func (s *Store) Save(ctx context.Context, a *model.Archive) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", a.ID, err)
	}

	// Change detection: identical bytes mean nothing to do.
	if prev, err := os.ReadFile(s.path(a.ID)); err == nil && bytes.Equal(prev, data) {
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, "."+a.ID.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("stage record %s: %w", a.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record %s: %w", a.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close record %s: %w", a.ID, err)
	}
	if err := os.Rename(tmpName, s.path(a.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit record %s: %w", a.ID, err)
	}
	return nil
}

// SaveAll implements repository.ArchiveRepository.
func (s *Store) SaveAll(ctx context.Context, archives []*model.Archive) error {
	for _, a := range archives {
		if err := s.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements repository.ArchiveRepository.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
		}
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (s *Store) load(path string) (*model.Archive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a model.Archive
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &a, nil
}
