package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/model"
)

// pbcopyPath is the clipboard writer; the key travels via stdin.
const pbcopyPath = "/usr/bin/pbcopy"

// ExportKeyFile writes the recovery document to dir/<name>.locke and
// returns the path. The key must be held in memory (the archive attached
// this session); otherwise errs.ErrKeyNotFound is returned and the caller
// should go through BeginExportKeyFile to prove the password.
func (m *Manager) ExportKeyFile(ctx context.Context, id uuid.UUID, dir string) (string, error) {
	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	key, ok := m.heldKey(id)
	if !ok {
		return "", fmt.Errorf("%w: key not held this session", errs.ErrKeyNotFound)
	}

	doc := model.NewRecoveryKey(a, key, m.now())
	data, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode recovery key: %w", err)
	}
	path := filepath.Join(dir, a.Name+model.RecoveryExt)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write recovery key: %w", err)
	}
	m.log.Info("recovery key exported", zap.String("archive", id.String()), zap.String("path", path))
	return path, nil
}

// ExportKeyClipboard copies the held key to the system clipboard.
func (m *Manager) ExportKeyClipboard(ctx context.Context, id uuid.UUID) error {
	key, ok := m.heldKey(id)
	if !ok {
		return fmt.Errorf("%w: key not held this session", errs.ErrKeyNotFound)
	}
	res, err := m.runner.Run(ctx, pbcopyPath, nil, key)
	if err != nil {
		return fmt.Errorf("run %s: %w", pbcopyPath, err)
	}
	if !res.Succeeded() {
		return &errs.OperationError{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	m.log.Info("recovery key copied to clipboard", zap.String("archive", id.String()))
	return nil
}

// Recover attaches the archive using a previously exported recovery
// document, bypassing password derivation entirely.
func (m *Manager) Recover(ctx context.Context, id uuid.UUID, recoveryPath string) error {
	data, err := os.ReadFile(recoveryPath)
	if err != nil {
		return fmt.Errorf("read recovery key: %w", err)
	}
	doc, err := model.ParseRecoveryKey(data)
	if err != nil {
		return fmt.Errorf("parse recovery key: %w", err)
	}
	if doc.Archive.ID != id.String() {
		return fmt.Errorf("recovery key is for archive %s, not %s", doc.Archive.ID, id)
	}
	return m.AttachWithKey(ctx, id, doc.Key)
}
