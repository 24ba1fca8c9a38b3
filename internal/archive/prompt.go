package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// ErrOperationClosed is returned by Submit after Cancel or after a
// successful Submit.
var ErrOperationClosed = errors.New("pending operation closed")

// PendingOperation is a password-gated operation waiting for its secret.
// The prompt layer calls Submit with the entered password; a non-nil error
// leaves the operation open so the user can retry (wrong passwords surface
// as attach failures), and Cancel abandons it.
type PendingOperation struct {
	archiveID uuid.UUID
	run       func(ctx context.Context, password string) error
	closed    bool
}

// ArchiveID identifies the archive the prompt is for.
func (p *PendingOperation) ArchiveID() uuid.UUID { return p.archiveID }

// Submit completes the operation with the entered password. On error the
// operation stays open for another attempt.
func (p *PendingOperation) Submit(ctx context.Context, password string) error {
	if p.closed {
		return ErrOperationClosed
	}
	if err := p.run(ctx, password); err != nil {
		return err
	}
	p.closed = true
	return nil
}

// Cancel abandons the operation.
func (p *PendingOperation) Cancel() { p.closed = true }

// BeginAttach starts a password-gated attach.
func (m *Manager) BeginAttach(id uuid.UUID) *PendingOperation {
	return &PendingOperation{
		archiveID: id,
		run: func(ctx context.Context, password string) error {
			return m.Attach(ctx, id, password)
		},
	}
}

// BeginCompact starts a password-gated compaction.
func (m *Manager) BeginCompact(id uuid.UUID) *PendingOperation {
	return &PendingOperation{
		archiveID: id,
		run: func(ctx context.Context, password string) error {
			return m.Compact(ctx, id, password)
		},
	}
}

// BeginExportKeyFile starts a password-gated recovery-key export to a file
// under dir. Deriving a key proves nothing by itself, so the operation
// attaches the archive first; a successful mount is the password check.
// The resulting path is delivered through gotPath.
func (m *Manager) BeginExportKeyFile(id uuid.UUID, dir string, gotPath func(string)) *PendingOperation {
	return &PendingOperation{
		archiveID: id,
		run: func(ctx context.Context, password string) error {
			if err := m.attachForExport(ctx, id, password); err != nil {
				return err
			}
			path, err := m.ExportKeyFile(ctx, id, dir)
			if err != nil {
				return err
			}
			if gotPath != nil {
				gotPath(path)
			}
			return nil
		},
	}
}

// BeginExportKeyClipboard is BeginExportKeyFile's clipboard twin.
func (m *Manager) BeginExportKeyClipboard(id uuid.UUID) *PendingOperation {
	return &PendingOperation{
		archiveID: id,
		run: func(ctx context.Context, password string) error {
			if err := m.attachForExport(ctx, id, password); err != nil {
				return err
			}
			return m.ExportKeyClipboard(ctx, id)
		},
	}
}

// attachForExport attaches the archive to validate the password, tolerating
// the already-attached case when the key is held.
func (m *Manager) attachForExport(ctx context.Context, id uuid.UUID, password string) error {
	if _, ok := m.heldKey(id); ok {
		return nil
	}
	if err := m.Attach(ctx, id, password); err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}
