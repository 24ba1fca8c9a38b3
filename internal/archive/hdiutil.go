package archive

import (
	"context"
	"fmt"

	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/model"
)

// The disk-image tool contract: exit code 0 is success, anything else is an
// *errs.OperationError carrying the captured output. Secrets travel via
// stdin, never argv.

func (m *Manager) hdiutil(ctx context.Context, args []string, stdin string) error {
	res, err := m.runner.Run(ctx, m.cfg.HdiutilPath, args, stdin)
	if err != nil {
		return fmt.Errorf("run %s: %w", m.cfg.HdiutilPath, err)
	}
	if !res.Succeeded() {
		return &errs.OperationError{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	return nil
}

func (m *Manager) hdiutilCreate(ctx context.Context, a *model.Archive, key string) error {
	args := []string{
		"create",
		"-type", "SPARSEBUNDLE",
		"-size", fmt.Sprintf("%dGb", a.MaxSizeGB),
		"-fs", m.cfg.Filesystem,
		"-encryption", "AES-256",
		"-stdinpass",
		"-volname", a.Name,
		a.BundlePath,
	}
	return m.hdiutil(ctx, args, key)
}

func (m *Manager) hdiutilAttach(ctx context.Context, a *model.Archive, key string) error {
	args := []string{
		"attach",
		"-stdinpass",
		"-mountpoint", a.MountPath,
		a.BundlePath,
	}
	return m.hdiutil(ctx, args, key)
}

func (m *Manager) hdiutilDetach(ctx context.Context, a *model.Archive) error {
	return m.hdiutil(ctx, []string{"detach", a.MountPath}, "")
}

func (m *Manager) hdiutilCompact(ctx context.Context, a *model.Archive, key string) error {
	args := []string{
		"compact",
		"-stdinpass",
		"-batteryallowed",
		a.BundlePath,
	}
	return m.hdiutil(ctx, args, key)
}
