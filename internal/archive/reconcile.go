package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/model"
	"github.com/and161185/arc-keeper/internal/probe"
)

// Start brings the store in line with the disk at launch: working
// directories are created, records without a bundle are purged, bundles
// without a record are quarantined (never deleted), and every archive found
// attached gets lastOpened stamped and the watchdog armed, since the true
// open time is unknown across restarts.
func (m *Manager) Start(ctx context.Context) error {
	for _, dir := range []string{m.cfg.ArchivesDir(), m.cfg.MountDir(), m.cfg.OrphansDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	list, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}

	known := make(map[uuid.UUID]bool, len(list))
	for _, a := range list {
		known[a.ID] = true
		if !probe.Exists(a) {
			m.log.Warn("purging record with no bundle",
				zap.String("archive", a.ID.String()), zap.String("name", a.Name))
			if err := m.repo.Delete(ctx, a.ID); err != nil {
				m.log.Error("purge orphan record", zap.String("archive", a.ID.String()), zap.Error(err))
			}
		}
	}

	for _, ref := range model.ListBundles(m.cfg.ArchivesDir()) {
		if known[ref.ID] {
			continue
		}
		m.log.Warn("quarantining bundle with no record", zap.String("path", ref.Path))
		if err := moveAside(ref.Path, m.cfg.OrphansDir(), m.now()); err != nil {
			m.log.Error("quarantine bundle", zap.String("path", ref.Path), zap.Error(err))
		}
	}

	if err := m.ScanArchiveMounts(ctx); err != nil {
		return err
	}

	list, err = m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}
	for _, a := range list {
		if !a.Attached {
			continue
		}
		a.LastOpened = m.now()
		if err := m.repo.Save(ctx, a); err != nil {
			m.log.Error("stamp last opened", zap.String("archive", a.ID.String()), zap.Error(err))
		}
		m.Watch(ctx, a, 0)
	}
	return nil
}

// End runs at shutdown. With the eject-on-close policy enabled it detaches
// every attached archive best-effort, then takes one final reconciliation
// pass so the persisted state is truthful for the next launch.
func (m *Manager) End(ctx context.Context) error {
	if m.cfg.EjectOnClose {
		list, err := m.repo.List(ctx)
		if err != nil {
			return fmt.Errorf("list archives: %w", err)
		}
		for _, a := range list {
			if !probe.Attached(a) {
				continue
			}
			if err := m.Detach(ctx, a.ID); err != nil {
				m.log.Warn("detach on shutdown", zap.String("archive", a.ID.String()), zap.Error(err))
			}
		}
	}
	return m.ScanArchiveMounts(ctx)
}

// ScanArchiveMounts recomputes every record's attached flag from the probe,
// persists the changes, rebuilds the open-key map and publishes the
// aggregate "any archive open" signal. Idempotent; running it twice in a
// row changes nothing further.
func (m *Manager) ScanArchiveMounts(ctx context.Context) error {
	list, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}

	anyOpen := false
	for _, a := range list {
		a.Attached = probe.Attached(a)
		if a.Attached {
			anyOpen = true
		}
	}
	if err := m.repo.SaveAll(ctx, list); err != nil {
		return fmt.Errorf("persist attach flags: %w", err)
	}

	// Carry keys forward only for archives still attached. Archives that
	// show up attached without a key held this session get the explicit
	// unknown state, never an empty key.
	m.mu.Lock()
	next := make(map[uuid.UUID]openKey, len(m.openKeys))
	for _, a := range list {
		if !a.Attached {
			continue
		}
		if k, ok := m.openKeys[a.ID]; ok {
			next[a.ID] = k
		} else {
			next[a.ID] = openKey{state: keyUnknown}
		}
	}
	m.openKeys = next
	m.mu.Unlock()

	m.publishAnyOpen(anyOpen)
	return nil
}

// HandleMount processes an OS mount notification for a raw device path.
// When the path matches a record's mount point the record is stamped and a
// full scan follows.
func (m *Manager) HandleMount(ctx context.Context, devicePath string) {
	a, ok := m.matchMountPath(ctx, devicePath)
	if !ok {
		return
	}
	a.Attached = true
	a.LastOpened = m.now()
	if err := m.repo.Save(ctx, a); err != nil {
		m.log.Error("persist mount event", zap.String("archive", a.ID.String()), zap.Error(err))
	}
	m.log.Info("volume mounted", zap.String("archive", a.ID.String()), zap.String("path", devicePath))
	m.rememberUnknownKey(a.ID)
	if err := m.ScanArchiveMounts(ctx); err != nil {
		m.log.Error("scan after mount", zap.Error(err))
	}
}

// HandleUnmount processes an OS unmount notification for a raw device path.
func (m *Manager) HandleUnmount(ctx context.Context, devicePath string) {
	a, ok := m.matchMountPath(ctx, devicePath)
	if !ok {
		return
	}
	a.Attached = false
	a.Size = probe.DirectorySize(a.BundlePath)
	if mod, ok := probe.DirectoryModified(a.BundlePath); ok {
		a.Modified = mod
	}
	// The volume is gone; a still-armed auto-close timer and its warning
	// would fire against nothing.
	m.unwatchLocked(ctx, a)
	if err := m.repo.Save(ctx, a); err != nil {
		m.log.Error("persist unmount event", zap.String("archive", a.ID.String()), zap.Error(err))
	}
	m.log.Info("volume unmounted", zap.String("archive", a.ID.String()), zap.String("path", devicePath))
	if err := m.ScanArchiveMounts(ctx); err != nil {
		m.log.Error("scan after unmount", zap.Error(err))
	}
}

func (m *Manager) matchMountPath(ctx context.Context, devicePath string) (*model.Archive, bool) {
	list, err := m.repo.List(ctx)
	if err != nil {
		m.log.Error("list archives", zap.Error(err))
		return nil, false
	}
	for _, a := range list {
		if a.MountPath == devicePath {
			return a, true
		}
	}
	return nil, false
}
