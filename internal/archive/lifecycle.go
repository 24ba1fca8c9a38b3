package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/backup"
	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/model"
	"github.com/and161185/arc-keeper/internal/probe"
)

// Create builds a new encrypted sparse-bundle of maxSizeGB gigabytes and
// persists its record. An empty password is allowed and flagged on the
// record. Path overrides of "" select the managed defaults.
func (m *Manager) Create(ctx context.Context, name, password string, maxSizeGB int, bundlePath, mountPath string) (*model.Archive, error) {
	// Names are unique: they are how users address archives.
	if _, err := m.FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: name %q", errs.ErrAlreadyExists, name)
	} else if !errors.Is(err, errs.ErrRecordNotFound) {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate archive id: %w", err)
	}
	if bundlePath == "" {
		bundlePath = model.DefaultBundlePath(m.cfg.ArchivesDir(), id)
	}
	if mountPath == "" {
		mountPath = model.DefaultMountPath(m.cfg.MountDir(), id)
	}

	a := &model.Archive{
		ID:         id,
		Name:       name,
		BundlePath: bundlePath,
		MountPath:  mountPath,
		MaxSizeGB:  maxSizeGB,
		Created:    m.now(),
		NoPassword: password == "",
	}
	if probe.Exists(a) {
		return nil, fmt.Errorf("%w: %s", errs.ErrAlreadyExists, bundlePath)
	}

	key, err := m.keys.CreateKey(password, id)
	if err != nil {
		return nil, fmt.Errorf("create key: %w", err)
	}

	// The record goes in first so a crash mid-create leaves a visible stub
	// rather than an orphan bundle.
	if err := m.repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}

	if err := m.hdiutilCreate(ctx, a, key); err != nil {
		return nil, fmt.Errorf("build bundle: %w", err)
	}
	if !probe.Exists(a) {
		return nil, fmt.Errorf("%w: bundle missing after create", errs.ErrCreationFailed)
	}

	a.Size = probe.DirectorySize(a.BundlePath)
	if mod, ok := probe.DirectoryModified(a.BundlePath); ok {
		a.Modified = mod
	}
	if err := m.repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	m.log.Info("archive created",
		zap.String("archive", id.String()),
		zap.String("name", name),
		zap.Int("max_size_gb", maxSizeGB))
	return a, nil
}

// Attach mounts the archive using a key derived from password.
func (m *Manager) Attach(ctx context.Context, id uuid.UUID, password string) error {
	key, err := m.keys.DeriveKey(password, id)
	if err != nil {
		return err
	}
	return m.AttachWithKey(ctx, id, key)
}

// AttachWithKey mounts the archive using the derived key directly. This is
// the recovery path when the password is lost but the key was exported.
func (m *Manager) AttachWithKey(ctx context.Context, id uuid.UUID, key string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !probe.Exists(a) {
		return fmt.Errorf("%w: %s", errs.ErrDoesNotExist, a.BundlePath)
	}
	if probe.Attached(a) {
		return fmt.Errorf("%w: %s", errs.ErrAlreadyAttached, a.MountPath)
	}

	if err := m.hdiutilAttach(ctx, a, key); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrAttachFailed, err)
	}
	if !probe.Attached(a) {
		return fmt.Errorf("%w: mount point not live after attach", errs.ErrAttachFailed)
	}

	m.rememberKey(id, key)

	a.Attached = true
	a.LastOpened = m.now()
	if err := m.repo.Save(ctx, a); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	m.log.Info("archive attached", zap.String("archive", id.String()), zap.String("name", a.Name))

	m.Watch(ctx, a, 0)
	return m.ScanArchiveMounts(ctx)
}

// Detach unmounts the archive. When the compact-on-detach policy is on and
// the key is held in memory, the bundle is compacted right after; with no
// key held the compaction is skipped and logged.
func (m *Manager) Detach(ctx context.Context, id uuid.UUID) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !probe.Attached(a) {
		return fmt.Errorf("%w: %s", errs.ErrNotAttached, a.MountPath)
	}

	if err := m.hdiutilDetach(ctx, a); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrDetachFailed, err)
	}
	if probe.Attached(a) {
		return fmt.Errorf("%w: mount point still live after detach", errs.ErrDetachFailed)
	}

	if m.cfg.CompactOnDetach {
		if key, ok := m.heldKey(id); ok {
			if err := m.hdiutilCompact(ctx, a, key); err != nil {
				m.log.Error("compact on detach failed", zap.String("archive", id.String()), zap.Error(err))
			}
		} else {
			m.log.Warn("compact on detach skipped, key not held this session",
				zap.String("archive", id.String()))
		}
	}
	m.forgetKey(id)

	a.Attached = false
	a.Size = probe.DirectorySize(a.BundlePath)
	if mod, ok := probe.DirectoryModified(a.BundlePath); ok {
		a.Modified = mod
	}
	m.unwatchLocked(ctx, a)
	if err := m.repo.Save(ctx, a); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	m.log.Info("archive detached", zap.String("archive", id.String()), zap.String("name", a.Name))

	return m.ScanArchiveMounts(ctx)
}

// Compact reclaims unused space inside the bundle. The archive must be
// detached; compaction needs exclusive access.
func (m *Manager) Compact(ctx context.Context, id uuid.UUID, password string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !probe.Exists(a) {
		return fmt.Errorf("%w: %s", errs.ErrDoesNotExist, a.BundlePath)
	}
	if probe.Attached(a) {
		return fmt.Errorf("%w: detach before compacting", errs.ErrAlreadyAttached)
	}

	key, ok := m.heldKey(id)
	if !ok {
		key, err = m.keys.DeriveKey(password, id)
		if err != nil {
			return err
		}
	}

	if err := m.hdiutilCompact(ctx, a, key); err != nil {
		return fmt.Errorf("compact bundle: %w", err)
	}

	a.Size = probe.DirectorySize(a.BundlePath)
	if mod, ok := probe.DirectoryModified(a.BundlePath); ok {
		a.Modified = mod
	}
	if err := m.repo.Save(ctx, a); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	m.log.Info("archive compacted", zap.String("archive", id.String()), zap.Int64("size", a.Size))
	return nil
}

// Remove moves the bundle to the trash directory (recoverable, never a hard
// delete), deletes the record, and schedules an asynchronous purge of the
// stored salt. The archive must be detached.
func (m *Manager) Remove(ctx context.Context, id uuid.UUID) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !probe.Exists(a) {
		return fmt.Errorf("%w: %s", errs.ErrDoesNotExist, a.BundlePath)
	}
	if probe.Attached(a) {
		return fmt.Errorf("%w: detach before removing", errs.ErrAlreadyAttached)
	}

	if err := moveAside(a.BundlePath, m.cfg.TrashDir(), m.now()); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	if probe.Exists(a) {
		return fmt.Errorf("%w: bundle still present", errs.ErrRemovalFailed)
	}

	// The record goes only after the disk-level removal succeeded, so a
	// still-existing bundle never loses its record.
	if err := m.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	m.forgetKey(id)
	m.sched.Cancel(watchKey(id))
	m.notifier.Cancel(id)

	go func() {
		if err := m.keys.DeletePassword(id); err != nil {
			m.log.Error("purge salt", zap.String("archive", id.String()), zap.Error(err))
		}
	}()

	m.log.Info("archive removed", zap.String("archive", id.String()), zap.String("name", a.Name))
	return nil
}

// moveAside relocates path into dir, appending a timestamp suffix when the
// target name is already taken.
func moveAside(path, dir string, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		dst = dst[:len(dst)-len(ext)] + "-" + now.Format("20060102T150405") + ext
	}
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("move %s: %w", path, err)
	}
	return nil
}

// Backup copies the bundle byte-for-byte to dstDir. The archive must be
// detached so the copy is consistent.
func (m *Manager) Backup(ctx context.Context, id uuid.UUID, dstDir string) (string, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !probe.Exists(a) {
		return "", fmt.Errorf("%w: %s", errs.ErrDoesNotExist, a.BundlePath)
	}
	if probe.Attached(a) {
		return "", fmt.Errorf("%w: detach before backup", errs.ErrAlreadyAttached)
	}

	dst := filepath.Join(dstDir, a.Name+model.BundleExt)
	if err := backup.CopyBundle(a.BundlePath, dst); err != nil {
		return "", fmt.Errorf("copy bundle: %w", err)
	}
	m.log.Info("archive backed up", zap.String("archive", id.String()), zap.String("dst", dst))
	return dst, nil
}

// CloudBackup zips the bundle into a temporary file (progress 0–0.5) and
// hands it to the uploader (progress 0.5–1), then removes the zip.
func (m *Manager) CloudBackup(ctx context.Context, id uuid.UUID, report backup.ReportFunc) error {
	if m.uploader == nil {
		return fmt.Errorf("cloud backup not configured")
	}
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !probe.Exists(a) {
		return fmt.Errorf("%w: %s", errs.ErrDoesNotExist, a.BundlePath)
	}
	if probe.Attached(a) {
		return fmt.Errorf("%w: detach before backup", errs.ErrAlreadyAttached)
	}
	if report == nil {
		report = func(float64) {}
	}

	tmp, err := os.CreateTemp("", a.ID.String()+"-*.zip")
	if err != nil {
		return fmt.Errorf("create temp zip: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			m.log.Warn("remove temp zip", zap.String("path", tmpPath), zap.Error(err))
		}
	}()
	_ = os.Remove(tmpPath) // ZipBundle wants a fresh path

	if err := backup.ZipBundle(ctx, a.BundlePath, tmpPath, func(f float64) {
		report(f / 2)
	}); err != nil {
		return fmt.Errorf("zip bundle: %w", err)
	}

	remote := a.Name + "-" + m.now().Format("20060102T150405") + ".zip"
	if err := m.uploader.Upload(ctx, tmpPath, remote, func(f float64) {
		report(0.5 + f/2)
	}); err != nil {
		return fmt.Errorf("upload %s: %w", remote, err)
	}
	report(1)
	m.log.Info("archive uploaded", zap.String("archive", id.String()), zap.String("remote", remote))
	return nil
}

// SetFavorite toggles the favorite flag.
func (m *Manager) SetFavorite(ctx context.Context, id uuid.UUID, fav bool) error {
	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	a.Favorite = fav
	return m.repo.Save(ctx, a)
}

// Rename changes the display name. The on-disk layout is keyed by id, so
// nothing moves.
func (m *Manager) Rename(ctx context.Context, id uuid.UUID, name string) error {
	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	a.Name = name
	return m.repo.Save(ctx, a)
}
