// Package archive implements the encrypted sparse-bundle lifecycle:
// creation, attach/detach, compaction, removal, backup, recovery and
// automatic close of idle volumes.
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/backup"
	"github.com/and161185/arc-keeper/internal/config"
	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/execx"
	"github.com/and161185/arc-keeper/internal/keystore"
	"github.com/and161185/arc-keeper/internal/model"
	"github.com/and161185/arc-keeper/internal/notify"
	"github.com/and161185/arc-keeper/internal/repository"
	"github.com/and161185/arc-keeper/internal/sched"
)

// keyState tracks what the manager knows about an attached volume's key.
type keyState int

const (
	// keyUnknown: the volume is attached but the key was never seen in
	// this process (typically discovered during reconciliation).
	keyUnknown keyState = iota
	// keyHeld: the derived key is cached and usable for detach-time
	// compaction.
	keyHeld
)

type openKey struct {
	state keyState
	key   string
}

// Manager coordinates all archive operations. All methods are safe for
// concurrent use; operations on the same archive are serialized.
type Manager struct {
	repo     repository.ArchiveRepository
	keys     *keystore.KeyStore
	runner   execx.Runner
	sched    sched.Scheduler
	notifier notify.Notifier
	uploader backup.Uploader
	cfg      config.Config
	log      *zap.Logger

	now func() time.Time

	mu       sync.Mutex
	openKeys map[uuid.UUID]openKey
	locks    map[uuid.UUID]*sync.Mutex

	// anyOpen publishes whether at least one volume is attached.
	anyOpenMu sync.Mutex
	anyOpen   bool
	onAnyOpen func(bool)
}

// NewManager wires a Manager from its collaborators. The uploader may be
// nil when cloud backup is not configured.
func NewManager(
	repo repository.ArchiveRepository,
	keys *keystore.KeyStore,
	runner execx.Runner,
	scheduler sched.Scheduler,
	notifier notify.Notifier,
	uploader backup.Uploader,
	cfg config.Config,
	log *zap.Logger,
) *Manager {
	return &Manager{
		repo:     repo,
		keys:     keys,
		runner:   runner,
		sched:    scheduler,
		notifier: notifier,
		uploader: uploader,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		openKeys: make(map[uuid.UUID]openKey),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// OnAnyOpenChange registers a callback invoked whenever the "at least one
// volume attached" signal flips. Set before Start.
func (m *Manager) OnAnyOpenChange(fn func(bool)) {
	m.anyOpenMu.Lock()
	m.onAnyOpen = fn
	m.anyOpenMu.Unlock()
}

func (m *Manager) publishAnyOpen(open bool) {
	m.anyOpenMu.Lock()
	changed := m.anyOpen != open
	m.anyOpen = open
	fn := m.onAnyOpen
	m.anyOpenMu.Unlock()
	if changed && fn != nil {
		fn(open)
	}
}

// List returns all archive records, newest first.
func (m *Manager) List(ctx context.Context) ([]*model.Archive, error) {
	return m.repo.List(ctx)
}

// Get returns one archive record by id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*model.Archive, error) {
	return m.repo.Get(ctx, id)
}

// FindByName returns the record whose name matches exactly.
func (m *Manager) FindByName(ctx context.Context, name string) (*model.Archive, error) {
	list, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: name %q", errs.ErrRecordNotFound, name)
}

// lockFor returns the per-archive mutex, creating it on first use.
func (m *Manager) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) rememberKey(id uuid.UUID, key string) {
	m.mu.Lock()
	m.openKeys[id] = openKey{state: keyHeld, key: key}
	m.mu.Unlock()
}

func (m *Manager) rememberUnknownKey(id uuid.UUID) {
	m.mu.Lock()
	if _, ok := m.openKeys[id]; !ok {
		m.openKeys[id] = openKey{state: keyUnknown}
	}
	m.mu.Unlock()
}

func (m *Manager) forgetKey(id uuid.UUID) {
	m.mu.Lock()
	delete(m.openKeys, id)
	m.mu.Unlock()
}

// heldKey returns the cached derived key, if one is held for the archive.
func (m *Manager) heldKey(id uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.openKeys[id]
	if !ok || k.state != keyHeld {
		return "", false
	}
	return k.key, true
}
