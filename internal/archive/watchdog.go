package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/model"
)

// warnLead is how long before auto-close the pre-warning fires, and the
// minimum timeout below which warning makes no sense.
const (
	warnLead    = time.Minute
	minWarnable = 3 * time.Minute
)

func watchKey(id uuid.UUID) string { return "watchdog/" + id.String() }

// Watch arms (or re-arms) the auto-close timer for an attached archive.
// customDelay of zero selects the global timeout. A no-op when auto-eject
// is disabled. Arming always cancels and replaces any previous timer, so at
// most one timer per archive ever exists.
func (m *Manager) Watch(ctx context.Context, a *model.Archive, customDelay time.Duration) {
	if !m.cfg.AutoEject {
		return
	}

	timeout := customDelay
	if timeout <= 0 {
		timeout = time.Duration(m.cfg.AutoEjectTimeoutMin) * time.Minute
	}

	id := a.ID
	m.notifier.Cancel(id)
	m.notifier.Clear(id)

	m.sched.Arm(watchKey(id), timeout, func() {
		m.fireWatchdog(id)
	})

	if timeout >= minWarnable {
		m.notifier.Schedule(id, timeout-warnLead,
			fmt.Sprintf("%s closes soon", a.Name),
			fmt.Sprintf("The volume will be closed in %d seconds.", int(warnLead.Seconds())))
	}

	a.Watched = true
	a.ScheduledClose = fmt.Sprintf("Closes at %s", m.now().Add(timeout).Format("15:04"))
	if err := m.repo.Save(ctx, a); err != nil {
		m.log.Error("persist watch state", zap.String("archive", id.String()), zap.Error(err))
	}
	m.log.Debug("watchdog armed",
		zap.String("archive", id.String()),
		zap.Duration("timeout", timeout))
}

// fireWatchdog runs when the auto-close timer expires. The archive is
// re-fetched by id: it may have been detached, removed or re-armed since
// the timer was set.
func (m *Manager) fireWatchdog(id uuid.UUID) {
	ctx := context.Background()
	if _, err := m.repo.Get(ctx, id); err != nil {
		if !errors.Is(err, errs.ErrRecordNotFound) {
			m.log.Error("watchdog fetch", zap.String("archive", id.String()), zap.Error(err))
		}
		return
	}
	m.log.Info("watchdog closing idle archive", zap.String("archive", id.String()))
	if err := m.Detach(ctx, id); err != nil {
		if errors.Is(err, errs.ErrNotAttached) {
			return
		}
		m.log.Error("watchdog detach", zap.String("archive", id.String()), zap.Error(err))
	}
}

// Unwatch disarms the auto-close timer and clears the watch state.
func (m *Manager) Unwatch(ctx context.Context, id uuid.UUID) error {
	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	m.unwatchLocked(ctx, a)
	return m.repo.Save(ctx, a)
}

// unwatchLocked clears watch state on a without persisting; the caller
// saves the record.
func (m *Manager) unwatchLocked(_ context.Context, a *model.Archive) {
	m.sched.Cancel(watchKey(a.ID))
	m.notifier.Cancel(a.ID)
	m.notifier.Clear(a.ID)
	a.Watched = false
	a.ScheduledClose = ""
}

// Postpone pushes the auto-close back by delay from now. Used by the
// pre-warning notification's postpone action.
func (m *Manager) Postpone(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	a, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Attached {
		return fmt.Errorf("%w: %s", errs.ErrNotAttached, a.MountPath)
	}
	m.Watch(ctx, a, delay)
	return nil
}
