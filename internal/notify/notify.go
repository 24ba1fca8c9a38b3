// Package notify is the user-notification collaborator used by the watchdog
// to warn about imminent auto-closes.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/arc-keeper/internal/execx"
	"github.com/and161185/arc-keeper/internal/sched"
)

// Notifier schedules, cancels and clears per-archive notifications.
type Notifier interface {
	// Schedule arranges a notification for the archive after delay,
	// replacing any previously scheduled one for the same archive.
	Schedule(id uuid.UUID, delay time.Duration, title, body string)
	// Cancel drops a pending notification for the archive, if any.
	Cancel(id uuid.UUID)
	// Clear removes an already delivered notification, if the platform
	// supports retraction.
	Clear(id uuid.UUID)
}

// Noop discards all notifications.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) Schedule(uuid.UUID, time.Duration, string, string) {}
func (Noop) Cancel(uuid.UUID)                                  {}
func (Noop) Clear(uuid.UUID)                                   {}

// Script delivers notifications by running osascript at fire time,
// scheduled through the shared Scheduler so cancel-and-replace semantics
// match the watchdog's.
type Script struct {
	runner execx.Runner
	sched  sched.Scheduler
	log    *zap.Logger
}

var _ Notifier = (*Script)(nil)

// NewScript constructs an osascript-backed notifier.
func NewScript(runner execx.Runner, scheduler sched.Scheduler, log *zap.Logger) *Script {
	if log == nil {
		log = zap.NewNop()
	}
	return &Script{runner: runner, sched: scheduler, log: log}
}

func notifyKey(id uuid.UUID) string { return "notify/" + id.String() }

// Schedule implements Notifier.
func (s *Script) Schedule(id uuid.UUID, delay time.Duration, title, body string) {
	s.sched.Arm(notifyKey(id), delay, func() {
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		res, err := s.runner.Run(context.Background(), "osascript", []string{"-e", script}, "")
		if err != nil {
			s.log.Error("notification delivery failed", zap.String("archive", id.String()), zap.Error(err))
			return
		}
		if !res.Succeeded() {
			s.log.Error("osascript exited non-zero",
				zap.String("archive", id.String()), zap.Int("code", res.ExitCode))
		}
	})
}

// Cancel implements Notifier.
func (s *Script) Cancel(id uuid.UUID) {
	s.sched.Cancel(notifyKey(id))
}

// Clear implements Notifier. osascript notifications cannot be retracted
// once shown, so delivered ones are left alone.
func (s *Script) Clear(id uuid.UUID) {}
