// Package sched provides a keyed deferred-execution scheduler. At most one
// timer exists per key: arming a key that is already armed cancels and
// replaces the previous timer, never racing it.
package sched

import (
	"sync"
	"time"
)

// Scheduler arms and cancels deferred callbacks by key.
type Scheduler interface {
	// Arm schedules fn to run after delay, replacing any timer for key.
	Arm(key string, delay time.Duration, fn func())
	// Cancel stops the timer for key if armed; reports whether one existed.
	Cancel(key string) bool
	// FireAt returns the scheduled fire time for key, if armed.
	FireAt(key string) (time.Time, bool)
}

type entry struct {
	timer  *time.Timer
	fireAt time.Time
}

// TimerScheduler is the wall-clock Scheduler used in production.
type TimerScheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler constructs an empty scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{entries: make(map[string]*entry)}
}

// Arm implements Scheduler.
func (s *TimerScheduler) Arm(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		old.timer.Stop()
	}

	e := &entry{fireAt: time.Now().Add(delay)}
	e.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// Only clear our own entry; a rearm may have replaced it already.
		if cur, ok := s.entries[key]; ok && cur == e {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.entries[key] = e
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, key)
	return true
}

// FireAt implements Scheduler.
func (s *TimerScheduler) FireAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Len reports how many timers are currently armed.
func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels every armed timer.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
}
