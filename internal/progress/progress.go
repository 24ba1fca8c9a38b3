// Package progress publishes fractional operation progress to a UI-facing
// sink, throttled so rapid updates from worker goroutines do not flood the
// main context.
package progress

import (
	"sync"
	"time"
)

// Reset is the sentinel for "no operation running".
const Reset = -1.0

// DefaultInterval is the minimum spacing between throttled updates.
const DefaultInterval = 300 * time.Millisecond

// Sink receives progress values in [0,1], or Reset.
type Sink func(value float64)

// Throttler rate-limits progress updates. Terminal and reset values
// (exactly 0, 1 or Reset) always pass so operation start and end are never
// dropped; everything in between passes at most once per interval.
type Throttler struct {
	mu       sync.Mutex
	sink     Sink
	interval time.Duration
	now      func() time.Time
	last     time.Time
	hasLast  bool
}

// NewThrottler wraps sink with the default interval.
func NewThrottler(sink Sink) *Throttler {
	return &Throttler{sink: sink, interval: DefaultInterval, now: time.Now}
}

// NewThrottlerWithClock is NewThrottler with an injectable clock for tests.
func NewThrottlerWithClock(sink Sink, interval time.Duration, now func() time.Time) *Throttler {
	return &Throttler{sink: sink, interval: interval, now: now}
}

// Report forwards value to the sink unless it arrives inside the throttle
// window. Reports whether the value was forwarded.
func (t *Throttler) Report(value float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	bypass := value == 0 || value == 1 || value == Reset
	if !bypass && t.hasLast && t.now().Sub(t.last) < t.interval {
		return false
	}
	t.last = t.now()
	t.hasLast = true
	t.sink(value)
	return true
}
