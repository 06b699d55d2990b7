// Package clock provides a mockable clock and a cancellable timer,
// grounded on the teacher's pkg/go/utils/timer/mockable.Clock. Every
// component with a timer (rib entry expiry, ndb TTLs, router
// self-announcement, sloppygroup gossip) takes a *clock.Clock, whose Now
// tests can pin and advance with Set/Advance. Timers made by AfterFunc
// always run on real time: moving a mocked Clock does not fire them.
package clock

import (
	"sync"
	"time"
)

// Clock is a mockable wall clock.
type Clock struct {
	mu     sync.Mutex
	time   time.Time
	mocked bool
}

// New returns a Clock backed by the real wall clock.
func New() *Clock {
	return &Clock{time: time.Now()}
}

// Now returns the current time: the mocked time if Set has been called,
// or the real wall clock otherwise.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mocked {
		return c.time
	}
	return time.Now()
}

// Set pins the clock to t, entering mocked mode.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = t
	c.mocked = true
}

// Advance moves a mocked clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

// Real returns the clock to tracking the real wall clock.
func (c *Clock) Real() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mocked = false
}

// Timer is a cancellable one-shot timer. A cancelled callback that
// nevertheless races with dispatch is a no-op, per spec §5
// ("Cancellation & timeouts"): Stop returning false after the callback
// has already fired is the expected, harmless race.
type Timer struct {
	t *time.Timer
}

// AfterFunc schedules fn to run after d. It is a thin wrapper over
// time.AfterFunc; the indirection exists so callers depend on
// clock.Timer rather than reaching for time.AfterFunc directly
// throughout the core. The timer always runs on real time, whatever a
// Clock's mocked time is.
func AfterFunc(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, fn)}
}

// Stop cancels the timer. It returns true if the cancellation stopped
// the timer before it fired.
func (t *Timer) Stop() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}

// Reset reschedules the timer to fire after d, per the "refresh its
// expiry timer" behavior required throughout rib and ndb.
func (t *Timer) Reset(d time.Duration) bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Reset(d)
}
