package executor

import (
	"sync"
	"time"

	"github.com/luxfi/compactrouter/clock"
)

// RateLimited is a delayed, rate-limited, optionally periodic signal: a
// first call schedules emission after BaseDelay; further calls within
// the rate window are coalesced (up to MaxDelay total), and at most one
// emission happens per MinPeriod window. If PeriodicInterval is
// non-zero, the signal also re-fires on that interval regardless of
// calls.
//
// Grounded on original_source/src/core/signal.h's
// PeriodicRateDelayedSignal<Delay, MaxDelay, Rate, Period>: "a single
// state machine with two timers (emit-timer, periodic-timer) and a
// `limited` flag captures every variant" (spec §9).
type RateLimited struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MinPeriod        time.Duration
	PeriodicInterval time.Duration

	clock  *clock.Clock
	handle func()

	mu        sync.Mutex
	limited   bool
	firstCall time.Time
	emitAt    time.Time
	emitTimer *clock.Timer
	periodic  *clock.Timer
	stopped   bool
}

// NewRateLimited constructs a RateLimited signal that invokes handle on
// emission. handle is always invoked via a fresh goroutine-scheduled
// timer callback, never synchronously from Trigger.
func NewRateLimited(c *clock.Clock, base, max, minPeriod, periodicInterval time.Duration, handle func()) *RateLimited {
	return &RateLimited{
		BaseDelay:        base,
		MaxDelay:         max,
		MinPeriod:        minPeriod,
		PeriodicInterval: periodicInterval,
		clock:            c,
		handle:           handle,
	}
}

// Start begins periodic re-emission, if PeriodicInterval is non-zero.
func (r *RateLimited) Start() {
	if r.PeriodicInterval <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.periodic = clock.AfterFunc(r.PeriodicInterval, r.periodicFire)
}

// Stop cancels all pending timers; Trigger becomes a no-op afterward.
func (r *RateLimited) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.emitTimer != nil {
		r.emitTimer.Stop()
	}
	if r.periodic != nil {
		r.periodic.Stop()
	}
}

func (r *RateLimited) periodicFire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.handle()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.periodic = clock.AfterFunc(r.PeriodicInterval, r.periodicFire)
}

// Trigger is the signal's "call operator": schedule (or coalesce into)
// a pending emission.
func (r *RateLimited) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	now := r.clock.Now()

	if r.limited {
		return
	}

	if !r.firstCall.IsZero() && r.MinPeriod > 0 && now.Sub(r.firstCall) < r.MinPeriod {
		r.limited = true
		wait := r.MinPeriod - now.Sub(r.firstCall)
		r.emitTimer = clock.AfterFunc(wait, r.liftLimit)
		return
	}

	if r.firstCall.IsZero() {
		r.firstCall = now
		r.emitAt = now.Add(r.BaseDelay)
		r.emitTimer = clock.AfterFunc(r.BaseDelay, r.fire)
		return
	}

	// Coalesce: reschedule, so long as we stay within MaxDelay of the
	// first call in this burst.
	if now.Add(r.BaseDelay).Sub(r.firstCall) < r.MaxDelay {
		if r.emitTimer != nil {
			r.emitTimer.Stop()
		}
		r.emitAt = now.Add(r.BaseDelay)
		r.emitTimer = clock.AfterFunc(r.BaseDelay, r.fire)
	}
}

func (r *RateLimited) fire() {
	r.mu.Lock()
	r.firstCall = time.Time{}
	r.mu.Unlock()

	r.handle()
}

func (r *RateLimited) liftLimit() {
	r.mu.Lock()
	r.limited = false
	r.mu.Unlock()

	r.Trigger()
}
