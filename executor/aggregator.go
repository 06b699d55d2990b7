package executor

import (
	"sync"
	"time"

	"github.com/luxfi/compactrouter/clock"
)

// Aggregator implements the aggregation-buffer pattern spec §4.E/§4.F/
// §4.H share: "the first queued announce opens a timer; subsequent
// announces for the same origin overwrite the pending announce; on
// timer expiry the accumulated map is flattened ... and sent". K is the
// outer batching key (typically a peer); SK is the sub-key within one
// batch (typically an origin public key or node ID) that later entries
// overwrite.
//
// Grounded on original_source/src/core/signal.h's DeferrableSignal
// timer-then-flush shape, generalized across the three call sites the
// spec names rather than duplicated per package.
type Aggregator[K comparable, SK comparable, V any] struct {
	mu      sync.Mutex
	window  time.Duration
	clk     *clock.Clock
	pending map[K]map[SK]V
	timers  map[K]*clock.Timer
	flush   func(key K, batch map[SK]V)
}

// NewAggregator returns an Aggregator that flushes each key's batch
// window after window elapses, calling flush exactly once per opened
// window.
func NewAggregator[K comparable, SK comparable, V any](clk *clock.Clock, window time.Duration, flush func(K, map[SK]V)) *Aggregator[K, SK, V] {
	return &Aggregator[K, SK, V]{
		window:  window,
		clk:     clk,
		pending: make(map[K]map[SK]V),
		timers:  make(map[K]*clock.Timer),
		flush:   flush,
	}
}

// Add queues value under key/subKey, overwriting any pending value for
// the same (key, subKey) pair, and opens key's window timer if this is
// the first item queued for key.
func (a *Aggregator[K, SK, V]) Add(key K, subKey SK, value V) {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch, ok := a.pending[key]
	if !ok {
		batch = make(map[SK]V)
		a.pending[key] = batch
		a.timers[key] = clock.AfterFunc(a.window, func() { a.fire(key) })
	}
	batch[subKey] = value
}

func (a *Aggregator[K, SK, V]) fire(key K) {
	a.mu.Lock()
	batch := a.pending[key]
	delete(a.pending, key)
	delete(a.timers, key)
	a.mu.Unlock()

	if len(batch) > 0 {
		a.flush(key, batch)
	}
}

// Flush immediately flushes and cancels key's pending window, if any.
// Used on shutdown to avoid losing a final in-flight batch.
func (a *Aggregator[K, SK, V]) Flush(key K) {
	a.mu.Lock()
	batch := a.pending[key]
	if t, ok := a.timers[key]; ok {
		t.Stop()
	}
	delete(a.pending, key)
	delete(a.timers, key)
	a.mu.Unlock()

	if len(batch) > 0 {
		a.flush(key, batch)
	}
}
