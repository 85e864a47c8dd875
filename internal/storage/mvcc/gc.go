// Licensed under the MIT License. See LICENSE file in the project root for details.

package mvcc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kianostad/gencache/internal/concurrency/genref"
)

// TrimResult reports what a single TrimEntry call did.
type TrimResult struct {
	Kept    int  // versions left in the chain
	Dropped int  // versions unlinked
	Empty   bool // only a tombstone at or below the floor remains
}

// TrimEntry removes versions no reader pinned at floor or later can observe.
//
// The first version with gen <= floor is the base: every snapshot at floor or
// newer that falls through the newer versions resolves to it, so it is kept
// and everything older is unlinked. When the base is a tombstone with nothing
// newer, the whole entry is dead and Empty is set so the caller can drop the
// key.
//
// The caller must hold the writer lock and floor must not exceed any live
// snapshot generation.
func TrimEntry[K comparable, V any](entry *Entry[K, V], floor genref.Generation) TrimResult {
	var res TrimResult
	if entry == nil {
		return res
	}

	head := entry.head.Load()
	var base *Version[V]
	for v := head; v != nil; v = v.next.Load() {
		res.Kept++
		if v.gen <= floor {
			base = v
			break
		}
	}
	if base == nil {
		return res
	}

	for v := base.next.Load(); v != nil; v = v.next.Load() {
		res.Dropped++
	}
	if res.Dropped > 0 {
		base.next.Store(nil)
	}
	res.Empty = base == head && base.tomb
	return res
}

// GC runs a collection function in the background whenever it is triggered
// and, optionally, on a fixed interval. Triggers that arrive while a
// collection is running are coalesced into one follow-up run.
type GC struct {
	collect  func()
	interval time.Duration

	wake     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stop     atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGC creates a collector loop around collect. An interval of zero
// disables periodic runs.
func NewGC(collect func(), interval time.Duration) *GC {
	return &GC{
		collect:  collect,
		interval: interval,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins the background loop. Starting twice, or after Stop, is a no-op.
func (gc *GC) Start() {
	if gc.stop.Load() || !gc.started.CompareAndSwap(false, true) {
		return
	}

	gc.wg.Add(1)
	go gc.run()
}

// Stop gracefully stops the loop and waits for an in-flight collection.
func (gc *GC) Stop() {
	gc.stopOnce.Do(func() {
		gc.stop.Store(true)
		close(gc.done)
	})
	gc.wg.Wait()
}

// Trigger requests a collection without blocking.
func (gc *GC) Trigger() {
	if gc.stop.Load() {
		return
	}
	select {
	case gc.wake <- struct{}{}:
	default:
		// A run is already pending
	}
}

// run is the main collection loop
func (gc *GC) run() {
	defer gc.wg.Done()

	var tick <-chan time.Time
	if gc.interval > 0 {
		ticker := time.NewTicker(gc.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-gc.done:
			return
		case <-gc.wake:
			gc.collect()
		case <-tick:
			gc.collect()
		}
	}
}
