// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package core provides a generation-versioned snapshot dictionary.
//
// A Dictionary is an in-memory key/value map with one writer and any number
// of readers. Every commit produces a new generation. Readers take a Snapshot
// that pins the generation committed at that moment and keep seeing exactly
// that state, however many writes follow, until they Close it. Old versions
// are reclaimed by a collector once no live snapshot can observe them.
//
// # Key Features
//
//   - Stable, generation-pinned snapshots that never block on the writer
//   - Single-writer commits: Set, Remove, Clear, batches and update scopes
//   - One generation bump per commit, however many keys it touches
//   - Shared, reference-counted generation objects for snapshots of the same generation
//   - Background collection of unreachable versions and dead keys
//   - Metrics, structured logging and JSON/msgpack dumps of a snapshot
//
// # Usage Examples
//
// Basic operations:
//
//	d := core.New[string, string](core.WithName("routes"))
//	defer d.Close(ctx)
//
//	d.Set(ctx, "home", "/")
//	d.Remove(ctx, "old")
//
// Snapshots:
//
//	snap := d.CreateSnapshot(ctx)
//	defer snap.Close(ctx)
//
//	d.Set(ctx, "home", "/index") // not visible to snap
//	v, ok := snap.Get(ctx, "home") // "/", true
//
//	for k := range snap.Keys(ctx) {
//	    fmt.Println(k)
//	}
//
// Update scopes:
//
//	gen, err := d.Update(ctx, func(w *core.Writer[string, string]) error {
//	    w.Set("a", "1")
//	    w.Set("b", "2")
//	    return nil // both writes commit under gen
//	})
//
// # Dangers and Warnings
//
//   - **Snapshot Lifetime**: Every snapshot must be closed. An unclosed snapshot pins its
//     generation until the Go garbage collector finds it, and a warning is logged.
//   - **Double Close**: Closing a snapshot twice, or using it after Close, panics with ErrSnapshotClosed.
//   - **Value Mutation**: Stored values are shared with every snapshot that sees them. Do not
//     mutate a value after storing it; []byte values are copied on write.
//   - **Writer Contention**: Writes are serialised by a mutex. Long update scopes delay other
//     writers and the collector, never readers.
//   - **Memory Usage**: Versions pinned by long-lived snapshots stay in memory.
//
// # Generations
//
// The dictionary starts at generation 0, the empty state. Each commit
// publishes committed+1 after all of its versions are linked, so a snapshot
// taken at any moment sees either all or none of a commit. Generations are
// never reused.
//
// # Collection
//
// The collector computes floor = min(live snapshot generations, committed).
// For every key it keeps the newest version at or below floor and everything
// newer, and drops the rest. Keys whose only remaining version is a tombstone
// at or below floor are removed from the index. Collection runs every
// CollectEvery commits, whenever releasing a snapshot frees the oldest live
// generation, on an optional interval, and on demand through Collect.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reads perform atomic loads only.
package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/cpu"

	"github.com/kianostad/gencache/internal/concurrency/genref"
	"github.com/kianostad/gencache/internal/monitoring/metrics"
	"github.com/kianostad/gencache/internal/storage/index"
	"github.com/kianostad/gencache/internal/storage/mvcc"
)

// Generation is a logical point in time of a dictionary.
type Generation = genref.Generation

// Dictionary is a generation-versioned map from K to V.
type Dictionary[K comparable, V any] struct {
	_         cpu.CacheLinePad
	committed atomic.Uint64
	_         cpu.CacheLinePad

	wmu   sync.Mutex // writer lock
	index *index.HashIndex[K, V]
	live  *genref.Registry
	gc    *mvcc.GC

	// guarded by wmu
	sinceCollect int

	collectPending atomic.Bool
	closed         atomic.Bool

	cfg     config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an empty dictionary at generation 0.
func New[K comparable, V any](opts ...Option) *Dictionary[K, V] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ownMetrics {
		cfg.metrics = metrics.NewMetrics()
	}

	d := &Dictionary[K, V]{
		index:   index.NewHashIndex[K, V](cfg.buckets),
		live:    genref.NewRegistry(),
		cfg:     cfg,
		logger:  cfg.logger.With(zap.String("dictionary", cfg.name)),
		metrics: cfg.metrics,
	}
	d.index.SetLoadFactor(cfg.loadFactor)
	d.gc = mvcc.NewGC(d.collectBackground, cfg.collectInterval)
	if cfg.autoCollect {
		d.gc.Start()
	}
	return d
}

// Name returns the name given with WithName.
func (d *Dictionary[K, V]) Name() string {
	return d.cfg.name
}

func (d *Dictionary[K, V]) current() Generation {
	return Generation(d.committed.Load())
}

// Generation returns the last committed generation.
func (d *Dictionary[K, V]) Generation() Generation {
	return d.current()
}

// Set stores value under key in a new generation and returns it.
func (d *Dictionary[K, V]) Set(ctx context.Context, key K, value V) Generation {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordSet(time.Since(start))
		}
	}()

	d.wmu.Lock()
	defer d.unlockWriter()

	gen := d.current() + 1
	d.setLocked(gen, key, value)
	d.publishLocked(gen)
	return gen
}

// Remove deletes key in a new generation and returns it. Removing an absent
// key still commits a generation.
func (d *Dictionary[K, V]) Remove(ctx context.Context, key K) Generation {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordRemove(time.Since(start))
		}
	}()

	d.wmu.Lock()
	defer d.unlockWriter()

	gen := d.current() + 1
	d.removeLocked(gen, key)
	d.publishLocked(gen)
	return gen
}

// Clear deletes every key in a single new generation and returns it.
func (d *Dictionary[K, V]) Clear(ctx context.Context) Generation {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordClear(time.Since(start))
		}
	}()

	d.wmu.Lock()
	defer d.unlockWriter()

	gen := d.current() + 1
	n := d.clearLocked(gen)
	d.publishLocked(gen)

	d.logger.Info("cleared dictionary",
		zap.Uint64("generation", uint64(gen)),
		zap.Int("keys", n))
	return gen
}

// setLocked links a value version for key at gen. Caller holds wmu.
func (d *Dictionary[K, V]) setLocked(gen Generation, key K, value V) {
	entry, _ := d.index.GetOrCreate(key)
	entry.Push(gen, value, false)
}

// removeLocked links a tombstone for key at gen unless the key is already
// absent. Caller holds wmu.
func (d *Dictionary[K, V]) removeLocked(gen Generation, key K) {
	entry := d.index.Get(key)
	if entry == nil || entry.Deleted() {
		return
	}
	var zero V
	entry.Push(gen, zero, true)
}

// clearLocked tombstones every present key at gen and returns how many it
// touched. Caller holds wmu.
func (d *Dictionary[K, V]) clearLocked(gen Generation) int {
	var zero V
	n := 0
	for entry := range d.index.Entries() {
		if entry.Deleted() {
			continue
		}
		entry.Push(gen, zero, true)
		n++
	}
	return n
}

// publishLocked makes gen visible to new readers. Caller holds wmu.
func (d *Dictionary[K, V]) publishLocked(gen Generation) {
	d.committed.Store(uint64(gen))
	d.sinceCollect++
}

// unlockWriter releases wmu and then wakes the collector when enough
// commits have accumulated or an earlier run was deferred, whether or not
// this writer committed.
func (d *Dictionary[K, V]) unlockWriter() {
	trigger := d.cfg.autoCollect &&
		(d.sinceCollect >= d.cfg.collectEvery || d.collectPending.Load())
	d.wmu.Unlock()

	if trigger {
		d.gc.Trigger()
	}
}

// Get returns the value of key at the last committed generation without
// creating a snapshot.
func (d *Dictionary[K, V]) Get(ctx context.Context, key K) (V, bool) {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordGet(time.Since(start))
		}
	}()

	// Without a pinned generation the collector may trim below the
	// generation we resolve at; it can only do so after a newer commit, so
	// retry until the committed generation is stable across the read.
	for {
		gen := d.current()
		var (
			val V
			ok  bool
		)
		if entry := d.index.Get(key); entry != nil {
			val, ok = entry.Get(gen)
		}
		if d.current() == gen {
			return val, ok
		}
	}
}

// Count returns the number of keys in the index, tombstoned keys included.
func (d *Dictionary[K, V]) Count() int {
	return d.index.Len()
}

// GenCount returns the number of distinct generations pinned by snapshots.
func (d *Dictionary[K, V]) GenCount() int {
	return d.live.GenCount()
}

// SnapCount returns the number of snapshots not yet released.
func (d *Dictionary[K, V]) SnapCount() int {
	return int(d.live.RefCount())
}

// Metrics returns the metrics instance, or nil when metrics are disabled.
func (d *Dictionary[K, V]) Metrics() *metrics.Metrics {
	return d.metrics
}

// GetMetrics refreshes the generation gauges and returns current metrics.
func (d *Dictionary[K, V]) GetMetrics(ctx context.Context) metrics.MetricsSnapshot {
	if d.metrics == nil {
		return metrics.MetricsSnapshot{}
	}
	d.refreshGauges()
	return d.metrics.GetStats()
}

func (d *Dictionary[K, V]) refreshGauges() {
	if d.metrics == nil {
		return
	}
	stats := d.metrics.GetStats()
	d.metrics.SetGauges(metrics.Gauges{
		Generation:      uint64(d.current()),
		LiveGenerations: uint64(d.live.GenCount()), // #nosec G115
		LiveSnapshots:   uint64(d.live.RefCount()), // #nosec G115
		Keys:            uint64(d.index.Len()),     // #nosec G115
		ChainLength:     stats.Gauges.ChainLength,
	})
}

// Close stops the background collector and, unless metrics were supplied
// with WithMetrics, the metrics processor. Snapshots stay readable.
func (d *Dictionary[K, V]) Close(ctx context.Context) {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.gc.Stop()
	if d.cfg.ownMetrics && d.metrics != nil {
		d.metrics.Close()
	}
	d.logger.Debug("dictionary closed", zap.Uint64("generation", uint64(d.current())))
}
