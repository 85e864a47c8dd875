// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"iter"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/concurrency/genref"
)

// Snapshot is a read-only view of a dictionary pinned at one generation.
type Snapshot[K comparable, V any] struct {
	d       *Dictionary[K, V]
	gen     Generation
	lease   *lease[K, V]
	cleanup runtime.Cleanup
	closed  atomic.Bool
}

// lease owns the generation reference of a snapshot. It is kept separate
// from the snapshot so the runtime cleanup can release it once the snapshot
// itself is unreachable.
type lease[K comparable, V any] struct {
	d   *Dictionary[K, V]
	ref *genref.GenRef
}

// CreateSnapshot pins the last committed generation and returns a view of it.
// The caller must Close the snapshot.
func (d *Dictionary[K, V]) CreateSnapshot(ctx context.Context) *Snapshot[K, V] {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordSnapshot(time.Since(start))
		}
	}()

	ref := d.live.AcquireFunc(d.current)
	l := &lease[K, V]{d: d, ref: ref}
	s := &Snapshot[K, V]{
		d:     d,
		gen:   ref.Gen(),
		lease: l,
	}
	s.cleanup = runtime.AddCleanup(s, releaseLeaked[K, V], l)
	return s
}

// releaseLeaked runs on the runtime cleanup goroutine for snapshots that were
// never closed.
func releaseLeaked[K comparable, V any](l *lease[K, V]) {
	l.d.logger.Warn("snapshot was not closed",
		zap.Uint64("generation", uint64(l.ref.Gen())))
	if l.d.metrics != nil {
		l.d.metrics.RecordLeakedSnapshot()
	}
	l.d.release(l.ref)
}

// release drops ref and wakes the collector when it freed the oldest live
// generation.
func (d *Dictionary[K, V]) release(ref *genref.GenRef) {
	if d.live.Release(ref) && d.cfg.autoCollect {
		d.gc.Trigger()
	}
}

func (s *Snapshot[K, V]) check() {
	if s.closed.Load() {
		panic(ErrSnapshotClosed)
	}
}

// Gen returns the pinned generation.
func (s *Snapshot[K, V]) Gen() Generation {
	s.check()
	return s.gen
}

// Get returns the value of key at the pinned generation.
// This operation never blocks.
func (s *Snapshot[K, V]) Get(ctx context.Context, key K) (V, bool) {
	s.check()
	defer runtime.KeepAlive(s)

	entry := s.d.index.Get(key)
	if entry == nil {
		var z V
		return z, false
	}
	return entry.Get(s.gen)
}

// Keys yields every key present at the pinned generation, in no particular
// order. The sequence may be iterated more than once.
func (s *Snapshot[K, V]) Keys(ctx context.Context) iter.Seq[K] {
	s.check()
	return func(yield func(K) bool) {
		s.check()
		defer runtime.KeepAlive(s)

		it := s.d.index.NewIterator(s.gen)
		for it.Next() {
			if _, ok := it.Value(); !ok {
				continue
			}
			if k, _ := it.Key(); !yield(k) {
				return
			}
		}
	}
}

// All yields every key and value present at the pinned generation.
func (s *Snapshot[K, V]) All(ctx context.Context) iter.Seq2[K, V] {
	s.check()
	return func(yield func(K, V) bool) {
		s.check()
		defer runtime.KeepAlive(s)

		it := s.d.index.NewIterator(s.gen)
		for it.Next() {
			v, ok := it.Value()
			if !ok {
				continue
			}
			if k, _ := it.Key(); !yield(k, v) {
				return
			}
		}
	}
}

// Len returns the number of keys present at the pinned generation.
func (s *Snapshot[K, V]) Len(ctx context.Context) int {
	n := 0
	for range s.Keys(ctx) {
		n++
	}
	return n
}

// Close releases the pinned generation. Closing twice panics.
func (s *Snapshot[K, V]) Close(ctx context.Context) {
	if !s.closed.CompareAndSwap(false, true) {
		panic(ErrSnapshotClosed)
	}
	s.cleanup.Stop()
	s.d.release(s.lease.ref)
}
