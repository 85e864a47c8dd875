// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/monitoring/metrics"
)

type staged[V any] struct {
	val  V
	tomb bool
}

// Writer stages the writes of one Update call. Reads through the writer see
// its own staged writes over the committed state. A Writer is only valid
// inside the function passed to Update.
type Writer[K comparable, V any] struct {
	d       *Dictionary[K, V]
	base    Generation
	writes  map[K]staged[V]
	cleared bool
	done    bool
}

func (w *Writer[K, V]) check() {
	if w.done {
		panic(ErrWriterDone)
	}
}

// Base returns the committed generation the update started from.
func (w *Writer[K, V]) Base() Generation {
	return w.base
}

// Set stages key = value.
func (w *Writer[K, V]) Set(key K, value V) {
	w.check()
	w.writes[key] = staged[V]{val: value}
}

// Remove stages the removal of key.
func (w *Writer[K, V]) Remove(key K) {
	w.check()
	w.writes[key] = staged[V]{tomb: true}
}

// Clear stages the removal of every key. Writes staged after Clear survive it.
func (w *Writer[K, V]) Clear() {
	w.check()
	clear(w.writes)
	w.cleared = true
}

// Get returns the value of key as the update would commit it so far.
func (w *Writer[K, V]) Get(key K) (V, bool) {
	w.check()
	if s, ok := w.writes[key]; ok {
		if s.tomb {
			var z V
			return z, false
		}
		return s.val, true
	}
	if w.cleared {
		var z V
		return z, false
	}
	// The writer lock is held, so nothing below base can be trimmed.
	entry := w.d.index.Get(key)
	if entry == nil {
		var z V
		return z, false
	}
	return entry.Get(w.base)
}

// Staged returns the number of distinct keys written so far.
func (w *Writer[K, V]) Staged() int {
	return len(w.writes)
}

func (w *Writer[K, V]) empty() bool {
	return !w.cleared && len(w.writes) == 0
}

// Update runs fn with exclusive write access. When fn returns nil every
// staged write commits under one new generation, which is returned. When fn
// returns an error, or panics, nothing is applied and the committed
// generation is returned unchanged. An update that stages nothing does not
// commit a generation.
//
// Readers and snapshot creation are not blocked while fn runs; snapshots
// created meanwhile see the previous generation. fn must not call the write
// methods of d: the writer lock is not reentrant.
func (d *Dictionary[K, V]) Update(ctx context.Context, fn func(w *Writer[K, V]) error) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return d.current(), err
	}
	if d.closed.Load() {
		return d.current(), ErrClosed
	}

	start := time.Now()

	d.wmu.Lock()
	defer d.unlockWriter()

	w := &Writer[K, V]{
		d:      d,
		base:   d.current(),
		writes: make(map[K]staged[V]),
	}
	defer func() { w.done = true }()

	if err := fn(w); err != nil {
		if d.metrics != nil {
			d.metrics.RecordError(metrics.OpUpdate)
		}
		d.logger.Debug("update rolled back", zap.Error(err))
		return w.base, err
	}
	if w.empty() {
		return w.base, nil
	}

	gen := w.base + 1
	if w.cleared {
		d.clearLocked(gen)
	}
	for key, s := range w.writes {
		if s.tomb {
			d.removeLocked(gen, key)
		} else {
			d.setLocked(gen, key, s.val)
		}
	}
	d.publishLocked(gen)

	if d.metrics != nil {
		d.metrics.RecordUpdate(time.Since(start), len(w.writes))
	}
	d.logger.Debug("committed update",
		zap.Uint64("generation", uint64(gen)),
		zap.Int("writes", len(w.writes)),
		zap.Bool("cleared", w.cleared))
	return gen, nil
}
