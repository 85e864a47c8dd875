// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/monitoring/metrics"
)

// BatchOpType represents the type of batch operation
type BatchOpType int

const (
	BatchOpSet BatchOpType = iota
	BatchOpRemove
	BatchOpClear
)

// String returns the operation name.
func (t BatchOpType) String() string {
	switch t {
	case BatchOpSet:
		return "set"
	case BatchOpRemove:
		return "remove"
	case BatchOpClear:
		return "clear"
	default:
		return "unknown"
	}
}

// BatchOperation represents a single operation in a batch
type BatchOperation[K comparable, V any] struct {
	Op    BatchOpType
	Key   K
	Value V
}

// Batch is an ordered list of writes committed under one generation.
// Later operations on the same key win. A batch is not safe for concurrent
// use and can be applied once.
type Batch[K comparable, V any] struct {
	operations []BatchOperation[K, V]
	applied    bool
	gen        Generation
}

// NewBatch creates a new batch
func NewBatch[K comparable, V any]() *Batch[K, V] {
	return &Batch[K, V]{
		operations: make([]BatchOperation[K, V], 0, 16),
	}
}

// Set adds a set operation to the batch
func (b *Batch[K, V]) Set(key K, value V) {
	b.operations = append(b.operations, BatchOperation[K, V]{
		Op:    BatchOpSet,
		Key:   key,
		Value: value,
	})
}

// Remove adds a remove operation to the batch
func (b *Batch[K, V]) Remove(key K) {
	b.operations = append(b.operations, BatchOperation[K, V]{
		Op:  BatchOpRemove,
		Key: key,
	})
}

// Clear adds an operation removing every key present at that point of the batch
func (b *Batch[K, V]) Clear() {
	b.operations = append(b.operations, BatchOperation[K, V]{Op: BatchOpClear})
}

// Size returns the number of operations in the batch
func (b *Batch[K, V]) Size() int {
	return len(b.operations)
}

// Operations returns the queued operations.
func (b *Batch[K, V]) Operations() []BatchOperation[K, V] {
	return b.operations
}

// Reset drops all operations and references so the batch can be reused.
func (b *Batch[K, V]) Reset() {
	clear(b.operations)
	b.operations = b.operations[:0]
	b.applied = false
	b.gen = 0
}

// IsApplied returns whether the batch has been applied
func (b *Batch[K, V]) IsApplied() bool {
	return b.applied
}

// Generation returns the generation the batch committed as, or 0.
func (b *Batch[K, V]) Generation() Generation {
	return b.gen
}

// Apply commits every operation of batch under a single new generation.
func (d *Dictionary[K, V]) Apply(ctx context.Context, batch *Batch[K, V]) (Generation, error) {
	if batch.applied {
		return batch.gen, ErrBatchAlreadyApplied
	}
	if len(batch.operations) == 0 {
		return d.current(), ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		if d.metrics != nil {
			d.metrics.RecordError(metrics.OpApply)
		}
		return d.current(), err
	}
	if d.closed.Load() {
		return d.current(), ErrClosed
	}

	start := time.Now()

	d.wmu.Lock()
	defer d.unlockWriter()

	gen := d.current() + 1
	for _, op := range batch.operations {
		switch op.Op {
		case BatchOpSet:
			d.setLocked(gen, op.Key, op.Value)
		case BatchOpRemove:
			d.removeLocked(gen, op.Key)
		case BatchOpClear:
			d.clearLocked(gen)
		}
	}
	d.publishLocked(gen)

	batch.applied = true
	batch.gen = gen

	if d.metrics != nil {
		d.metrics.RecordApply(time.Since(start), len(batch.operations))
	}
	d.logger.Debug("applied batch",
		zap.Uint64("generation", uint64(gen)),
		zap.Int("operations", len(batch.operations)))
	return gen, nil
}
