// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package gencache provides a generation-versioned in-memory dictionary with
// cheap, stable snapshots.
//
// This is the public API of the library. Every committed write produces a new
// generation; a snapshot pins one generation and reads it for as long as it
// is open, while writers keep committing and a background collector reclaims
// versions no open snapshot can observe.
//
// # Quick Start
//
//	import "github.com/kianostad/gencache"
//
//	d := gencache.New[string, int]()
//	defer d.Close(ctx)
//
//	d.Set(ctx, "a", 1)
//	snap := d.CreateSnapshot(ctx)
//	defer snap.Close(ctx)
//
//	d.Set(ctx, "a", 2)
//	v, ok := snap.Get(ctx, "a") // 1, true
//
// # Key Features
//
//   - Snapshot reads never block and never take a lock
//   - One writer at a time, serialized by a single mutex per dictionary
//   - Generation counting shared by all snapshots of the same generation
//   - Version collection driven by commit count, snapshot release and an
//     optional timer
//   - Multi-key updates and batches committed under one generation
//   - Metrics with Prometheus export
//
// # Usage Examples
//
// Multi-key update:
//
//	gen, err := d.Update(ctx, func(w *gencache.Writer[string, int]) error {
//	    w.Set("a", 1)
//	    w.Remove("b")
//	    return nil
//	})
//
// Batches:
//
//	batch := gencache.NewBatch[string, int]()
//	batch.Set("a", 1)
//	batch.Clear()
//	gen, err := d.Apply(ctx, batch)
//
// Iteration:
//
//	for k, v := range snap.All(ctx) {
//	    fmt.Println(k, v)
//	}
//
// # Dangers and Warnings
//
//   - Snapshots must be closed. An unclosed snapshot pins its generation
//     until the garbage collector finds it, and is logged as a leak.
//   - Using a snapshot after Close, or closing it twice, panics.
//   - Values are shared between generations; mutating a stored value is
//     visible to every snapshot holding it.
//
// # See Also
//
// For the dictionary internals, see the core package.
package gencache

import (
	"context"
	"io"

	"github.com/kianostad/gencache/internal/core"
	"github.com/kianostad/gencache/internal/monitoring/metrics"
)

type (
	// Dictionary is a generation-versioned map
	Dictionary[K comparable, V any] = core.Dictionary[K, V]

	// Snapshot is a read-only view pinned at one generation
	Snapshot[K comparable, V any] = core.Snapshot[K, V]

	// Writer stages the writes of an Update
	Writer[K comparable, V any] = core.Writer[K, V]

	// Batch is a list of writes committed under one generation
	Batch[K comparable, V any] = core.Batch[K, V]

	// Generation is a logical point in time of a dictionary
	Generation = core.Generation

	// Option configures a Dictionary
	Option = core.Option

	// CollectStats describes one collection run
	CollectStats = core.CollectStats

	// Metrics records dictionary metrics
	Metrics = metrics.Metrics

	// Dump is the exported content of one snapshot
	Dump[K comparable, V any] = core.Dump[K, V]
)

// Errors
var (
	ErrSnapshotClosed      = core.ErrSnapshotClosed
	ErrWriterDone          = core.ErrWriterDone
	ErrEmptyBatch          = core.ErrEmptyBatch
	ErrBatchAlreadyApplied = core.ErrBatchAlreadyApplied
	ErrClosed              = core.ErrClosed
)

// Options
var (
	WithName            = core.WithName
	WithLogger          = core.WithLogger
	WithMetrics         = core.WithMetrics
	WithBuckets         = core.WithBuckets
	WithLoadFactor      = core.WithLoadFactor
	WithCollectEvery    = core.WithCollectEvery
	WithCollectInterval = core.WithCollectInterval
	WithAutoCollect     = core.WithAutoCollect
)

// New creates an empty dictionary at generation 0.
func New[K comparable, V any](opts ...Option) *Dictionary[K, V] {
	return core.New[K, V](opts...)
}

// NewBatch creates an empty batch.
func NewBatch[K comparable, V any]() *Batch[K, V] {
	return core.NewBatch[K, V]()
}

// NewMetrics creates a metrics instance that can be shared by dictionaries
// through WithMetrics.
func NewMetrics() *Metrics {
	return metrics.NewMetrics()
}

// ExportJSON writes the content of snap to w as JSON.
func ExportJSON[K comparable, V any](ctx context.Context, snap *Snapshot[K, V], w io.Writer) error {
	return core.ExportJSON(ctx, snap, w)
}

// ExportMsgpack writes the content of snap to w as msgpack.
func ExportMsgpack[K comparable, V any](ctx context.Context, snap *Snapshot[K, V], w io.Writer) error {
	return core.ExportMsgpack(ctx, snap, w)
}

// ReadMsgpackDump decodes a dump written by ExportMsgpack.
func ReadMsgpackDump[K comparable, V any](r io.Reader) (Dump[K, V], error) {
	return core.ReadMsgpackDump[K, V](r)
}

// ExportFile writes the content of snap to filename, as JSON when the name
// ends in .json and as msgpack otherwise.
func ExportFile[K comparable, V any](ctx context.Context, snap *Snapshot[K, V], filename string) error {
	return core.ExportFile(ctx, snap, filename)
}
