// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/storage/mvcc"
)

// CollectStats describes one collection run.
type CollectStats struct {
	Floor       Generation    // oldest generation any reader could still observe
	Keys        int           // keys left in the index
	Versions    int           // versions left across all keys
	Dropped     int           // versions unlinked
	RemovedKeys int           // dead keys removed from the index
	Buckets     uint64        // index buckets after the run
	Resizes     int64         // times the index has grown since New
	Duration    time.Duration // time spent holding the writer lock
}

// Collect reclaims every version no live snapshot can observe. It waits for
// the writer lock.
func (d *Dictionary[K, V]) Collect(ctx context.Context) CollectStats {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return d.collectLocked()
}

// collectBackground is the collector loop body. It never waits for a writer:
// if the lock is taken the run is deferred to the next commit.
func (d *Dictionary[K, V]) collectBackground() {
	if !d.wmu.TryLock() {
		d.collectPending.Store(true)
		if d.metrics != nil {
			d.metrics.RecordDeferredCollect()
		}
		d.logger.Debug("collection deferred, writer busy")
		return
	}
	defer d.wmu.Unlock()
	d.collectLocked()
}

// collectLocked trims every chain to the floor. Caller holds wmu.
func (d *Dictionary[K, V]) collectLocked() CollectStats {
	start := time.Now()
	d.collectPending.Store(false)
	d.sinceCollect = 0

	stats := CollectStats{
		Floor: d.live.FloorWith(d.current),
	}

	var dead []K
	for entry := range d.index.Entries() {
		res := mvcc.TrimEntry(entry, stats.Floor)
		stats.Versions += res.Kept
		stats.Dropped += res.Dropped
		if res.Empty {
			dead = append(dead, entry.Key())
		}
	}
	for _, key := range dead {
		if d.index.Delete(key) {
			stats.RemovedKeys++
			stats.Versions--
		}
	}
	stats.Keys = d.index.Len()
	stats.Buckets = d.index.Size()
	stats.Resizes = d.index.Resizes()
	stats.Duration = time.Since(start)

	if d.metrics != nil {
		d.metrics.RecordCollect(stats.Duration, stats.Dropped, stats.RemovedKeys)
		if stats.Keys > 0 {
			d.metrics.SetChainLength(uint64(stats.Versions / stats.Keys)) // #nosec G115
		} else {
			d.metrics.SetChainLength(0)
		}
	}
	if stats.Dropped > 0 || stats.RemovedKeys > 0 {
		d.logger.Debug("collected versions",
			zap.Uint64("floor", uint64(stats.Floor)),
			zap.Int("dropped", stats.Dropped),
			zap.Int("removed_keys", stats.RemovedKeys),
			zap.Int("keys", stats.Keys),
			zap.Uint64("buckets", stats.Buckets),
			zap.Float64("load", d.index.Load()),
			zap.Int64("resizes", stats.Resizes),
			zap.Duration("duration", stats.Duration))
	}
	return stats
}
