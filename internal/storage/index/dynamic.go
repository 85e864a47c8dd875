// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"math/bits"
)

const (
	defaultLoadFactor = 0.75
	minBuckets        = 16
	maxBuckets        = 1 << 24
)

// calculateOptimalBuckets calculates the number of buckets for dataSize entries.
func calculateOptimalBuckets(dataSize int) uint64 {
	if dataSize <= 0 {
		return minBuckets
	}

	// Roughly 4x the data size in buckets
	targetSize := 1 << (bits.Len(uint(dataSize)) + 2)

	if targetSize < minBuckets {
		targetSize = minBuckets
	} else if targetSize > maxBuckets {
		targetSize = maxBuckets
	}

	return uint64(targetSize) // #nosec G115
}

// SetLoadFactor changes the entries-per-bucket ratio that triggers growth.
// Non-positive values restore the default.
func (h *HashIndex[K, V]) SetLoadFactor(f float64) {
	if f <= 0 {
		f = defaultLoadFactor
	}
	h.loadFactor = f
}

// Load returns the current entries-per-bucket ratio.
func (h *HashIndex[K, V]) Load() float64 {
	return float64(h.count.Load()) / float64(h.Size())
}

// Resizes returns how many times the table has grown.
func (h *HashIndex[K, V]) Resizes() int64 {
	return h.resizes.Load()
}

// maybeGrow resizes the table ahead of an insert that would push it past
// the load factor. Writer only.
func (h *HashIndex[K, V]) maybeGrow() {
	t := h.tab.Load()
	size := uint64(len(t.buckets))
	if size >= maxBuckets {
		return
	}
	if float64(h.count.Load()+1) <= h.loadFactor*float64(size) {
		return
	}

	newSize := calculateOptimalBuckets(int(h.count.Load() + 1))
	if newSize <= size {
		newSize = size << 1
	}
	h.resize(t, newSize)
}

// resize builds a new table holding every entry of old and publishes it.
// Readers still walking old keep a consistent view of it.
func (h *HashIndex[K, V]) resize(old *table[K, V], newSize uint64) {
	next := newTable[K, V](newSize)
	for i := range old.buckets {
		for n := old.buckets[i].Load(); n != nil; n = n.next.Load() {
			h.insert(next, n.entry)
		}
	}
	h.tab.Store(next)
	h.resizes.Add(1)
}
