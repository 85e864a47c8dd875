// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"iter"

	"github.com/kianostad/gencache/internal/concurrency/genref"
	"github.com/kianostad/gencache/internal/storage/mvcc"
)

// Iterator walks the table that was current when it was created and
// resolves values at one generation. Entries added by a later resize are not
// visited; entries unlinked meanwhile may still be.
type Iterator[K comparable, V any] struct {
	tab       *table[K, V]
	bucketIdx int
	node      *node[K, V]
	gen       genref.Generation
}

// NewIterator creates a new iterator resolving values at gen.
func (h *HashIndex[K, V]) NewIterator(gen genref.Generation) *Iterator[K, V] {
	return &Iterator[K, V]{
		tab:       h.tab.Load(),
		bucketIdx: -1,
		gen:       gen,
	}
}

// Next advances the iterator to the next entry
func (it *Iterator[K, V]) Next() bool {
	if it.node != nil {
		it.node = it.node.next.Load()
		if it.node != nil {
			return true
		}
	}

	for it.bucketIdx+1 < len(it.tab.buckets) {
		it.bucketIdx++
		it.node = it.tab.buckets[it.bucketIdx].Load()
		if it.node != nil {
			return true
		}
	}
	return false
}

// Key returns the current key
func (it *Iterator[K, V]) Key() (K, bool) {
	if it.node == nil {
		var z K
		return z, false
	}
	return it.node.entry.Key(), true
}

// Value returns the current value at the iterator's generation
func (it *Iterator[K, V]) Value() (V, bool) {
	if it.node == nil {
		var z V
		return z, false
	}
	return it.node.entry.Get(it.gen)
}

// Entries yields every entry in the table current at the time of the call.
func (h *HashIndex[K, V]) Entries() iter.Seq[*mvcc.Entry[K, V]] {
	return func(yield func(*mvcc.Entry[K, V]) bool) {
		t := h.tab.Load()
		for i := range t.buckets {
			for n := t.buckets[i].Load(); n != nil; n = n.next.Load() {
				if !yield(n.entry) {
					return
				}
			}
		}
	}
}
