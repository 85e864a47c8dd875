// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package index provides the key index of the snapshot dictionary.
//
// HashIndex maps keys to their MVCC entries. It is built for exactly one
// writer and any number of readers: the writer inserts, unlinks and resizes
// while holding the dictionary writer lock, and readers only ever perform
// atomic loads, so a read never waits for the writer.
//
// # Key Features
//
//   - Wait-free lookups and iteration using atomic loads only
//   - Generic comparable keys hashed with hash/maphash
//   - Unlinking of dead entries by the collector
//   - Growth by copy-and-swap of the bucket table
//
// # Usage Examples
//
//	idx := index.NewHashIndex[string, int](1024)
//
//	// Writer side, under the writer lock
//	entry, created := idx.GetOrCreate("answer")
//	entry.Push(1, 42, false)
//
//	// Reader side, from any goroutine
//	if e := idx.Get("answer"); e != nil {
//	    v, ok := e.Get(1)
//	}
//
//	for e := range idx.Entries() {
//	    fmt.Println(e.Key())
//	}
//
// # Dangers and Warnings
//
//   - **Single Writer**: GetOrCreate and Delete must never run concurrently with each other.
//     The index does not synchronise writers.
//   - **Bucket Size**: The initial number of buckets must be a power of 2. Invalid sizes will panic.
//   - **Iteration**: Iteration walks the table that was current when it started. Entries inserted
//     afterwards may or may not be visited.
//
// # Collision Handling
//
// Hash collisions are handled using chaining. New entries are inserted at the
// head of the bucket; deleted entries are unlinked by pointing their
// predecessor past them. A reader standing on an unlinked node still follows
// its next pointer to the rest of the chain.
package index

import (
	"hash/maphash"
	"sync/atomic"

	"github.com/kianostad/gencache/internal/storage/mvcc"
)

// node represents a node in the linked list within a bucket.
type node[K comparable, V any] struct {
	entry *mvcc.Entry[K, V]
	next  atomic.Pointer[node[K, V]]
}

// table is one generation of the bucket array. It is replaced wholesale on
// resize and never shrunk in place.
type table[K comparable, V any] struct {
	buckets []atomic.Pointer[node[K, V]]
	mask    uint64
}

func newTable[K comparable, V any](size uint64) *table[K, V] {
	if size == 0 || (size&(size-1)) != 0 {
		panic("size must be a power of 2")
	}
	return &table[K, V]{
		buckets: make([]atomic.Pointer[node[K, V]], size),
		mask:    size - 1,
	}
}

// HashIndex is a single-writer hash table from keys to MVCC entries.
type HashIndex[K comparable, V any] struct {
	seed       maphash.Seed
	tab        atomic.Pointer[table[K, V]]
	count      atomic.Int64
	loadFactor float64
	resizes    atomic.Int64
}

// NewHashIndex creates a new hash index with the given size (must be power of 2).
func NewHashIndex[K comparable, V any](size uint64) *HashIndex[K, V] {
	h := &HashIndex[K, V]{
		seed:       maphash.MakeSeed(),
		loadFactor: defaultLoadFactor,
	}
	h.tab.Store(newTable[K, V](size))
	return h
}

// hash computes the hash of the key.
func (h *HashIndex[K, V]) hash(key K) uint64 {
	return maphash.Comparable(h.seed, key)
}

// Get finds the entry for key without creating one.
func (h *HashIndex[K, V]) Get(key K) *mvcc.Entry[K, V] {
	t := h.tab.Load()
	bucket := &t.buckets[h.hash(key)&t.mask]

	for n := bucket.Load(); n != nil; n = n.next.Load() {
		if n.entry.Key() == key {
			return n.entry
		}
	}
	return nil
}

// GetOrCreate finds the entry for key, or inserts a new empty one. The
// boolean is true only when this call inserted the entry. Writer only.
func (h *HashIndex[K, V]) GetOrCreate(key K) (*mvcc.Entry[K, V], bool) {
	if e := h.Get(key); e != nil {
		return e, false
	}

	h.maybeGrow()

	entry := mvcc.NewEntry[K, V](key)
	h.insert(h.tab.Load(), entry)
	h.count.Add(1)
	return entry, true
}

// insert links entry at the head of its bucket in t.
func (h *HashIndex[K, V]) insert(t *table[K, V], entry *mvcc.Entry[K, V]) {
	bucket := &t.buckets[h.hash(entry.Key())&t.mask]
	n := &node[K, V]{entry: entry}
	n.next.Store(bucket.Load())
	bucket.Store(n)
}

// Delete unlinks the entry for key. It reports whether an entry was removed.
// Writer only.
func (h *HashIndex[K, V]) Delete(key K) bool {
	t := h.tab.Load()
	bucket := &t.buckets[h.hash(key)&t.mask]

	var prev *node[K, V]
	for n := bucket.Load(); n != nil; n = n.next.Load() {
		if n.entry.Key() != key {
			prev = n
			continue
		}
		if prev == nil {
			bucket.Store(n.next.Load())
		} else {
			prev.next.Store(n.next.Load())
		}
		h.count.Add(-1)
		return true
	}
	return false
}

// Len returns the number of entries, live or tombstoned, in the index.
func (h *HashIndex[K, V]) Len() int {
	return int(h.count.Load())
}

// Size returns the number of buckets in the index.
func (h *HashIndex[K, V]) Size() uint64 {
	return uint64(len(h.tab.Load().buckets))
}
