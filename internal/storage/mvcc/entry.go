// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package mvcc provides the per-key version chains of the snapshot dictionary.
//
// Every key owns an Entry whose head points at the newest Version. Versions
// form a singly-linked list, newest first, each tagged with the generation of
// the commit that produced it. A version is never modified once published:
// writers only prepend, and the collector only cuts the link below the oldest
// version any live snapshot can still resolve to.
//
// # Key Features
//
//   - Immutable version chains for consistent reads
//   - Wait-free reads that never block on the writer
//   - Tombstone versions for logical deletion
//   - In-commit replacement so one commit adds at most one version per key
//   - Trimming below a floor generation
//
// # Usage Examples
//
//	entry := mvcc.NewEntry[string, string]("home")
//
//	entry.Push(1, "v1", false)
//	entry.Push(2, "v2", false)
//	entry.Push(3, "", true) // tombstone
//
//	v, ok := entry.Get(2) // "v2", true
//	_, ok = entry.Get(3)  // false: deleted at generation 3
//
//	res := mvcc.TrimEntry(entry, 3) // drops v1 and v2; res.Empty is true
//
// # Dangers and Warnings
//
//   - **Single Writer**: Push and TrimEntry assume the caller holds the dictionary writer lock.
//     Concurrent pushes to the same entry lose versions.
//   - **Generation Ordering**: Pushed generations must be non-decreasing per entry.
//   - **Chain Length**: Reads are O(n) in chain length. Without trimming chains grow forever.
//   - **Byte Slices**: []byte values are cloned on push; other reference types are stored as-is
//     and must not be mutated by the caller afterwards.
//
// # Visibility
//
// A reader pinned at generation g resolves a key to the first version whose
// generation is <= g. If that version is a tombstone, or no such version
// exists, the key is absent at g.
//
// # Thread Safety
//
// Reads are safe from any number of goroutines concurrently with one writer.
// Links are published with atomic stores, so a reader never observes a
// partially constructed version.
package mvcc

import (
	"sync/atomic"

	"github.com/kianostad/gencache/internal/concurrency/genref"
)

// cloneBytes returns a copy of b to prevent external mutation from affecting
// internal state. A nil slice returns nil.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	dup := make([]byte, len(b))
	copy(dup, b)
	return dup
}

// cloneValue returns a deep copy of v when v is a byte slice. Other value
// types are returned unmodified to avoid unnecessary allocations.
func cloneValue[V any](v V) V {
	if b, ok := any(v).([]byte); ok {
		return any(cloneBytes(b)).(V)
	}
	return v
}

// Version is one immutable value of a key, visible from gen onwards until a
// newer version supersedes it.
type Version[V any] struct {
	gen  genref.Generation
	val  V
	tomb bool
	next atomic.Pointer[Version[V]] // older version
}

// Gen returns the generation that produced the version.
func (v *Version[V]) Gen() genref.Generation {
	return v.gen
}

// Value returns the stored value. It is the zero value for tombstones.
func (v *Version[V]) Value() V {
	return v.val
}

// Tombstone reports whether the version marks the key as deleted.
func (v *Version[V]) Tombstone() bool {
	return v.tomb
}

// Next returns the next older version, or nil.
func (v *Version[V]) Next() *Version[V] {
	return v.next.Load()
}

// Entry is a key together with the head of its version chain.
type Entry[K comparable, V any] struct {
	key  K
	head atomic.Pointer[Version[V]]
}

// NewEntry creates an entry with an empty chain.
func NewEntry[K comparable, V any](key K) *Entry[K, V] {
	return &Entry[K, V]{key: key}
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Head returns the newest version, or nil for an empty chain.
func (e *Entry[K, V]) Head() *Version[V] {
	return e.head.Load()
}

// Resolve returns the version visible at gen, or nil.
// This operation is wait-free.
func (e *Entry[K, V]) Resolve(gen genref.Generation) *Version[V] {
	for v := e.head.Load(); v != nil; v = v.next.Load() {
		if v.gen <= gen {
			return v
		}
	}
	return nil
}

// Get returns the value visible at gen.
func (e *Entry[K, V]) Get(gen genref.Generation) (V, bool) {
	v := e.Resolve(gen)
	if v == nil || v.tomb {
		var z V
		return z, false
	}
	return v.val, true
}

// Push publishes a new head version for gen. When the current head already
// belongs to gen it is replaced rather than stacked, so one commit leaves at
// most one version per key. Push reports whether the chain grew.
//
// Byte-slice values are cloned to ensure snapshots observe immutable data.
func (e *Entry[K, V]) Push(gen genref.Generation, val V, tomb bool) bool {
	n := &Version[V]{gen: gen, tomb: tomb}
	if !tomb {
		n.val = cloneValue(val)
	}

	old := e.head.Load()
	if old != nil && old.gen == gen {
		n.next.Store(old.next.Load())
		e.head.Store(n)
		return false
	}
	n.next.Store(old)
	e.head.Store(n)
	return true
}

// Deleted reports whether the newest version is a tombstone or the chain is
// empty.
func (e *Entry[K, V]) Deleted() bool {
	h := e.head.Load()
	return h == nil || h.tomb
}

// Len returns the number of versions in the chain.
func (e *Entry[K, V]) Len() int {
	n := 0
	for v := e.head.Load(); v != nil; v = v.next.Load() {
		n++
	}
	return n
}

// VersionInfo describes one version without exposing it.
type VersionInfo struct {
	Gen       genref.Generation
	Tombstone bool
}

// Versions lists the chain newest first. Intended for tests and diagnostics.
func (e *Entry[K, V]) Versions() []VersionInfo {
	var out []VersionInfo
	for v := e.head.Load(); v != nil; v = v.next.Load() {
		out = append(out, VersionInfo{Gen: v.gen, Tombstone: v.tomb})
	}
	return out
}
