// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package genref tracks which generations of a snapshot dictionary are still
// observable by outstanding snapshots.
//
// A generation is a logical timestamp that a dictionary bumps once per commit.
// Every snapshot pins one generation through a GenRef. All references to the
// same generation share a single GenObj that counts them; when the count
// drops to zero the generation leaves the live set and the collector is free
// to reclaim versions only that generation could see.
//
// # Key Features
//
//   - Shared, reference-counted GenObj per pinned generation
//   - Read-only GenRef handles that release exactly once
//   - Floor (oldest live generation) lookup for the collector
//   - Cheap acquire/release guarded by a small mutex
//
// # Usage Examples
//
//	reg := genref.NewRegistry()
//
//	ref := reg.Acquire(7)
//	floor := reg.FloorWith(func() genref.Generation { return 9 }) // 7
//
//	if reg.Release(ref) {
//	    // generation 7 was the floor and is gone; collection may reclaim more
//	}
//
// # Dangers and Warnings
//
//   - **Double Release**: Releasing a GenRef twice panics with ErrReleased. It is a lifetime bug.
//   - **Leaked References**: A GenRef that is never released pins its generation forever and
//     stops the collector from trimming anything newer than it.
//   - **Floor Races**: Callers that must not miss a concurrent Acquire compute the floor with
//     FloorWith while holding their own writer lock.
//
// # Thread Safety
//
// Registry is safe for concurrent use. GenRef is immutable apart from its
// release flag and may be shared between goroutines.
package genref

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Generation is a logical point in time of a dictionary. Zero is the empty
// initial state; every commit produces the next value.
type Generation uint64

// ErrReleased is the panic value used when a GenRef is released twice.
var ErrReleased = errors.New("genref: generation reference already released")

// GenObj is the shared holder of one pinned generation.
type GenObj struct {
	gen   Generation
	count atomic.Int64
}

// Gen returns the generation this object pins.
func (o *GenObj) Gen() Generation {
	return o.gen
}

// Count returns the number of outstanding references.
func (o *GenObj) Count() int64 {
	return o.count.Load()
}

// GenRef is a handle on a GenObj. It is handed to exactly one owner and
// released exactly once.
type GenRef struct {
	obj      *GenObj
	released atomic.Bool
}

// Gen returns the pinned generation.
func (r *GenRef) Gen() Generation {
	return r.obj.gen
}

// Released reports whether the reference has been released.
func (r *GenRef) Released() bool {
	return r.released.Load()
}

// Registry is the set of live generations.
type Registry struct {
	_    cpu.CacheLinePad
	mu   sync.Mutex
	objs map[Generation]*GenObj
	refs int64
	_    cpu.CacheLinePad
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objs: make(map[Generation]*GenObj),
	}
}

// Acquire pins gen and returns a new reference to it.
func (r *Registry) Acquire(gen Generation) *GenRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquireLocked(gen)
}

// AcquireFunc pins the generation returned by load. load runs under the
// registry lock, so a concurrent FloorWith either observes the new
// reference or runs entirely before load does.
func (r *Registry) AcquireFunc(load func() Generation) *GenRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquireLocked(load())
}

func (r *Registry) acquireLocked(gen Generation) *GenRef {
	obj, ok := r.objs[gen]
	if !ok {
		obj = &GenObj{gen: gen}
		r.objs[gen] = obj
	}
	obj.count.Add(1)
	r.refs++
	return &GenRef{obj: obj}
}

// Release drops ref. It reports whether the release removed the oldest live
// generation, which is the moment collection can make progress.
func (r *Registry) Release(ref *GenRef) bool {
	if !ref.released.CompareAndSwap(false, true) {
		panic(ErrReleased)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs--
	if ref.obj.count.Add(-1) > 0 {
		return false
	}
	delete(r.objs, ref.obj.gen)

	for gen := range r.objs {
		if gen < ref.obj.gen {
			return false
		}
	}
	return true
}

// FloorWith returns min(live generations, current()). current runs under the
// registry lock.
func (r *Registry) FloorWith(current func() Generation) Generation {
	r.mu.Lock()
	defer r.mu.Unlock()

	floor := current()
	if live, ok := r.floorLocked(); ok && live < floor {
		floor = live
	}
	return floor
}

func (r *Registry) floorLocked() (Generation, bool) {
	if len(r.objs) == 0 {
		return 0, false
	}
	min := ^Generation(0)
	for gen := range r.objs {
		if gen < min {
			min = gen
		}
	}
	return min, true
}

// GenCount returns the number of distinct live generations.
func (r *Registry) GenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objs)
}

// RefCount returns the number of outstanding references across all
// generations.
func (r *Registry) RefCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}
