// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// TreeRepository is the source of truth for a tree-shaped store.
type TreeRepository[T treeNode] interface {
	// All returns every node.
	All(ctx context.Context) ([]T, error)
	// Get returns the node with id; ok is false when it does not exist.
	Get(ctx context.Context, id int) (node T, ok bool, err error)
	// Branch returns the node with id and all its descendants, parents
	// before children. It returns nothing when the node does not exist.
	Branch(ctx context.Context, id int) ([]T, error)
}

// ContentRepository loads content nodes.
type ContentRepository interface {
	TreeRepository[*ContentNode]
}

// MediaRepository loads media nodes.
type MediaRepository interface {
	TreeRepository[*MediaNode]
}

// DomainRepository loads domains.
type DomainRepository interface {
	All(ctx context.Context) ([]Domain, error)
	Get(ctx context.Context, id int) (Domain, bool, error)
}

// Repositories groups the sources the Service loads from.
type Repositories struct {
	Content ContentRepository
	Media   MediaRepository
	Domains DomainRepository
}

// MemoryTree is an in-memory TreeRepository. It is safe for concurrent use.
type MemoryTree[T treeNode] struct {
	mu    sync.RWMutex
	nodes map[int]T
}

// NewMemoryTree creates a repository holding nodes.
func NewMemoryTree[T treeNode](nodes ...T) *MemoryTree[T] {
	r := &MemoryTree[T]{nodes: make(map[int]T)}
	r.Put(nodes...)
	return r
}

// Put adds or replaces nodes.
func (r *MemoryTree[T]) Put(nodes ...T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range nodes {
		r.nodes[n.NodeID()] = n
	}
}

// Delete removes the node with id and its descendants.
func (r *MemoryTree[T]) Delete(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range branchOf(r.nodes, id) {
		delete(r.nodes, n.NodeID())
	}
}

// All implements TreeRepository.
func (r *MemoryTree[T]) All(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b T) int { return cmp.Compare(a.NodeID(), b.NodeID()) })
	return out, nil
}

// Get implements TreeRepository.
func (r *MemoryTree[T]) Get(ctx context.Context, id int) (T, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok, nil
}

// Branch implements TreeRepository.
func (r *MemoryTree[T]) Branch(ctx context.Context, id int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return branchOf(r.nodes, id), nil
}

// branchOf returns the node with id and its descendants, breadth first.
func branchOf[T treeNode](nodes map[int]T, id int) []T {
	root, ok := nodes[id]
	if !ok {
		return nil
	}
	children := make(map[int][]T)
	for _, n := range nodes {
		children[n.NodeParentID()] = append(children[n.NodeParentID()], n)
	}

	out := []T{root}
	seen := map[int]bool{id: true}
	for i := 0; i < len(out); i++ {
		kids := children[out[i].NodeID()]
		slices.SortFunc(kids, func(a, b T) int { return cmp.Compare(a.NodeID(), b.NodeID()) })
		for _, k := range kids {
			// parent cycles in bad data must not loop forever
			if !seen[k.NodeID()] {
				seen[k.NodeID()] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// MemoryDomains is an in-memory DomainRepository.
type MemoryDomains struct {
	mu      sync.RWMutex
	domains map[int]Domain
}

// NewMemoryDomains creates a repository holding domains.
func NewMemoryDomains(domains ...Domain) *MemoryDomains {
	r := &MemoryDomains{domains: make(map[int]Domain)}
	r.Put(domains...)
	return r
}

// Put adds or replaces domains.
func (r *MemoryDomains) Put(domains ...Domain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range domains {
		r.domains[d.ID] = d
	}
}

// Delete removes the domain with id.
func (r *MemoryDomains) Delete(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.domains, id)
}

// All implements DomainRepository.
func (r *MemoryDomains) All(ctx context.Context) ([]Domain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Domain, 0, len(r.domains))
	for _, d := range r.domains {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Domain) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Get implements DomainRepository.
func (r *MemoryDomains) Get(ctx context.Context, id int) (Domain, bool, error) {
	if err := ctx.Err(); err != nil {
		return Domain{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[id]
	return d, ok, nil
}
