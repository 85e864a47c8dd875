// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/core"
)

// treeView is the writer's picture of a tree while a batch is applied: the
// committed nodes plus everything the batch staged so far.
type treeView[T treeNode] struct {
	nodes map[int]T
}

// viewOf builds the view from the committed state. Called inside an Update,
// the snapshot sees the generation the update started from.
func viewOf[T treeNode](ctx context.Context, d *core.Dictionary[int, T]) *treeView[T] {
	snap := d.CreateSnapshot(ctx)
	defer snap.Close(ctx)

	v := &treeView[T]{nodes: make(map[int]T)}
	for id, n := range snap.All(ctx) {
		v.nodes[id] = n
	}
	return v
}

func (v *treeView[T]) set(w *core.Writer[int, T], n T) {
	w.Set(n.NodeID(), n)
	v.nodes[n.NodeID()] = n
}

// removeBranch drops id and its descendants. It reports whether anything
// was there.
func (v *treeView[T]) removeBranch(w *core.Writer[int, T], id int) bool {
	branch := branchOf(v.nodes, id)
	for _, n := range branch {
		w.Remove(n.NodeID())
		delete(v.nodes, n.NodeID())
	}
	return len(branch) > 0
}

// reloadTree replaces the whole tree with the repository content.
func reloadTree[T treeNode](ctx context.Context, w *core.Writer[int, T], repo TreeRepository[T]) (*treeView[T], error) {
	nodes, err := repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	w.Clear()
	v := &treeView[T]{nodes: make(map[int]T, len(nodes))}
	for _, n := range nodes {
		v.set(w, n)
	}
	return v, nil
}

// applyTreeChanges applies changes to d in one update. It reports whether
// anything changed. On a repository error nothing is applied.
func applyTreeChanges[T treeNode](ctx context.Context, d *core.Dictionary[int, T], repo TreeRepository[T], changes []TreeChange, logger *zap.Logger) (bool, error) {
	if len(changes) == 0 {
		return false, nil
	}

	changed := false
	_, err := d.Update(ctx, func(w *core.Writer[int, T]) error {
		var view *treeView[T]
		ensure := func() *treeView[T] {
			if view == nil {
				view = viewOf(ctx, d)
			}
			return view
		}

		for _, c := range changes {
			logger.Debug("notified",
				zap.Stringer("changes", c.Changes),
				zap.Int("id", c.ID))

			switch {
			case c.Changes.Has(RefreshAll):
				v, err := reloadTree(ctx, w, repo)
				if err != nil {
					return err
				}
				view = v
				changed = true

			case c.Changes.Has(Remove):
				if ensure().removeBranch(w, c.ID) {
					changed = true
				}

			case c.Changes.Has(RefreshBranch):
				nodes, err := repo.Branch(ctx, c.ID)
				if err != nil {
					return fmt.Errorf("failed to load branch %d: %w", c.ID, err)
				}
				ensure().removeBranch(w, c.ID)
				for _, n := range nodes {
					view.set(w, n)
				}
				changed = true

			case c.Changes.Has(RefreshNode):
				n, ok, err := repo.Get(ctx, c.ID)
				if err != nil {
					return fmt.Errorf("failed to load node %d: %w", c.ID, err)
				}
				if !ok {
					// gone from the source: treat as a removal
					ensure().removeBranch(w, c.ID)
				} else {
					ensure().set(w, n)
				}
				changed = true
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// validDomain reports whether dom can be routed. Domains without a root
// node or a culture are logged and left out of the store.
func validDomain(dom Domain, logger *zap.Logger) bool {
	if dom.RootContentID <= 0 || dom.Culture == "" {
		logger.Warn("skipping incomplete domain",
			zap.Int("id", dom.ID),
			zap.String("name", dom.Name))
		return false
	}
	return true
}

// reloadDomains replaces every domain with the repository content.
func reloadDomains(ctx context.Context, w *core.Writer[int, Domain], repo DomainRepository, logger *zap.Logger) error {
	domains, err := repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load domains: %w", err)
	}
	w.Clear()
	for _, dom := range domains {
		if validDomain(dom, logger) {
			w.Set(dom.ID, dom)
		}
	}
	return nil
}

// applyDomainChanges applies changes to d in one update.
func applyDomainChanges(ctx context.Context, d *core.Dictionary[int, Domain], repo DomainRepository, changes []DomainChange, logger *zap.Logger) error {
	if len(changes) == 0 {
		return nil
	}

	_, err := d.Update(ctx, func(w *core.Writer[int, Domain]) error {
		for _, c := range changes {
			switch c.Change {
			case DomainRefreshAll:
				if err := reloadDomains(ctx, w, repo, logger); err != nil {
					return err
				}
			case DomainRemove:
				w.Remove(c.ID)
			case DomainRefresh:
				dom, ok, err := repo.Get(ctx, c.ID)
				if err != nil {
					return fmt.Errorf("failed to load domain %d: %w", c.ID, err)
				}
				if !ok {
					continue
				}
				if !validDomain(dom, logger) {
					continue
				}
				w.Set(dom.ID, dom)
			}
		}
		return nil
	})
	return err
}
