// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"strings"
)

// ChangeTypes describes what changed in a tree.
type ChangeTypes uint8

const (
	// RefreshAll reloads the whole tree.
	RefreshAll ChangeTypes = 1 << iota
	// RefreshNode reloads one node.
	RefreshNode
	// RefreshBranch reloads a node and all its descendants.
	RefreshBranch
	// Remove drops a node and all its descendants.
	Remove
)

// Has reports whether every flag of o is set in t.
func (t ChangeTypes) Has(o ChangeTypes) bool {
	return t&o == o
}

// String returns the flags joined with "|".
func (t ChangeTypes) String() string {
	if t == 0 {
		return "None"
	}
	var parts []string
	for _, f := range []struct {
		flag ChangeTypes
		name string
	}{
		{RefreshAll, "RefreshAll"},
		{RefreshNode, "RefreshNode"},
		{RefreshBranch, "RefreshBranch"},
		{Remove, "Remove"},
	} {
		if t.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// TreeChange notifies a change of the node with ID.
type TreeChange struct {
	ID      int
	Changes ChangeTypes
}

// ContentChange notifies a change in the content tree.
type ContentChange = TreeChange

// MediaChange notifies a change in the media tree.
type MediaChange = TreeChange

// DomainChangeType describes what changed in the domains.
type DomainChangeType uint8

const (
	DomainRefreshAll DomainChangeType = iota + 1
	DomainRefresh
	DomainRemove
)

// String returns the change name.
func (t DomainChangeType) String() string {
	switch t {
	case DomainRefreshAll:
		return "RefreshAll"
	case DomainRefresh:
		return "Refresh"
	case DomainRemove:
		return "Remove"
	default:
		return "None"
	}
}

// DomainChange notifies a change of the domain with ID.
type DomainChange struct {
	ID     int
	Change DomainChangeType
}

// ContentTypeChange notifies that a content type changed shape. Nodes of
// any type may embed it, so content and media are invalidated and reloaded.
type ContentTypeChange struct {
	ID int
}

// Notification is one batch of changes. Content type changes are applied
// first, then content, media and domains, each kind in one update.
type Notification struct {
	ContentTypes []ContentTypeChange
	Content      []ContentChange
	Media        []MediaChange
	Domains      []DomainChange
}

func (n Notification) empty() bool {
	return len(n.ContentTypes) == 0 && len(n.Content) == 0 &&
		len(n.Media) == 0 && len(n.Domains) == 0
}
