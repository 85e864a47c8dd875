// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package published keeps the published content of a site in three
// generation-versioned dictionaries (content, media and domains) and hands
// out per-request snapshots of them.
//
// # Overview
//
// A Service owns the stores and is their only writer. It loads them from
// repositories and applies change notifications, each notification batch as a
// single Update, so readers observe either none or all of a batch.
//
// Readers create a PublishedSnapshot per request. The snapshot lazily pins one
// generation of each store the first time it is used and keeps reading those
// generations until Resync or Close. Stores are versioned independently: a
// content generation and a domain generation pinned together are each
// consistent on their own but were not necessarily committed together.
//
// # Usage Examples
//
//	svc, err := published.NewService(published.Repositories{
//	    Content: contentRepo,
//	    Media:   mediaRepo,
//	    Domains: domainRepo,
//	})
//	if err := svc.Load(ctx); err != nil {
//	    return err
//	}
//	svc.Start(ctx)
//	defer svc.Close(ctx)
//
//	ps, _ := svc.CreatePublishedSnapshot("")
//	defer ps.Close(ctx)
//	elements, _ := ps.Elements(ctx)
//	home, ok := elements.Content.ByRoute(ctx, "/")
//
// # Dangers and Warnings
//
//   - Nodes handed to the Service and returned by the caches are shared by
//     every snapshot. They must not be mutated after they were stored.
//   - A PublishedSnapshot must be closed; until then it pins old generations
//     of all three stores.
package published

import "time"

// RootID is the parent id of top-level nodes.
const RootID = -1

// ContentData is one version of the editable data of a content node.
type ContentData struct {
	Name        string
	URLSegment  string
	Properties  map[string]string
	VersionDate time.Time
}

// ContentNode is a node of the content tree. Draft holds unpublished edits,
// Published the live version. Either may be nil.
type ContentNode struct {
	ID            int
	ParentID      int
	Level         int
	SortOrder     int
	ContentTypeID int
	Draft         *ContentData
	Published     *ContentData
}

// NodeID implements the tree node contract of the stores.
func (n *ContentNode) NodeID() int { return n.ID }

// NodeParentID implements the tree node contract of the stores.
func (n *ContentNode) NodeParentID() int { return n.ParentID }

// MediaNode is a node of the media tree. Media has no draft state.
type MediaNode struct {
	ID            int
	ParentID      int
	Level         int
	SortOrder     int
	ContentTypeID int
	Name          string
	URL           string
}

// NodeID implements the tree node contract of the stores.
func (n *MediaNode) NodeID() int { return n.ID }

// NodeParentID implements the tree node contract of the stores.
func (n *MediaNode) NodeParentID() int { return n.ParentID }

// Domain assigns a host name and culture to a content root.
type Domain struct {
	ID            int
	Name          string
	RootContentID int
	Culture       string
	IsWildcard    bool
}

// treeNode is implemented by the node types kept in tree-shaped stores.
type treeNode interface {
	comparable
	NodeID() int
	NodeParentID() int
}
