// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kianostad/gencache/internal/core"
)

// PublishedContent is a content node as seen in one preview mode.
type PublishedContent struct {
	Node *ContentNode
	Data *ContentData
}

// ID returns the node id.
func (p PublishedContent) ID() int { return p.Node.ID }

// Name returns the name of the visible version.
func (p PublishedContent) Name() string { return p.Data.Name }

// URLSegment returns the url segment of the visible version.
func (p PublishedContent) URLSegment() string { return p.Data.URLSegment }

// ContentCache reads the content store at one generation.
type ContentCache struct {
	snap    *core.Snapshot[int, *ContentNode]
	preview bool
	cache   *ElementsCache
	domains *DomainCache
}

func (c *ContentCache) withPreview(preview bool) *ContentCache {
	cp := *c
	cp.preview = preview
	return &cp
}

// visible returns the data shown for n: the draft in preview mode when there
// is one, the published version otherwise. nil hides the node.
func (c *ContentCache) visible(n *ContentNode) *ContentData {
	if c.preview && n.Draft != nil {
		return n.Draft
	}
	return n.Published
}

func (c *ContentCache) wrap(n *ContentNode) (PublishedContent, bool) {
	if n == nil {
		return PublishedContent{}, false
	}
	data := c.visible(n)
	if data == nil {
		return PublishedContent{}, false
	}
	return PublishedContent{Node: n, Data: data}, true
}

// ByID returns the node with id if it is visible.
func (c *ContentCache) ByID(ctx context.Context, id int) (PublishedContent, bool) {
	n, ok := c.snap.Get(ctx, id)
	if !ok {
		return PublishedContent{}, false
	}
	return c.wrap(n)
}

// Children returns the visible children of id by sort order.
func (c *ContentCache) Children(ctx context.Context, id int) []PublishedContent {
	var out []PublishedContent
	for _, n := range c.snap.All(ctx) {
		if n.ParentID != id {
			continue
		}
		if p, ok := c.wrap(n); ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b PublishedContent) int {
		return cmp.Or(cmp.Compare(a.Node.SortOrder, b.Node.SortOrder), cmp.Compare(a.Node.ID, b.Node.ID))
	})
	return out
}

// AtRoot returns the visible top-level nodes by sort order.
func (c *ContentCache) AtRoot(ctx context.Context) []PublishedContent {
	return c.Children(ctx, RootID)
}

// HasContent reports whether any node is visible.
func (c *ContentCache) HasContent(ctx context.Context) bool {
	for _, n := range c.snap.All(ctx) {
		if _, ok := c.wrap(n); ok {
			return true
		}
	}
	return false
}

// Culture returns the culture of the closest domain assigned to id or one of
// its ancestors, or the default culture.
func (c *ContentCache) Culture(ctx context.Context, id int) string {
	seen := map[int]bool{}
	for id != RootID && !seen[id] {
		seen[id] = true
		if assigned := c.domains.Assigned(ctx, id, true); len(assigned) > 0 {
			return assigned[0].Culture
		}
		n, ok := c.snap.Get(ctx, id)
		if !ok {
			break
		}
		id = n.ParentID
	}
	return c.domains.DefaultCulture()
}

// ByRoute resolves a route of url segments. "/a/b" starts from the top-level
// nodes, where "/" is the first of them. "1234/a/b" starts below the node
// with id 1234, typically the root of a domain. Resolved routes are memoized
// in the elements cache.
func (c *ContentCache) ByRoute(ctx context.Context, route string) (PublishedContent, bool) {
	key := fmt.Sprintf("route:%t:%s", c.preview, route)
	if v, ok := c.cache.Get(key); ok {
		if id, _ := v.(int); id != 0 {
			return c.ByID(ctx, id)
		}
	}

	p, ok := c.resolveRoute(ctx, route)
	if ok {
		c.cache.Set(key, p.ID())
	}
	return p, ok
}

func (c *ContentCache) resolveRoute(ctx context.Context, route string) (PublishedContent, bool) {
	start, path, _ := strings.Cut(route, "/")

	var current PublishedContent
	var level []PublishedContent
	if start == "" {
		level = c.AtRoot(ctx)
		if path == "" {
			if len(level) == 0 {
				return PublishedContent{}, false
			}
			return level[0], true
		}
	} else {
		rootID, err := strconv.Atoi(start)
		if err != nil {
			return PublishedContent{}, false
		}
		root, ok := c.ByID(ctx, rootID)
		if !ok {
			return PublishedContent{}, false
		}
		current = root
		if path == "" {
			return root, true
		}
		level = c.Children(ctx, rootID)
	}

	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		found := false
		for _, p := range level {
			if strings.EqualFold(p.URLSegment(), seg) {
				current, found = p, true
				break
			}
		}
		if !found {
			return PublishedContent{}, false
		}
		level = c.Children(ctx, current.ID())
	}
	return current, true
}

// MediaCache reads the media store at one generation.
type MediaCache struct {
	snap *core.Snapshot[int, *MediaNode]
}

// ByID returns the media node with id.
func (c *MediaCache) ByID(ctx context.Context, id int) (*MediaNode, bool) {
	return c.snap.Get(ctx, id)
}

// Children returns the children of id by sort order.
func (c *MediaCache) Children(ctx context.Context, id int) []*MediaNode {
	var out []*MediaNode
	for _, n := range c.snap.All(ctx) {
		if n.ParentID == id {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *MediaNode) int {
		return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// AtRoot returns the top-level media nodes by sort order.
func (c *MediaCache) AtRoot(ctx context.Context) []*MediaNode {
	return c.Children(ctx, RootID)
}

// DomainCache reads the domain store at one generation.
type DomainCache struct {
	snap           *core.Snapshot[int, Domain]
	defaultCulture string
}

// DefaultCulture returns the culture of content without a domain.
func (c *DomainCache) DefaultCulture() string {
	return c.defaultCulture
}

// All returns every domain by id.
func (c *DomainCache) All(ctx context.Context, includeWildcards bool) []Domain {
	var out []Domain
	for _, d := range c.snap.All(ctx) {
		if d.IsWildcard && !includeWildcards {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Domain) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Assigned returns the domains rooted at contentID by id.
func (c *DomainCache) Assigned(ctx context.Context, contentID int, includeWildcards bool) []Domain {
	var out []Domain
	for _, d := range c.All(ctx, includeWildcards) {
		if d.RootContentID == contentID {
			out = append(out, d)
		}
	}
	return out
}

// HasAssigned reports whether any domain is rooted at contentID.
func (c *DomainCache) HasAssigned(ctx context.Context, contentID int, includeWildcards bool) bool {
	for _, d := range c.snap.All(ctx) {
		if d.RootContentID == contentID && (includeWildcards || !d.IsWildcard) {
			return true
		}
	}
	return false
}
