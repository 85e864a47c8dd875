// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/core"
)

// CacheConfig sizes the elements cache.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// DefaultCacheConfig returns the elements cache sizing used by NewService.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	}
}

func (c CacheConfig) validate() error {
	if c.NumCounters <= 0 || c.MaxCost <= 0 || c.BufferItems <= 0 {
		return fmt.Errorf("invalid elements cache config %+v", c)
	}
	return nil
}

// ElementsCache memoizes values derived from one generation triple of the
// stores. It is shared by every Elements built from that triple and dropped
// as soon as any store commits a new generation.
type ElementsCache struct {
	c    *ristretto.Cache
	refs atomic.Int64
	gens [3]core.Generation
}

func newElementsCache(cfg CacheConfig, gens [3]core.Generation) (*ElementsCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elements cache: %w", err)
	}
	ec := &ElementsCache{c: c, gens: gens}
	ec.refs.Store(1)
	return ec, nil
}

// Get returns a cached value.
func (e *ElementsCache) Get(key string) (any, bool) {
	return e.c.Get(key)
}

// Set caches value under key. Sets are asynchronous and may be dropped.
func (e *ElementsCache) Set(key string, value any) bool {
	return e.c.Set(key, value, 1)
}

// Wait blocks until pending sets are applied.
func (e *ElementsCache) Wait() {
	e.c.Wait()
}

func (e *ElementsCache) acquire() {
	e.refs.Add(1)
}

func (e *ElementsCache) release() {
	if e.refs.Add(-1) == 0 {
		e.c.Close()
	}
}

// Elements bundles one snapshot of each store with the read caches over them.
type Elements struct {
	Content *ContentCache
	Media   *MediaCache
	Domains *DomainCache
	Cache   *ElementsCache

	preview bool
	owner   bool
	closed  atomic.Bool

	contentSnap *core.Snapshot[int, *ContentNode]
	mediaSnap   *core.Snapshot[int, *MediaNode]
	domainSnap  *core.Snapshot[int, Domain]
}

// Preview reports whether the caches expose draft data.
func (e *Elements) Preview() bool {
	return e.preview
}

// Generations returns the pinned content, media and domain generations.
func (e *Elements) Generations() (content, media, domains core.Generation) {
	return e.contentSnap.Gen(), e.mediaSnap.Gen(), e.domainSnap.Gen()
}

// withPreview returns a view of e with another preview mode. The view shares
// e's snapshots and must not outlive e.
func (e *Elements) withPreview(preview bool) *Elements {
	if preview == e.preview {
		return e
	}
	return &Elements{
		Content:     e.Content.withPreview(preview),
		Media:       e.Media,
		Domains:     e.Domains,
		Cache:       e.Cache,
		preview:     preview,
		contentSnap: e.contentSnap,
		mediaSnap:   e.mediaSnap,
		domainSnap:  e.domainSnap,
	}
}

// Close releases the snapshots and the elements cache. It is safe to call
// more than once.
func (e *Elements) Close(ctx context.Context) {
	if !e.owner || !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.contentSnap.Close(ctx)
	e.mediaSnap.Close(ctx)
	e.domainSnap.Close(ctx)
	e.Cache.release()
}

// ElementsFactory creates Elements over the three stores.
type ElementsFactory struct {
	content *core.Dictionary[int, *ContentNode]
	media   *core.Dictionary[int, *MediaNode]
	domains *core.Dictionary[int, Domain]

	cfg            CacheConfig
	defaultCulture string
	logger         *zap.Logger

	mu    sync.Mutex
	cache *ElementsCache
}

// NewElementsFactory creates a factory over the given stores.
func NewElementsFactory(
	content *core.Dictionary[int, *ContentNode],
	media *core.Dictionary[int, *MediaNode],
	domains *core.Dictionary[int, Domain],
	cfg CacheConfig,
	defaultCulture string,
	logger *zap.Logger,
) (*ElementsFactory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElementsFactory{
		content:        content,
		media:          media,
		domains:        domains,
		cfg:            cfg,
		defaultCulture: defaultCulture,
		logger:         logger,
	}, nil
}

// GetElements snapshots every store. The elements cache is reused while none
// of the stores committed since the previous call. The caller must Close the
// result.
func (f *ElementsFactory) GetElements(ctx context.Context, preview bool) (*Elements, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.content == nil {
		return nil, ErrServiceStopped
	}

	contentSnap := f.content.CreateSnapshot(ctx)
	mediaSnap := f.media.CreateSnapshot(ctx)
	domainSnap := f.domains.CreateSnapshot(ctx)
	gens := [3]core.Generation{contentSnap.Gen(), mediaSnap.Gen(), domainSnap.Gen()}

	if f.cache == nil || f.cache.gens != gens {
		cache, err := newElementsCache(f.cfg, gens)
		if err != nil {
			contentSnap.Close(ctx)
			mediaSnap.Close(ctx)
			domainSnap.Close(ctx)
			return nil, err
		}
		if f.cache != nil {
			f.cache.release()
		}
		f.cache = cache
		f.logger.Debug("new elements cache",
			zap.Uint64("content", uint64(gens[0])),
			zap.Uint64("media", uint64(gens[1])),
			zap.Uint64("domains", uint64(gens[2])))
	}
	f.cache.acquire()

	domainCache := &DomainCache{snap: domainSnap, defaultCulture: f.defaultCulture}
	return &Elements{
		Content: &ContentCache{
			snap:    contentSnap,
			preview: preview,
			cache:   f.cache,
			domains: domainCache,
		},
		Media:       &MediaCache{snap: mediaSnap},
		Domains:     domainCache,
		Cache:       f.cache,
		preview:     preview,
		owner:       true,
		contentSnap: contentSnap,
		mediaSnap:   mediaSnap,
		domainSnap:  domainSnap,
	}, nil
}

// close drops the factory's hold on the shared cache. Elements still open
// keep it alive until they are closed.
func (f *ElementsFactory) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache != nil {
		f.cache.release()
		f.cache = nil
	}
	f.content, f.media, f.domains = nil, nil, nil
}
