// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/core"
)

var (
	// ErrNotReady is returned before the stores were loaded.
	ErrNotReady = errors.New("published snapshot service not loaded")
	// ErrServiceStopped is returned after Stop or Close.
	ErrServiceStopped = errors.New("published snapshot service stopped")
	// ErrClosed is returned by a closed PublishedSnapshot.
	ErrClosed = errors.New("published snapshot closed")
)

// DefaultQueueSize is the notification queue length of a new Service.
const DefaultQueueSize = 256

type serviceConfig struct {
	logger         *zap.Logger
	storeOptions   []core.Option
	cache          CacheConfig
	queueSize      int
	defaultCulture string
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

// WithLogger sets the logger of the service and its stores.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(c *serviceConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStoreOptions passes options to every store dictionary.
func WithStoreOptions(opts ...core.Option) ServiceOption {
	return func(c *serviceConfig) { c.storeOptions = append(c.storeOptions, opts...) }
}

// WithElementsCache sizes the shared elements cache.
func WithElementsCache(cfg CacheConfig) ServiceOption {
	return func(c *serviceConfig) { c.cache = cfg }
}

// WithQueueSize sets the notification queue length.
func WithQueueSize(n int) ServiceOption {
	return func(c *serviceConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithDefaultCulture sets the culture of content outside any domain.
func WithDefaultCulture(culture string) ServiceOption {
	return func(c *serviceConfig) { c.defaultCulture = culture }
}

// Service owns the content, media and domain stores. It is their single
// writer: notifications are applied one batch at a time, either directly
// through Notify or by the background loop started with Start.
type Service struct {
	repos  Repositories
	logger *zap.Logger

	content *core.Dictionary[int, *ContentNode]
	media   *core.Dictionary[int, *MediaNode]
	domains *core.Dictionary[int, Domain]
	factory *ElementsFactory

	ready atomic.Bool

	// serializes writers
	wmu sync.Mutex

	qmu     sync.RWMutex
	stopped bool
	queue   chan Notification
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewService creates a service over repos. The stores start empty; call
// Load before creating snapshots.
func NewService(repos Repositories, opts ...ServiceOption) (*Service, error) {
	if repos.Content == nil || repos.Media == nil || repos.Domains == nil {
		return nil, fmt.Errorf("published: content, media and domain repositories are required")
	}

	cfg := serviceConfig{
		logger:    zap.NewNop(),
		cache:     DefaultCacheConfig(),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	storeOpts := func(name string) []core.Option {
		o := []core.Option{core.WithLogger(cfg.logger)}
		o = append(o, cfg.storeOptions...)
		return append(o, core.WithName(name))
	}

	s := &Service{
		repos:   repos,
		logger:  cfg.logger.With(zap.String("component", "published")),
		content: core.New[int, *ContentNode](storeOpts("content")...),
		media:   core.New[int, *MediaNode](storeOpts("media")...),
		domains: core.New[int, Domain](storeOpts("domains")...),
		queue:   make(chan Notification, cfg.queueSize),
		done:    make(chan struct{}),
	}

	factory, err := NewElementsFactory(s.content, s.media, s.domains, cfg.cache, cfg.defaultCulture, s.logger)
	if err != nil {
		s.closeStores(context.Background())
		return nil, err
	}
	s.factory = factory
	return s, nil
}

// Load fills every store from the repositories, replacing whatever they held.
func (s *Service) Load(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := s.content.Update(ctx, func(w *core.Writer[int, *ContentNode]) error {
		_, err := reloadTree(ctx, w, s.repos.Content)
		return err
	}); err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}
	if _, err := s.media.Update(ctx, func(w *core.Writer[int, *MediaNode]) error {
		_, err := reloadTree(ctx, w, s.repos.Media)
		return err
	}); err != nil {
		return fmt.Errorf("failed to load media: %w", err)
	}
	if _, err := s.domains.Update(ctx, func(w *core.Writer[int, Domain]) error {
		return reloadDomains(ctx, w, s.repos.Domains, s.logger)
	}); err != nil {
		return fmt.Errorf("failed to load domains: %w", err)
	}

	s.ready.Store(true)
	s.logger.Info("loaded published stores",
		zap.Int("content", s.content.Count()),
		zap.Int("media", s.media.Count()),
		zap.Int("domains", s.domains.Count()))
	return nil
}

// Ready reports whether Load completed.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Notify applies one notification batch. Content type changes reload content
// and media completely. It stops at the first repository error; kinds
// applied before the error stay applied.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	content := n.Content
	media := n.Media
	if len(n.ContentTypes) > 0 {
		s.logger.Info("content types changed, reloading content and media",
			zap.Int("types", len(n.ContentTypes)))
		// a full reload supersedes node level changes of the same batch
		content = []ContentChange{{Changes: RefreshAll}}
		media = []MediaChange{{Changes: RefreshAll}}
	}

	if _, err := applyTreeChanges(ctx, s.content, s.repos.Content, content, s.logger); err != nil {
		return fmt.Errorf("failed to apply content changes: %w", err)
	}
	if _, err := applyTreeChanges(ctx, s.media, s.repos.Media, media, s.logger); err != nil {
		return fmt.Errorf("failed to apply media changes: %w", err)
	}
	if err := applyDomainChanges(ctx, s.domains, s.repos.Domains, n.Domains, s.logger); err != nil {
		return fmt.Errorf("failed to apply domain changes: %w", err)
	}
	return nil
}

// NotifyContent applies content changes in one update and reports whether
// anything changed.
func (s *Service) NotifyContent(ctx context.Context, changes ...ContentChange) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return applyTreeChanges(ctx, s.content, s.repos.Content, changes, s.logger)
}

// NotifyMedia applies media changes in one update and reports whether
// anything changed.
func (s *Service) NotifyMedia(ctx context.Context, changes ...MediaChange) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return applyTreeChanges(ctx, s.media, s.repos.Media, changes, s.logger)
}

// NotifyDomains applies domain changes in one update.
func (s *Service) NotifyDomains(ctx context.Context, changes ...DomainChange) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return applyDomainChanges(ctx, s.domains, s.repos.Domains, changes, s.logger)
}

// NotifyContentTypes invalidates and reloads content and media.
func (s *Service) NotifyContentTypes(ctx context.Context, changes ...ContentTypeChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.Notify(ctx, Notification{ContentTypes: changes})
}

// Start runs the background writer draining the notification queue. It may
// be called once; later calls do nothing.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
		s.logger.Info("published snapshot service started")
	})
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case n := <-s.queue:
			s.apply(ctx, n)
		case <-s.done:
			// apply what was queued before Stop
			for {
				select {
				case n := <-s.queue:
					s.apply(ctx, n)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) apply(ctx context.Context, n Notification) {
	if err := s.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", zap.Error(err))
	}
}

// Enqueue queues n for the background writer. It blocks while the queue is
// full.
func (s *Service) Enqueue(ctx context.Context, n Notification) error {
	if n.empty() {
		return nil
	}

	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.stopped {
		return ErrServiceStopped
	}
	select {
	case s.queue <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting notifications, applies the queued ones and waits for
// the background writer to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.qmu.Lock()
		s.stopped = true
		s.qmu.Unlock()

		close(s.done)
		s.wg.Wait()
		s.logger.Info("published snapshot service stopped")
	})
}

// Close stops the service and its stores. Open snapshots stay readable.
func (s *Service) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.Stop()
		s.ready.Store(false)
		s.factory.close()
		s.closeStores(ctx)
	})
}

func (s *Service) closeStores(ctx context.Context) {
	s.content.Close(ctx)
	s.media.Close(ctx)
	s.domains.Close(ctx)
}

// Factory returns the elements factory of the service.
func (s *Service) Factory() *ElementsFactory {
	return s.factory
}

// Stores returns the store dictionaries, for diagnostics.
func (s *Service) Stores() (*core.Dictionary[int, *ContentNode], *core.Dictionary[int, *MediaNode], *core.Dictionary[int, Domain]) {
	return s.content, s.media, s.domains
}

// Collect runs a synchronous collection on every store.
func (s *Service) Collect(ctx context.Context) {
	s.content.Collect(ctx)
	s.media.Collect(ctx)
	s.domains.Collect(ctx)
}

// CreatePublishedSnapshot returns a per-request snapshot. A non-empty
// preview token makes it default to preview mode.
func (s *Service) CreatePublishedSnapshot(previewToken string) (*PublishedSnapshot, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}
	return &PublishedSnapshot{
		factory: s.factory,
		preview: previewToken != "",
	}, nil
}
