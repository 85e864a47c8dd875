// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/monitoring/metrics"
)

// DefaultCollectEvery is the number of commits between automatic collections.
const DefaultCollectEvery = 8

// DefaultBuckets is the initial bucket count of the key index.
const DefaultBuckets = 1024

type config struct {
	name            string
	logger          *zap.Logger
	metrics         *metrics.Metrics
	ownMetrics      bool
	buckets         uint64
	loadFactor      float64
	collectEvery    int
	collectInterval time.Duration
	autoCollect     bool
}

func defaultConfig() config {
	return config{
		name:         "default",
		logger:       zap.NewNop(),
		ownMetrics:   true,
		buckets:      DefaultBuckets,
		collectEvery: DefaultCollectEvery,
		autoCollect:  true,
	}
}

// Option configures a Dictionary.
type Option func(*config)

// WithName sets the name attached to log entries and metrics.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l == nil {
			l = zap.NewNop()
		}
		c.logger = l
	}
}

// WithMetrics records into m instead of a private instance. The dictionary
// does not close m. A nil m disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
		c.ownMetrics = false
	}
}

// WithBuckets sets the initial bucket count of the key index. It is rounded
// up to a power of two.
func WithBuckets(n int) Option {
	return func(c *config) {
		if n <= 0 {
			return
		}
		b := uint64(1)
		for b < uint64(n) {
			b <<= 1
		}
		c.buckets = b
	}
}

// WithLoadFactor sets the average number of keys per index bucket above
// which the index grows. Non-positive values keep the default of 0.75.
func WithLoadFactor(f float64) Option {
	return func(c *config) { c.loadFactor = f }
}

// WithCollectEvery sets how many commits trigger a background collection.
// Values below 1 fall back to DefaultCollectEvery.
func WithCollectEvery(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = DefaultCollectEvery
		}
		c.collectEvery = n
	}
}

// WithCollectInterval additionally runs the collector on a fixed period.
// Zero disables periodic collection.
func WithCollectInterval(d time.Duration) Option {
	return func(c *config) { c.collectInterval = d }
}

// WithAutoCollect enables or disables every automatic collection trigger.
// With auto collection off, versions are only reclaimed by Collect.
func WithAutoCollect(enabled bool) Option {
	return func(c *config) { c.autoCollect = enabled }
}
