// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads the YAML configuration shared by the gencache
// commands and maps it onto dictionary options and loggers.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/kianostad/gencache/internal/core"
	"github.com/kianostad/gencache/internal/monitoring/metrics"
)

// Config represents the complete configuration of a gencache command
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Bench   BenchConfig   `yaml:"bench"`
}

// CacheConfig holds dictionary configuration
type CacheConfig struct {
	Name            string        `yaml:"name"`
	Buckets         int           `yaml:"buckets"`
	LoadFactor      float64       `yaml:"load_factor"`
	CollectEvery    int           `yaml:"collect_every"`
	CollectInterval time.Duration `yaml:"collect_interval"`
	AutoCollect     *bool         `yaml:"auto_collect"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BufferSize     int    `yaml:"buffer_size"`
	LatencySamples int    `yaml:"latency_samples"`
	Namespace      string `yaml:"namespace"`
	Address        string `yaml:"address"`
	Path           string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BenchConfig holds the workload of cmd/bench
type BenchConfig struct {
	Duration     time.Duration `yaml:"duration"`
	Readers      int           `yaml:"readers"`
	Writers      int           `yaml:"writers"`
	Keys         int           `yaml:"keys"`
	SnapshotRate float64       `yaml:"snapshot_rate"`
	RemoveRate   float64       `yaml:"remove_rate"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Cache.Name == "" {
		cfg.Cache.Name = "default"
	}
	if cfg.Cache.Buckets == 0 {
		cfg.Cache.Buckets = core.DefaultBuckets
	}
	if cfg.Cache.CollectEvery == 0 {
		cfg.Cache.CollectEvery = core.DefaultCollectEvery
	}
	if cfg.Cache.AutoCollect == nil {
		enabled := true
		cfg.Cache.AutoCollect = &enabled
	}

	if cfg.Metrics.BufferSize == 0 {
		cfg.Metrics.BufferSize = metrics.DefaultMetricsConfig().BufferSize
	}
	if cfg.Metrics.LatencySamples == 0 {
		cfg.Metrics.LatencySamples = 1000
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "gencache"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Bench.Duration == 0 {
		cfg.Bench.Duration = 10 * time.Second
	}
	if cfg.Bench.Readers == 0 {
		cfg.Bench.Readers = 8
	}
	if cfg.Bench.Writers == 0 {
		cfg.Bench.Writers = 1
	}
	if cfg.Bench.Keys == 0 {
		cfg.Bench.Keys = 10000
	}
	if cfg.Bench.SnapshotRate == 0 {
		cfg.Bench.SnapshotRate = 0.1
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.Buckets < 0 {
		return fmt.Errorf("cache.buckets must not be negative")
	}
	if c.Cache.LoadFactor < 0 {
		return fmt.Errorf("cache.load_factor must not be negative")
	}
	if c.Cache.CollectEvery < 1 {
		return fmt.Errorf("cache.collect_every must be at least 1")
	}
	if c.Cache.CollectInterval < 0 {
		return fmt.Errorf("cache.collect_interval must not be negative")
	}
	if c.Metrics.BufferSize < 1 || c.Metrics.LatencySamples < 1 {
		return fmt.Errorf("metrics.buffer_size and metrics.latency_samples must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Bench.Readers < 0 || c.Bench.Writers < 1 || c.Bench.Keys < 1 {
		return fmt.Errorf("bench needs at least one writer and one key")
	}
	if c.Bench.SnapshotRate < 0 || c.Bench.SnapshotRate > 1 {
		return fmt.Errorf("bench.snapshot_rate must be between 0 and 1")
	}
	if c.Bench.RemoveRate < 0 || c.Bench.RemoveRate > 1 {
		return fmt.Errorf("bench.remove_rate must be between 0 and 1")
	}
	return nil
}

// Options maps the cache section onto dictionary options. m may be nil.
func (c CacheConfig) Options(logger *zap.Logger, m *metrics.Metrics) []core.Option {
	opts := []core.Option{
		core.WithName(c.Name),
		core.WithBuckets(c.Buckets),
		core.WithLoadFactor(c.LoadFactor),
		core.WithCollectEvery(c.CollectEvery),
		core.WithCollectInterval(c.CollectInterval),
		core.WithLogger(logger),
	}
	if c.AutoCollect != nil {
		opts = append(opts, core.WithAutoCollect(*c.AutoCollect))
	}
	if m != nil {
		opts = append(opts, core.WithMetrics(m))
	}
	return opts
}

// NewMetrics builds a metrics instance from the metrics section, or returns
// nil when metrics are disabled.
func (c MetricsConfig) NewMetrics() *metrics.Metrics {
	if !c.Enabled {
		return nil
	}
	mc := metrics.DefaultMetricsConfig()
	mc.BufferSize = c.BufferSize
	for op := range mc.LatencyBuffers {
		mc.LatencyBuffers[op] = c.LatencySamples
	}
	return metrics.NewMetricsWithConfig(mc)
}

// NewLogger builds a zap logger from the logging section.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
