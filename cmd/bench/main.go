// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides benchmarking tools for the generation-versioned
// dictionary.
//
// The tool runs a fixed set of micro benchmarks followed by a timed mixed
// workload whose shape comes from the bench section of the config file.
//
// # Benchmark Categories
//
// The benchmark suite includes:
//   - Single-threaded operations (baseline performance)
//   - Concurrent reads under a running writer
//   - Snapshot creation and pinned reads
//   - Multi-key updates and batches
//   - Collection of long version chains
//   - Mixed workload (readers, writers, snapshots and removals for a
//     configured duration)
//
// # Usage
//
// Run all benchmarks with defaults:
//
//	go run ./cmd/bench
//
// Run with a config file and expose Prometheus metrics while running:
//
//	go run ./cmd/bench -config bench.yaml
//
// Example bench section:
//
//	bench:
//	  duration: 30s
//	  readers: 16
//	  writers: 2
//	  keys: 100000
//	  snapshot_rate: 0.05
//	  remove_rate: 0.1
//
// When metrics are enabled the registry is served on metrics.address at
// metrics.path for the whole run.
//
// # Dangers and Warnings
//
//   - **Resource Consumption**: Benchmarks can consume significant CPU and memory resources.
//   - **Data Loss**: Benchmarks use in-memory dictionaries; all data is lost after completion.
//   - **Garbage Collection**: Go's GC may impact benchmark results unpredictably.
//   - **Writers Serialize**: Adding writers measures lock contention, not parallel write throughput.
//
// # Interpreting Results
//
// Key metrics to consider:
//   - **Throughput**: Operations per second (higher is better)
//   - **Deferred Collections**: Background runs that found the writer busy
//   - **Chain Length**: Average versions per key after the last collection
//
// # See Also
//
// For interactive testing, see the REPL tool.
// For detailed API documentation, see the core package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/config"
	"github.com/kianostad/gencache/internal/core"
	"github.com/kianostad/gencache/internal/monitoring/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Println("Generation Cache Benchmarks")
	fmt.Println("===========================")

	// Benchmark 1: Single-threaded operations
	benchmarkSingleThreaded()

	// Benchmark 2: Concurrent reads with one writer
	benchmarkConcurrentReads()

	// Benchmark 3: Snapshot performance
	benchmarkSnapshots()

	// Benchmark 4: Updates and batches
	benchmarkUpdates()

	// Benchmark 5: Collection
	benchmarkCollect()

	// Benchmark 6: Configured mixed workload
	m := cfg.Metrics.NewMetrics()
	if m != nil {
		defer m.Close()
		srv := serveMetrics(cfg.Metrics, cfg.Cache.Name, m, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}
	benchmarkMixedWorkload(*cfg, m, logger)
}

func report(label string, ops int, duration time.Duration) {
	fmt.Printf("   %s: %d ops in %v (%.0f ops/sec)\n", label, ops, duration, float64(ops)/duration.Seconds())
}

func benchmarkSingleThreaded() {
	fmt.Println("\n1. Single-threaded operations")
	ctx := context.Background()
	d := core.New[int, int](core.WithMetrics(nil))
	defer d.Close(ctx)

	const numKeys = 100000
	start := time.Now()
	for i := 0; i < numKeys; i++ {
		d.Set(ctx, i, i)
	}
	report("Set", numKeys, time.Since(start))

	start = time.Now()
	for i := 0; i < numKeys; i++ {
		d.Get(ctx, i)
	}
	report("Get", numKeys, time.Since(start))

	start = time.Now()
	for i := 0; i < numKeys; i++ {
		d.Remove(ctx, i)
	}
	report("Remove", numKeys, time.Since(start))
}

func benchmarkConcurrentReads() {
	fmt.Println("\n2. Concurrent reads with one writer")
	ctx := context.Background()
	d := core.New[int, int](core.WithMetrics(nil))
	defer d.Close(ctx)

	const numKeys = 10000
	for i := 0; i < numKeys; i++ {
		d.Set(ctx, i, i)
	}

	for _, numGoroutines := range []int{1, 2, 4, 8, 16, 32} {
		var wg sync.WaitGroup
		stop := make(chan struct{})
		const opsPerGoroutine = 10000

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
					d.Set(ctx, i%numKeys, i)
				}
			}
		}()

		var readers sync.WaitGroup
		start := time.Now()
		for i := 0; i < numGoroutines; i++ {
			readers.Add(1)
			go func() {
				defer readers.Done()
				for j := 0; j < opsPerGoroutine; j++ {
					d.Get(ctx, j%numKeys)
				}
			}()
		}
		readers.Wait()
		duration := time.Since(start)
		close(stop)
		wg.Wait()

		report(fmt.Sprintf("%d readers", numGoroutines), numGoroutines*opsPerGoroutine, duration)
	}
}

func benchmarkSnapshots() {
	fmt.Println("\n3. Snapshot performance")
	ctx := context.Background()
	d := core.New[int, int](core.WithMetrics(nil))
	defer d.Close(ctx)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		d.Set(ctx, i, i)
	}

	const numSnapshots = 100000
	start := time.Now()
	for i := 0; i < numSnapshots; i++ {
		d.CreateSnapshot(ctx).Close(ctx)
	}
	report("Create and close", numSnapshots, time.Since(start))

	const pinned = 1000
	start = time.Now()
	for i := 0; i < pinned; i++ {
		snap := d.CreateSnapshot(ctx)
		for j := 0; j < numKeys; j++ {
			snap.Get(ctx, j)
		}
		snap.Close(ctx)
		d.Set(ctx, i%numKeys, -i)
	}
	report(fmt.Sprintf("%d snapshots with %d reads each", pinned, numKeys), pinned*numKeys, time.Since(start))

	snap := d.CreateSnapshot(ctx)
	start = time.Now()
	count := 0
	for range snap.All(ctx) {
		count++
	}
	snap.Close(ctx)
	report("Iterate", count, time.Since(start))
}

func benchmarkUpdates() {
	fmt.Println("\n4. Updates and batches")
	ctx := context.Background()
	d := core.New[int, int](core.WithMetrics(nil))
	defer d.Close(ctx)

	const rounds, width = 10000, 16
	start := time.Now()
	for i := 0; i < rounds; i++ {
		_, err := d.Update(ctx, func(w *core.Writer[int, int]) error {
			for j := 0; j < width; j++ {
				w.Set(j, i)
			}
			return nil
		})
		if err != nil {
			fmt.Printf("   update failed: %v\n", err)
			return
		}
	}
	report(fmt.Sprintf("Update (%d keys)", width), rounds*width, time.Since(start))

	batch := core.NewBatch[int, int]()
	start = time.Now()
	for i := 0; i < rounds; i++ {
		batch.Reset()
		for j := 0; j < width; j++ {
			batch.Set(j, -i)
		}
		if _, err := d.Apply(ctx, batch); err != nil {
			fmt.Printf("   apply failed: %v\n", err)
			return
		}
	}
	report(fmt.Sprintf("Apply (%d keys)", width), rounds*width, time.Since(start))
}

func benchmarkCollect() {
	fmt.Println("\n5. Collection")
	ctx := context.Background()
	d := core.New[int, int](core.WithMetrics(nil), core.WithAutoCollect(false))
	defer d.Close(ctx)

	const numKeys, depth = 10000, 20
	for v := 0; v < depth; v++ {
		for i := 0; i < numKeys; i++ {
			d.Set(ctx, i, v)
		}
	}

	stats := d.Collect(ctx)
	fmt.Printf("   Collected %d versions from %d keys in %v\n", stats.Dropped, stats.Keys, stats.Duration)
}

func serveMetrics(cfg config.MetricsConfig, name string, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(cfg.Namespace, m, prometheus.Labels{"dictionary": name}))

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("address", cfg.Address), zap.String("path", cfg.Path))
	return srv
}

func benchmarkMixedWorkload(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) {
	bc := cfg.Bench
	fmt.Printf("\n6. Mixed workload (%d readers, %d writers, %v)\n", bc.Readers, bc.Writers, bc.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), bc.Duration)
	defer cancel()

	d := core.New[int, int](cfg.Cache.Options(logger, m)...)
	defer d.Close(context.Background())

	for i := 0; i < bc.Keys; i++ {
		d.Set(ctx, i, i)
	}

	var reads, writes, removes, snapshots atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < bc.Readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if rand.Float64() < bc.SnapshotRate {
					snap := d.CreateSnapshot(ctx)
					for j := 0; j < 100; j++ {
						snap.Get(ctx, rand.IntN(bc.Keys))
					}
					snap.Close(ctx)
					snapshots.Add(1)
					reads.Add(100)
					continue
				}
				d.Get(ctx, rand.IntN(bc.Keys))
				reads.Add(1)
			}
		}()
	}

	for i := 0; i < bc.Writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; ctx.Err() == nil; n++ {
				key := rand.IntN(bc.Keys)
				if rand.Float64() < bc.RemoveRate {
					d.Remove(ctx, key)
					removes.Add(1)
					continue
				}
				d.Set(ctx, key, n)
				writes.Add(1)
			}
		}()
	}

	wg.Wait()
	duration := time.Since(start)

	report("Reads", int(reads.Load()), duration)
	report("Sets", int(writes.Load()), duration)
	report("Removes", int(removes.Load()), duration)
	fmt.Printf("   Snapshots: %d\n", snapshots.Load())
	fmt.Printf("   Final generation: %d, keys: %d\n", d.Generation(), d.Count())

	if m != nil {
		stats := d.GetMetrics(context.Background())
		fmt.Printf("   Collections: %d (deferred %d), versions collected: %d, keys removed: %d\n",
			stats.Operations.Collect, stats.Collector.DeferredRuns,
			stats.Collector.CollectedVersions, stats.Collector.RemovedKeys)
		fmt.Printf("   Average chain length: %d\n", stats.Gauges.ChainLength)
		fmt.Printf("   Get p99: %v, Set p99: %v\n", stats.Latency.Get.P99, stats.Latency.Set.P99)
	}
}
