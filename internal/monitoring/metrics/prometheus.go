// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes one Metrics instance to Prometheus. Several collectors
// can be registered side by side as long as their constant labels differ.
type Collector struct {
	source *Metrics

	operations   *prometheus.Desc
	errors       *prometheus.Desc
	stagedWrites *prometheus.Desc
	latency      *prometheus.Desc
	generation   *prometheus.Desc
	liveGens     *prometheus.Desc
	liveSnaps    *prometheus.Desc
	keys         *prometheus.Desc
	chainLength  *prometheus.Desc
	collected    *prometheus.Desc
	removedKeys  *prometheus.Desc
	deferred     *prometheus.Desc
	leaked       *prometheus.Desc
	dropped      *prometheus.Desc
}

// NewCollector creates a collector for m under namespace, with labels
// attached to every series (typically {"dictionary": name}).
func NewCollector(namespace string, m *Metrics, labels prometheus.Labels) *Collector {
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}

	return &Collector{
		source:       m,
		operations:   desc("operations_total", "Total number of operations", "operation"),
		errors:       desc("errors_total", "Total number of failed operations", "operation"),
		stagedWrites: desc("staged_writes_total", "Writes committed through updates and batches"),
		latency:      desc("operation_latency_seconds", "Recent operation latency", "operation"),
		generation:   desc("generation", "Committed generation"),
		liveGens:     desc("live_generations", "Distinct generations pinned by snapshots"),
		liveSnaps:    desc("live_snapshots", "Snapshots not yet released"),
		keys:         desc("keys", "Keys in the index, tombstoned keys included"),
		chainLength:  desc("chain_length", "Average version chain length after the last collection"),
		collected:    desc("collected_versions_total", "Versions unlinked by the collector"),
		removedKeys:  desc("removed_keys_total", "Keys removed from the index by the collector"),
		deferred:     desc("deferred_collections_total", "Background collections skipped because the writer was busy"),
		leaked:       desc("leaked_snapshots_total", "Snapshots released by the runtime without Close"),
		dropped:      desc("dropped_events_total", "Metric events dropped because the buffer was full"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.operations, c.errors, c.stagedWrites, c.latency,
		c.generation, c.liveGens, c.liveSnaps, c.keys, c.chainLength,
		c.collected, c.removedKeys, c.deferred, c.leaked, c.dropped,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.GetStats()

	counter := func(d *prometheus.Desc, v uint64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), lv...)
	}
	gauge := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	ops := stats.Operations
	counter(c.operations, ops.Get, OpGet)
	counter(c.operations, ops.Set, OpSet)
	counter(c.operations, ops.Remove, OpRemove)
	counter(c.operations, ops.Clear, OpClear)
	counter(c.operations, ops.Snapshot, OpSnapshot)
	counter(c.operations, ops.Update, OpUpdate)
	counter(c.operations, ops.Apply, OpApply)
	counter(c.operations, ops.Collect, OpCollect)
	counter(c.stagedWrites, ops.StagedWrites)

	counter(c.errors, stats.Errors.Update, OpUpdate)
	counter(c.errors, stats.Errors.Apply, OpApply)

	for op, l := range map[string]LatencyStats{
		OpGet:      stats.Latency.Get,
		OpSet:      stats.Latency.Set,
		OpRemove:   stats.Latency.Remove,
		OpClear:    stats.Latency.Clear,
		OpSnapshot: stats.Latency.Snapshot,
		OpUpdate:   stats.Latency.Update,
		OpApply:    stats.Latency.Apply,
		OpCollect:  stats.Latency.Collect,
	} {
		ch <- prometheus.MustNewConstSummary(
			c.latency,
			l.Count,
			l.Mean.Seconds()*float64(l.Count),
			map[float64]float64{
				0.5:  l.P50.Seconds(),
				0.95: l.P95.Seconds(),
				0.99: l.P99.Seconds(),
			},
			op,
		)
	}

	g := stats.Gauges
	gauge(c.generation, g.Generation)
	gauge(c.liveGens, g.LiveGenerations)
	gauge(c.liveSnaps, g.LiveSnapshots)
	gauge(c.keys, g.Keys)
	gauge(c.chainLength, g.ChainLength)

	counter(c.collected, stats.Collector.CollectedVersions)
	counter(c.removedKeys, stats.Collector.RemovedKeys)
	counter(c.deferred, stats.Collector.DeferredRuns)
	counter(c.leaked, stats.Collector.LeakedSnapshots)
	counter(c.dropped, stats.Dropped)
}
