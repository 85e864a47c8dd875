// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics provides performance monitoring and observability for the
// snapshot dictionary.
//
// Operations are recorded as events on a buffered channel and folded into
// counters and latency ring buffers by a background goroutine, so recording
// never blocks a reader or the writer. Gauges describing the generation state
// (live generations, live snapshots, keys, chain length) are set directly.
//
// # Key Features
//
//   - Non-blocking operation recording through a buffered channel
//   - Operation counts for get, set, remove, clear, snapshot, update, apply and collect
//   - Latency percentiles from bounded ring buffers
//   - Collector statistics: runs, deferred runs, dropped versions, removed keys
//   - Generation gauges and leaked snapshot counting
//   - JSON export and a prometheus.Collector (see prometheus.go)
//
// # Usage Examples
//
//	m := metrics.NewMetrics()
//	defer m.Close()
//
//	start := time.Now()
//	// ... perform operation ...
//	m.RecordGet(time.Since(start))
//
//	m.SetGauges(metrics.Gauges{Generation: 12, LiveGenerations: 2, LiveSnapshots: 5})
//
//	stats := m.GetStats()
//	fmt.Printf("gets: %d, p99: %s\n", stats.Operations.Get, stats.Latency.Get.P99)
//
// # Dangers and Warnings
//
//   - **Background Goroutine**: Requires cleanup with Close().
//   - **Event Loss**: If the buffer is full, events are dropped rather than blocking the caller.
//   - **Recording After Close**: Events recorded after Close are discarded.
//
// # Thread Safety
//
// All methods are safe for concurrent use. GetStats folds any queued events
// before reading, so a caller that recorded an event and then asks for stats
// from the same goroutine observes it.
package metrics

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event types
const (
	OpGet      = "get"
	OpSet      = "set"
	OpRemove   = "remove"
	OpClear    = "clear"
	OpSnapshot = "snapshot"
	OpUpdate   = "update"
	OpApply    = "apply"
	OpCollect  = "collect"
)

// LatencyStats provides comprehensive latency statistics
type LatencyStats struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	P999  time.Duration `json:"p999"`
}

// OperationCounts tracks counts for all operation types
type OperationCounts struct {
	Get      uint64 `json:"get"`
	Set      uint64 `json:"set"`
	Remove   uint64 `json:"remove"`
	Clear    uint64 `json:"clear"`
	Snapshot uint64 `json:"snapshot"`
	Update   uint64 `json:"update"`
	Apply    uint64 `json:"apply"`
	Collect  uint64 `json:"collect"`
	// Writes staged through Update and Apply
	StagedWrites uint64 `json:"staged_writes"`
}

// ErrorCounts tracks error counts for operations that can fail
type ErrorCounts struct {
	Update uint64 `json:"update"`
	Apply  uint64 `json:"apply"`
}

// CollectorMetrics tracks what the collector reclaimed
type CollectorMetrics struct {
	DeferredRuns      uint64 `json:"deferred_runs"`
	CollectedVersions uint64 `json:"collected_versions"`
	RemovedKeys       uint64 `json:"removed_keys"`
	LeakedSnapshots   uint64 `json:"leaked_snapshots"`
}

// Gauges is the generation state of a dictionary at one point in time
type Gauges struct {
	Generation      uint64 `json:"generation"`
	LiveGenerations uint64 `json:"live_generations"`
	LiveSnapshots   uint64 `json:"live_snapshots"`
	Keys            uint64 `json:"keys"`
	ChainLength     uint64 `json:"chain_length"`
}

// LatencyMetrics tracks latency data for all operations
type LatencyMetrics struct {
	Get      LatencyStats `json:"get"`
	Set      LatencyStats `json:"set"`
	Remove   LatencyStats `json:"remove"`
	Clear    LatencyStats `json:"clear"`
	Snapshot LatencyStats `json:"snapshot"`
	Update   LatencyStats `json:"update"`
	Apply    LatencyStats `json:"apply"`
	Collect  LatencyStats `json:"collect"`
}

// MetricsSnapshot provides a complete snapshot of all metrics
type MetricsSnapshot struct {
	Operations    OperationCounts  `json:"operations"`
	Errors        ErrorCounts      `json:"errors"`
	Collector     CollectorMetrics `json:"collector"`
	Gauges        Gauges           `json:"gauges"`
	Latency       LatencyMetrics   `json:"latency"`
	Configuration MetricsConfig    `json:"config"`
	Dropped       uint64           `json:"dropped_events"`
}

// MetricEvent represents a single metric event
type MetricEvent struct {
	Type     string
	Duration time.Duration
	Count    int // staged writes, dropped versions
	Extra    int // removed keys
	Error    bool
}

// DurationRingBuffer implements a thread-safe bounded ring buffer for time.Duration
type DurationRingBuffer struct {
	buffer []time.Duration
	head   int
	tail   int
	size   int
	count  int
	mu     sync.RWMutex
}

// NewDurationRingBuffer creates a new ring buffer with specified capacity.
// A non-positive capacity is treated as 1.
func NewDurationRingBuffer(capacity int) *DurationRingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &DurationRingBuffer{
		buffer: make([]time.Duration, capacity),
		size:   capacity,
	}
}

// Push adds an item to the ring buffer
func (rb *DurationRingBuffer) Push(item time.Duration) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buffer[rb.tail] = item
	rb.tail = (rb.tail + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % rb.size
	}
}

// GetAverage calculates the average of time.Duration values in the buffer
func (rb *DurationRingBuffer) GetAverage() time.Duration {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return 0
	}

	var total time.Duration
	for i := 0; i < rb.count; i++ {
		total += rb.buffer[(rb.head+i)%rb.size]
	}
	return total / time.Duration(rb.count)
}

// GetStats calculates comprehensive latency statistics
func (rb *DurationRingBuffer) GetStats() LatencyStats {
	rb.mu.RLock()
	if rb.count == 0 {
		rb.mu.RUnlock()
		return LatencyStats{}
	}
	values := make([]time.Duration, rb.count)
	for i := 0; i < rb.count; i++ {
		values[i] = rb.buffer[(rb.head+i)%rb.size]
	}
	rb.mu.RUnlock()

	sort.Slice(values, func(i, j int) bool {
		return values[i] < values[j]
	})

	stats := LatencyStats{
		Count: uint64(len(values)),
		Min:   values[0],
		Max:   values[len(values)-1],
	}

	var total time.Duration
	for _, v := range values {
		total += v
	}
	stats.Mean = total / time.Duration(len(values))

	stats.P50 = percentile(values, 0.50)
	stats.P95 = percentile(values, 0.95)
	stats.P99 = percentile(values, 0.99)
	stats.P999 = percentile(values, 0.999)

	return stats
}

// percentile calculates the nth percentile from sorted values
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}

	index := int(float64(len(values)-1) * p)
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

// MetricsConfig provides configuration options for metrics collection
type MetricsConfig struct {
	BufferSize     int            `json:"buffer_size"`     // Size of event buffer
	LatencyBuffers map[string]int `json:"latency_buffers"` // Per-operation ring buffer sizes
}

// DefaultMetricsConfig returns a default configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		BufferSize: 10000,
		LatencyBuffers: map[string]int{
			OpGet:      1000,
			OpSet:      1000,
			OpRemove:   1000,
			OpClear:    100,
			OpSnapshot: 1000,
			OpUpdate:   100,
			OpApply:    100,
			OpCollect:  100,
		},
	}
}

// Metrics tracks dictionary metrics using a buffered channel and ring buffers
type Metrics struct {
	config MetricsConfig

	eventChan chan MetricEvent
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.RWMutex

	ops       OperationCounts
	errors    ErrorCounts
	collector CollectorMetrics
	gauges    Gauges

	getLatency      *DurationRingBuffer
	setLatency      *DurationRingBuffer
	removeLatency   *DurationRingBuffer
	clearLatency    *DurationRingBuffer
	snapshotLatency *DurationRingBuffer
	updateLatency   *DurationRingBuffer
	applyLatency    *DurationRingBuffer
	collectLatency  *DurationRingBuffer
}

// NewMetrics creates a new metrics instance with default configuration
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(DefaultMetricsConfig())
}

// NewBufferedMetrics creates a new metrics instance with configurable buffer size
func NewBufferedMetrics(bufferSize int) *Metrics {
	config := DefaultMetricsConfig()
	config.BufferSize = bufferSize
	return NewMetricsWithConfig(config)
}

// NewMetricsWithConfig creates a new metrics instance with custom configuration
func NewMetricsWithConfig(config MetricsConfig) *Metrics {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Metrics{
		config:          config,
		eventChan:       make(chan MetricEvent, config.BufferSize),
		ctx:             ctx,
		cancel:          cancel,
		getLatency:      NewDurationRingBuffer(config.LatencyBuffers[OpGet]),
		setLatency:      NewDurationRingBuffer(config.LatencyBuffers[OpSet]),
		removeLatency:   NewDurationRingBuffer(config.LatencyBuffers[OpRemove]),
		clearLatency:    NewDurationRingBuffer(config.LatencyBuffers[OpClear]),
		snapshotLatency: NewDurationRingBuffer(config.LatencyBuffers[OpSnapshot]),
		updateLatency:   NewDurationRingBuffer(config.LatencyBuffers[OpUpdate]),
		applyLatency:    NewDurationRingBuffer(config.LatencyBuffers[OpApply]),
		collectLatency:  NewDurationRingBuffer(config.LatencyBuffers[OpCollect]),
	}

	m.wg.Add(1)
	go m.processEvents()

	return m
}

// processEvents runs in background goroutine to process metric events
func (m *Metrics) processEvents() {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.eventChan:
			m.processEvent(event)
		case <-m.ctx.Done():
			return
		}
	}
}

// drain folds every queued event without waiting for new ones
func (m *Metrics) drain() {
	for {
		select {
		case event := <-m.eventChan:
			m.processEvent(event)
		default:
			return
		}
	}
}

// processEvent handles a single metric event
func (m *Metrics) processEvent(event MetricEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Type {
	case OpGet:
		m.ops.Get++
		m.getLatency.Push(event.Duration)
	case OpSet:
		m.ops.Set++
		m.setLatency.Push(event.Duration)
	case OpRemove:
		m.ops.Remove++
		m.removeLatency.Push(event.Duration)
	case OpClear:
		m.ops.Clear++
		m.clearLatency.Push(event.Duration)
	case OpSnapshot:
		m.ops.Snapshot++
		m.snapshotLatency.Push(event.Duration)
	case OpUpdate:
		if event.Error {
			m.errors.Update++
			return
		}
		m.ops.Update++
		m.ops.StagedWrites += uint64(event.Count)
		m.updateLatency.Push(event.Duration)
	case OpApply:
		if event.Error {
			m.errors.Apply++
			return
		}
		m.ops.Apply++
		m.ops.StagedWrites += uint64(event.Count)
		m.applyLatency.Push(event.Duration)
	case OpCollect:
		m.ops.Collect++
		m.collector.CollectedVersions += uint64(event.Count)
		m.collector.RemovedKeys += uint64(event.Extra)
		m.collectLatency.Push(event.Duration)
	case "collect_deferred":
		m.collector.DeferredRuns++
	case "snapshot_leaked":
		m.collector.LeakedSnapshots++
	}
}

// record queues an event without blocking
func (m *Metrics) record(event MetricEvent) {
	if m.closed.Load() {
		return
	}
	select {
	case m.eventChan <- event:
	default:
		// Channel full, drop the event to avoid blocking
		m.dropped.Add(1)
	}
}

// RecordGet records a read of the committed state
func (m *Metrics) RecordGet(duration time.Duration) {
	m.record(MetricEvent{Type: OpGet, Duration: duration})
}

// RecordSet records a single-key write
func (m *Metrics) RecordSet(duration time.Duration) {
	m.record(MetricEvent{Type: OpSet, Duration: duration})
}

// RecordRemove records a single-key removal
func (m *Metrics) RecordRemove(duration time.Duration) {
	m.record(MetricEvent{Type: OpRemove, Duration: duration})
}

// RecordClear records a clear
func (m *Metrics) RecordClear(duration time.Duration) {
	m.record(MetricEvent{Type: OpClear, Duration: duration})
}

// RecordSnapshot records a snapshot creation
func (m *Metrics) RecordSnapshot(duration time.Duration) {
	m.record(MetricEvent{Type: OpSnapshot, Duration: duration})
}

// RecordUpdate records a committed update scope and the number of writes it staged
func (m *Metrics) RecordUpdate(duration time.Duration, writes int) {
	m.record(MetricEvent{Type: OpUpdate, Duration: duration, Count: writes})
}

// RecordApply records an applied batch
func (m *Metrics) RecordApply(duration time.Duration, writes int) {
	m.record(MetricEvent{Type: OpApply, Duration: duration, Count: writes})
}

// RecordCollect records a collection run
func (m *Metrics) RecordCollect(duration time.Duration, droppedVersions, removedKeys int) {
	m.record(MetricEvent{Type: OpCollect, Duration: duration, Count: droppedVersions, Extra: removedKeys})
}

// RecordDeferredCollect records a background collection skipped because the writer was busy
func (m *Metrics) RecordDeferredCollect() {
	m.record(MetricEvent{Type: "collect_deferred"})
}

// RecordLeakedSnapshot records a snapshot released by the runtime instead of Close
func (m *Metrics) RecordLeakedSnapshot() {
	m.record(MetricEvent{Type: "snapshot_leaked"})
}

// RecordError records a failed update or apply
func (m *Metrics) RecordError(op string) {
	m.record(MetricEvent{Type: op, Error: true})
}

// SetGauges replaces the generation gauges
func (m *Metrics) SetGauges(g Gauges) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = g
}

// SetChainLength sets the average chain length
func (m *Metrics) SetChainLength(length uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges.ChainLength = length
}

// GetStats returns a snapshot of current metrics
func (m *Metrics) GetStats() MetricsSnapshot {
	m.drain()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		Operations: m.ops,
		Errors:     m.errors,
		Collector:  m.collector,
		Gauges:     m.gauges,
		Latency: LatencyMetrics{
			Get:      m.getLatency.GetStats(),
			Set:      m.setLatency.GetStats(),
			Remove:   m.removeLatency.GetStats(),
			Clear:    m.clearLatency.GetStats(),
			Snapshot: m.snapshotLatency.GetStats(),
			Update:   m.updateLatency.GetStats(),
			Apply:    m.applyLatency.GetStats(),
			Collect:  m.collectLatency.GetStats(),
		},
		Configuration: m.config,
		Dropped:       m.dropped.Load(),
	}
}

// ExportJSON exports metrics as JSON
func (m *Metrics) ExportJSON() []byte {
	stats := m.GetStats()
	jsonData, _ := json.MarshalIndent(stats, "", "  ")
	return jsonData
}

// Close shuts down the metrics processor. It is safe to call more than once.
func (m *Metrics) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.cancel()
		m.wg.Wait()
	})
}
