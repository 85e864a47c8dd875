// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRegisters(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	reg := prometheus.NewPedanticRegistry()
	c := NewCollector("gencache", m, prometheus.Labels{"dictionary": "content"})
	if err := reg.Register(c); err != nil {
		t.Fatalf("Failed to register collector: %v", err)
	}

	// A second dictionary with a different label value coexists
	other := NewMetrics()
	defer other.Close()
	if err := reg.Register(NewCollector("gencache", other, prometheus.Labels{"dictionary": "media"})); err != nil {
		t.Fatalf("Failed to register second collector: %v", err)
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
}

func TestCollectorValues(t *testing.T) {
	m := NewMetrics()
	defer m.Close()

	m.RecordSet(time.Millisecond)
	m.RecordSet(time.Millisecond)
	m.SetGauges(Gauges{Generation: 2, LiveSnapshots: 1})
	waitForStats(t, m, func(s MetricsSnapshot) bool { return s.Operations.Set == 2 })

	c := NewCollector("gencache", m, prometheus.Labels{"dictionary": "test"})

	expected := `
# HELP gencache_generation Committed generation
# TYPE gencache_generation gauge
gencache_generation{dictionary="test"} 2
# HELP gencache_live_snapshots Snapshots not yet released
# TYPE gencache_live_snapshots gauge
gencache_live_snapshots{dictionary="test"} 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "gencache_generation", "gencache_live_snapshots"); err != nil {
		t.Errorf("Unexpected gauge output: %v", err)
	}

	// 8 operation series, 2 error series, 8 latency summaries, 11 single series
	if n := testutil.CollectAndCount(c); n != 29 {
		t.Errorf("Expected 29 series, got %d", n)
	}
}
