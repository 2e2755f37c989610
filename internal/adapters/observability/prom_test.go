package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs(nil)

	obs.IncCounter("sensormux_events_dispatched_total", 16)
	if got := testutil.ToFloat64(obs.counters["sensormux_events_dispatched_total"]); got != 16 {
		t.Fatalf("expected dispatched counter 16, got %f", got)
	}

	obs.IncCounter("sensormux_batches_dropped_total", 2)
	if got := testutil.ToFloat64(obs.counters["sensormux_batches_dropped_total"]); got != 2 {
		t.Fatalf("expected drop counter 2, got %f", got)
	}

	obs.IncCounter("sensormux_poll_failures_total", 1)
	if got := testutil.ToFloat64(obs.counters["sensormux_poll_failures_total"]); got != 1 {
		t.Fatalf("expected poll failure counter 1, got %f", got)
	}

	obs.SetGauge("sensormux_active_sensors", 3)
	if got := testutil.ToFloat64(obs.gauges["sensormux_active_sensors"]); got != 3 {
		t.Fatalf("expected active sensors gauge 3, got %f", got)
	}

	obs.SetGauge("sensormux_active_connections", 2)
	if got := testutil.ToFloat64(obs.gauges["sensormux_active_connections"]); got != 2 {
		t.Fatalf("expected active connections gauge 2, got %f", got)
	}

	obs.ObserveLatency("sensormux_dispatch_seconds", 0.002)
	hCollector := obs.histos["sensormux_dispatch_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	// unknown names are ignored, not registered on the fly
	obs.IncCounter("sensormux_unknown_total", 1)
	obs.SetGauge("sensormux_unknown", 1)
	obs.ObserveLatency("sensormux_unknown_seconds", 1)
}
