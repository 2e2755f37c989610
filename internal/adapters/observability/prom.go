// Package observability wires the service's counters and gauges into
// Prometheus and its logging into zap.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sensormux/internal/ports"
)

type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(log *zap.Logger) *PromObs {
	if log == nil {
		log = zap.NewNop()
	}

	dispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensormux_events_dispatched_total",
		Help: "Total hardware events fanned out to connections.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensormux_batches_dropped_total",
		Help: "Filtered batches dropped because a client channel was full.",
	})
	pollFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensormux_poll_failures_total",
		Help: "Fatal hardware poll failures; each one stops the dispatch loop.",
	})
	activeSensors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensormux_active_sensors",
		Help: "Sensors currently hardware-activated.",
	})
	activeConns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensormux_active_connections",
		Help: "Connections with at least one subscription.",
	})
	dispatchLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensormux_dispatch_seconds",
		Help:    "Time spent fanning one poll batch out to all connections.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	})

	prometheus.MustRegister(dispatched, dropped, pollFailures,
		activeSensors, activeConns, dispatchLatency)

	return &PromObs{
		log: log,
		counters: map[string]prometheus.Counter{
			"sensormux_events_dispatched_total": dispatched,
			"sensormux_batches_dropped_total":   dropped,
			"sensormux_poll_failures_total":     pollFailures,
		},
		gauges: map[string]prometheus.Gauge{
			"sensormux_active_sensors":     activeSensors,
			"sensormux_active_connections": activeConns,
		},
		histos: map[string]prometheus.Observer{
			"sensormux_dispatch_seconds": dispatchLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
