// Package telemetry holds the Prometheus instrumentation for the node.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the engine's instrumentation set. All collectors register on
// construction; construct once per process (or per test registry).
type Metrics struct {
	ExecutionsTotal  *prometheus.CounterVec
	ExecutionSeconds prometheus.Histogram
	RetriesTotal     prometheus.Counter
	QueueDepth       prometheus.Gauge
	CoalescedTotal   prometheus.Counter
	EventsTotal      *prometheus.CounterVec
	RegisteredGauge  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Transform executions by terminal outcome.",
		}, []string{"outcome"}),
		ExecutionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weft",
			Subsystem: "engine",
			Name:      "execution_seconds",
			Help:      "Wall time of one transform execution attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Execution attempts re-enqueued after a failure.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "weft",
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Tasks waiting for dispatch.",
		}),
		CoalescedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "engine",
			Name:      "coalesced_total",
			Help:      "Triggers merged into an already-running transform.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weft",
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Events consumed by the engine, by topic.",
		}, []string{"topic"}),
		RegisteredGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "weft",
			Subsystem: "registry",
			Name:      "transforms",
			Help:      "Currently registered transforms.",
		}),
	}
}

// Handler exposes the metric set for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
