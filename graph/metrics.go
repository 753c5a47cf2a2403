package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus collectors for reconstruction monitoring.
// All metrics are namespaced "runlens".
//
// Exposed:
//
//	frames_total (counter, label: type)      wire frames decoded, by event type
//	parse_errors_total (counter)             malformed frames skipped
//	occurrences_created_total (counter)      step occurrences appended
//	edges_derived (gauge)                    edge count at last snapshot
//	active_steps (gauge)                     steps currently in flight
//	streams_terminated_total (counter,       stream terminations, by reason:
//	    label: reason)                       end, interrupt, error, transport,
//	                                         cancel
//	reruns_requested_total (counter)         time-travel reruns issued
//
// Expose via promhttp:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe; a single Metrics may serve engines for many sessions.
type Metrics struct {
	frames       *prometheus.CounterVec
	parseErrors  prometheus.Counter
	occurrences  prometheus.Counter
	edges        prometheus.Gauge
	activeSteps  prometheus.Gauge
	terminations *prometheus.CounterVec
	reruns       prometheus.Counter

	enabled bool
}

// NewMetrics creates and registers all reconstruction metrics with the given
// registry. A nil registry falls back to prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runlens",
			Name:      "frames_total",
			Help:      "Wire frames decoded from orchestrator streams, by event type",
		}, []string{"type"}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Name:      "parse_errors_total",
			Help:      "Malformed frames skipped under the fail-soft parsing rule",
		}),
		occurrences: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Name:      "occurrences_created_total",
			Help:      "Step occurrences appended to node stores",
		}),
		edges: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "runlens",
			Name:      "edges_derived",
			Help:      "Edges derived at the most recent snapshot",
		}),
		activeSteps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "runlens",
			Name:      "active_steps",
			Help:      "Steps currently reported in flight across sessions",
		}),
		terminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runlens",
			Name:      "streams_terminated_total",
			Help:      "Stream terminations, by reason",
		}, []string{"reason"}),
		reruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Name:      "reruns_requested_total",
			Help:      "Time-travel reruns issued to the orchestrator",
		}),
	}
}

// IncFrame counts one decoded frame of the given event type.
func (m *Metrics) IncFrame(eventType EventType) {
	if m == nil || !m.enabled {
		return
	}
	m.frames.WithLabelValues(string(eventType)).Inc()
}

// IncParseError counts one skipped malformed frame.
func (m *Metrics) IncParseError() {
	if m == nil || !m.enabled {
		return
	}
	m.parseErrors.Inc()
}

// IncOccurrence counts one appended occurrence.
func (m *Metrics) IncOccurrence() {
	if m == nil || !m.enabled {
		return
	}
	m.occurrences.Inc()
}

// ObserveSnapshot records gauge readings from a freshly built snapshot.
func (m *Metrics) ObserveSnapshot(snap Snapshot) {
	if m == nil || !m.enabled {
		return
	}
	m.edges.Set(float64(len(snap.Edges)))
	m.activeSteps.Set(float64(len(snap.Active)))
}

// IncTermination counts one stream termination for the given reason.
func (m *Metrics) IncTermination(reason string) {
	if m == nil || !m.enabled {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}

// IncRerun counts one issued rerun.
func (m *Metrics) IncRerun() {
	if m == nil || !m.enabled {
		return
	}
	m.reruns.Inc()
}

// Disable turns off metric recording (useful in tests).
func (m *Metrics) Disable() { m.enabled = false }

// Enable turns metric recording back on.
func (m *Metrics) Enable() { m.enabled = true }
