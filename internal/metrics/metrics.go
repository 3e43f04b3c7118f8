// Package metrics exposes lifecycle counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lifecycle records orchestrator operations. A nil *Lifecycle is a valid
// no-op recorder.
type Lifecycle struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	audit      *prometheus.CounterVec
}

func NewLifecycle(reg prometheus.Registerer) *Lifecycle {
	m := &Lifecycle{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "umbrella",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by entity kind, operation and outcome.",
		}, []string{"kind", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "umbrella",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "operation"}),
		audit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "umbrella",
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Audit entries written by action.",
		}, []string{"kind", "action"}),
	}
	reg.MustRegister(m.operations, m.duration, m.audit)
	return m
}

func (m *Lifecycle) Observe(kind string, operation string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, operation, outcome).Inc()
	m.duration.WithLabelValues(kind, operation).Observe(elapsed.Seconds())
}

func (m *Lifecycle) AuditRecorded(kind string, action string) {
	if m == nil {
		return
	}
	m.audit.WithLabelValues(kind, action).Inc()
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
