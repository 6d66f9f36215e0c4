// Package metrics holds the Prometheus instruments for the check-in subsystem.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the check-in pipeline.
type Metrics struct {
	CheckinsTotal   *prometheus.CounterVec
	SyncItemsTotal  *prometheus.CounterVec
	AuditDropped    prometheus.Counter
	UpstreamLatency *prometheus.HistogramVec
}

// New creates and registers all check-in metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer; tests pass a fresh
// registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CheckinsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_checkins_total",
			Help: "Check-in attempts by origin and classified outcome",
		}, []string{"origin", "status"}),
		SyncItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_sync_items_total",
			Help: "Offline sync items by classified outcome",
		}, []string{"status"}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_audit_dropped_total",
			Help: "Audit entries that could not be persisted; alarm on any increase",
		}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presence_upstream_latency_seconds",
			Help:    "Latency of validation calls to upstream collaborators",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"collaborator"}),
	}
}

// ObserveCheckin records one classified check-in outcome.
func (m *Metrics) ObserveCheckin(origin, status string) {
	m.CheckinsTotal.WithLabelValues(origin, status).Inc()
}

// ObserveSyncItem records one classified sync item outcome.
func (m *Metrics) ObserveSyncItem(status string) {
	m.SyncItemsTotal.WithLabelValues(status).Inc()
}

// ObserveUpstream records the latency of one upstream call.
func (m *Metrics) ObserveUpstream(collaborator string, elapsed time.Duration) {
	m.UpstreamLatency.WithLabelValues(collaborator).Observe(elapsed.Seconds())
}
