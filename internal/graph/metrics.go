package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for graph traversal.
type Metrics struct {
	CycleGuardTrips   prometheus.Counter
	TraversalDuration prometheus.Histogram
	HealthReportRuns  prometheus.Counter
}

// NewMetrics creates a Metrics instance with all graph metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		CycleGuardTrips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_graph_cycle_guard_trips_total",
			Help: "Times a traversal stopped because it revisited a node (data corruption signal)",
		}),
		TraversalDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_graph_traversal_duration_seconds",
			Help:    "Duration of descendant tree and ancestor chain traversals",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		HealthReportRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_graph_health_reports_total",
			Help: "Total number of hierarchy health reports computed (cache misses)",
		}),
	}
}

// IncrementCycleGuardTrips records a tripped cycle guard.
func (m *Metrics) IncrementCycleGuardTrips() {
	m.CycleGuardTrips.Inc()
}

// ObserveTraversal records the duration of a traversal.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTraversal(start time.Time) {
	m.TraversalDuration.Observe(time.Since(start).Seconds())
}

// IncrementHealthReports records a freshly computed health report.
func (m *Metrics) IncrementHealthReports() {
	m.HealthReportRuns.Inc()
}
