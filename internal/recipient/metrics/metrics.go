package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the recipient module.
// Tracks mutation counts, validation rejections, and write-path durations.
type Metrics struct {
	NodesCreated       prometheus.Counter
	NodesUpdated       prometheus.Counter
	NodesDeleted       prometheus.Counter
	ValidationFailures prometheus.Counter
	MutationDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all recipient module metrics registered.
func New() *Metrics {
	return &Metrics{
		NodesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_recipient_nodes_created_total",
			Help: "Total number of recipient nodes created",
		}),
		NodesUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_recipient_nodes_updated_total",
			Help: "Total number of recipient node updates applied",
		}),
		NodesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_recipient_nodes_deleted_total",
			Help: "Total number of recipient nodes deleted",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_recipient_validation_failures_total",
			Help: "Mutations rejected by hierarchy validation",
		}),
		MutationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_recipient_mutation_duration_seconds",
			Help:    "Duration of the transactional mutation path (validate + write + log)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// The increment helpers tolerate a nil receiver so tests can run services
// without registering collectors.

// IncrementNodesCreated records a successful node creation.
func (m *Metrics) IncrementNodesCreated() {
	if m != nil {
		m.NodesCreated.Inc()
	}
}

// IncrementNodesUpdated records a successful node update.
func (m *Metrics) IncrementNodesUpdated() {
	if m != nil {
		m.NodesUpdated.Inc()
	}
}

// IncrementNodesDeleted records a successful node deletion.
func (m *Metrics) IncrementNodesDeleted() {
	if m != nil {
		m.NodesDeleted.Inc()
	}
}

// IncrementValidationFailures records a blocked mutation.
func (m *Metrics) IncrementValidationFailures() {
	if m != nil {
		m.ValidationFailures.Inc()
	}
}

// ObserveMutation records the duration of one mutation transaction.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveMutation(start time.Time) {
	if m != nil {
		m.MutationDuration.Observe(time.Since(start).Seconds())
	}
}
