package changelog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the change-log write path.
type Metrics struct {
	EntriesWritten  prometheus.Counter
	OutboxPublished prometheus.Counter
	PublishFailures prometheus.Counter
}

// NewMetrics creates a Metrics instance with all change-log metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		EntriesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_changelog_entries_written_total",
			Help: "Total change-log entries appended",
		}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_changelog_outbox_published_total",
			Help: "Outbox rows published to the change-event topic",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_changelog_outbox_publish_failures_total",
			Help: "Failed outbox publish attempts (rows stay queued for retry)",
		}),
	}
}

// AddEntriesWritten records appended entries.
func (m *Metrics) AddEntriesWritten(n int) {
	m.EntriesWritten.Add(float64(n))
}

// AddPublished records successfully published outbox rows.
func (m *Metrics) AddPublished(n int) {
	m.OutboxPublished.Add(float64(n))
}

// IncrementPublishFailures records one failed publish attempt.
func (m *Metrics) IncrementPublishFailures() {
	m.PublishFailures.Inc()
}
