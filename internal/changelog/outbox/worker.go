package outbox

import (
	"context"
	"log/slog"
	"time"

	"custodia/internal/changelog"
)

const defaultBatchSize = 100

// Worker polls the outbox and publishes queued events in commit order.
// A failed publish leaves the row queued; the next tick retries it. Publishing
// is at-least-once, consumers deduplicate by event ID.
type Worker struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	log       *slog.Logger
	metrics   *changelog.Metrics
}

func NewWorker(store Store, publisher Publisher, interval time.Duration, log *slog.Logger, metrics *changelog.Metrics) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: defaultBatchSize,
		log:       log,
		metrics:   metrics,
	}
}

// Run loops until the context is cancelled. Errors are logged and retried
// rather than returned: the worker outliving transient broker and database
// failures is the point of the outbox.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		batch, err := w.store.NextBatch(ctx, w.batchSize)
		if err != nil {
			w.log.Error("outbox read failed", "error", err)
			return
		}
		if len(batch) == 0 {
			return
		}

		published := make([]string, 0, len(batch))
		for _, row := range batch {
			if err := w.publisher.Publish(ctx, row.PartitionKey, row.Payload); err != nil {
				w.log.Error("change event publish failed", "outbox_id", row.ID, "error", err)
				if w.metrics != nil {
					w.metrics.IncrementPublishFailures()
				}
				// Stop at the first failure to preserve per-entity order.
				break
			}
			published = append(published, row.ID)
		}

		if len(published) > 0 {
			if err := w.store.MarkPublished(ctx, published); err != nil {
				w.log.Error("outbox mark published failed", "error", err)
				return
			}
			if w.metrics != nil {
				w.metrics.AddPublished(len(published))
			}
		}
		if len(published) < len(batch) {
			return
		}
	}
}
