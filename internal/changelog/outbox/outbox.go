// Package outbox moves committed change events from the database to the
// change-event topic. Rows are written by the change-log store inside the
// mutation transaction; this package only reads and marks them, so a broker
// outage can delay events but never lose or block a mutation.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Row is one queued change event.
type Row struct {
	ID           string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// Store reads and retires queued rows.
type Store interface {
	// NextBatch returns up to limit unpublished rows in commit order.
	NextBatch(ctx context.Context, limit int) ([]Row, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// PostgresStore implements Store over the change_log_outbox table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) NextBatch(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partition_key, payload, created_at
		FROM change_log_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox next batch: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.PartitionKey, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE change_log_outbox
		SET published_at = $1
		WHERE id = ANY($2)`,
		time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
