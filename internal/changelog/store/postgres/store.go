// Package postgres persists change-log entries. Append writes the entry and
// its outbox row through the context transaction, so the audit trail commits
// or rolls back with the entity write it describes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodia/internal/changelog"
	id "custodia/pkg/domain"
	txcontext "custodia/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// eventPayload is the JSON structure queued for the change-event topic.
type eventPayload struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenantId"`
	EntityType   string             `json:"entityType"`
	EntityID     string             `json:"entityId"`
	ChangeType   string             `json:"changeType"`
	FieldChanged *string            `json:"fieldChanged"`
	OldValue     changelog.Snapshot `json:"oldValue"`
	NewValue     changelog.Snapshot `json:"newValue"`
	ChangedAt    string             `json:"changedAt"`
	ActorID      string             `json:"actorId,omitempty"`
	ChangeReason string             `json:"changeReason,omitempty"`
}

func (s *Store) Append(ctx context.Context, entry changelog.Entry) error {
	exec := s.execer(ctx)

	oldJSON, newJSON, err := marshalSnapshots(entry)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO change_log_entry
			(id, tenant_id, entity_type, entity_id, change_type, field_changed,
			 old_value, new_value, changed_at, actor_id, change_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID.String(), entry.TenantID.String(), entry.EntityType,
		entry.EntityID, entry.ChangeType, entry.FieldChanged,
		oldJSON, newJSON, entry.ChangedAt, nullable(entry.ActorID),
		nullable(entry.ChangeReason))
	if err != nil {
		return fmt.Errorf("append change log entry: %w", err)
	}

	payload, err := json.Marshal(eventPayload{
		ID:           entry.ID.String(),
		TenantID:     entry.TenantID.String(),
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		ChangeType:   string(entry.ChangeType),
		FieldChanged: entry.FieldChanged,
		OldValue:     entry.OldValue,
		NewValue:     entry.NewValue,
		ChangedAt:    entry.ChangedAt.Format(time.RFC3339Nano),
		ActorID:      entry.ActorID,
		ChangeReason: entry.ChangeReason,
	})
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	// Partition key is the entity ID: the topic then preserves the same
	// per-entity ordering the table guarantees.
	_, err = exec.ExecContext(ctx, `
		INSERT INTO change_log_outbox (id, partition_key, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), entry.EntityID, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append change outbox row: %w", err)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, tenantID id.TenantID, entityType, entityID string) ([]changelog.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, change_type,
			field_changed, old_value, new_value, changed_at, actor_id,
			change_reason
		FROM change_log_entry
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY changed_at, id`,
		tenantID.String(), entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list change log entries: %w", err)
	}
	defer rows.Close()

	var out []changelog.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("change log rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteByTenant(ctx context.Context, tenantID id.TenantID) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM change_log_entry WHERE tenant_id = $1`, tenantID.String())
	if err != nil {
		return 0, fmt.Errorf("delete change log by tenant: %w", err)
	}
	return res.RowsAffected()
}

func marshalSnapshots(entry changelog.Entry) (oldJSON, newJSON any, err error) {
	if entry.OldValue != nil {
		raw, err := json.Marshal(entry.OldValue)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal old snapshot: %w", err)
		}
		oldJSON = raw
	}
	if entry.NewValue != nil {
		raw, err := json.Marshal(entry.NewValue)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal new snapshot: %w", err)
		}
		newJSON = raw
	}
	return oldJSON, newJSON, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanEntry(rows *sql.Rows) (changelog.Entry, error) {
	var (
		entry     changelog.Entry
		rawID     string
		rawTenant string
		rawType   string
		rawField  sql.NullString
		rawOld    []byte
		rawNew    []byte
		rawActor  sql.NullString
		rawReason sql.NullString
	)
	err := rows.Scan(&rawID, &rawTenant, &entry.EntityType, &entry.EntityID,
		&rawType, &rawField, &rawOld, &rawNew, &entry.ChangedAt,
		&rawActor, &rawReason)
	if err != nil {
		return changelog.Entry{}, fmt.Errorf("scan change log entry: %w", err)
	}
	entryID, err := id.ParseEntryID(rawID)
	if err != nil {
		return changelog.Entry{}, err
	}
	tenantID, err := id.ParseTenantID(rawTenant)
	if err != nil {
		return changelog.Entry{}, err
	}
	entry.ID = entryID
	entry.TenantID = tenantID
	entry.ChangeType = changelog.ChangeType(rawType)
	if rawField.Valid {
		f := rawField.String
		entry.FieldChanged = &f
	}
	if len(rawOld) > 0 {
		if err := json.Unmarshal(rawOld, &entry.OldValue); err != nil {
			return changelog.Entry{}, fmt.Errorf("unmarshal old snapshot: %w", err)
		}
	}
	if len(rawNew) > 0 {
		if err := json.Unmarshal(rawNew, &entry.NewValue); err != nil {
			return changelog.Entry{}, fmt.Errorf("unmarshal new snapshot: %w", err)
		}
	}
	entry.ActorID = rawActor.String
	entry.ChangeReason = rawReason.String
	return entry, nil
}
