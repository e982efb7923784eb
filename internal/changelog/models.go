// Package changelog records immutable, denormalized snapshots of tracked
// entity transitions. Entries are produced exclusively by the interception
// layer, inside the same transaction as the entity write, and are never
// updated or deleted except when their owning tenant is deleted.
package changelog

import (
	"time"

	id "custodia/pkg/domain"
)

// ChangeType distinguishes the two entry shapes.
type ChangeType string

const (
	ChangeCreated ChangeType = "CREATED"
	ChangeUpdated ChangeType = "UPDATED"
)

// Snapshot is a flattened, self-contained copy of a row at one point in time.
// Configured foreign keys are replaced with embedded display maps, so later
// edits to the referenced rows cannot alter what was logged.
type Snapshot map[string]any

// Clone deep-copies the snapshot so stores never hand out aliased maps.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return Snapshot(copyValue(map[string]any(s)).(map[string]any))
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = copyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = copyValue(inner)
		}
		return out
	default:
		return v
	}
}

// Entry is one observed field transition (or a creation). OldValue and
// NewValue always carry the complete entity snapshot, not a per-field diff, so
// a reader sees full entity state at every change point.
type Entry struct {
	ID           id.EntryID
	TenantID     id.TenantID
	EntityType   string
	EntityID     string
	ChangeType   ChangeType
	FieldChanged *string
	OldValue     Snapshot
	NewValue     Snapshot
	ChangedAt    time.Time
	ActorID      string
	ChangeReason string
}
