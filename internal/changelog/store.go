package changelog

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists change-log entries. Append-only: there is no update surface,
// and the only delete path is the tenant-deletion cascade.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// ListByEntity returns the entity's entries ordered by ChangedAt. Entries
	// of other tenants are invisible even for colliding entity IDs.
	ListByEntity(ctx context.Context, tenantID id.TenantID, entityType, entityID string) ([]Entry, error)
	// DeleteByTenant removes every entry of a tenant. Only the tenant-deletion
	// cascade may call this.
	DeleteByTenant(ctx context.Context, tenantID id.TenantID) (int64, error)
}
