package tenant

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists tenants.
type Store interface {
	// Create inserts the tenant, failing with sentinel.ErrConflict when the
	// name is already taken (case-insensitive).
	Create(ctx context.Context, t *Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*Tenant, error)
	Delete(ctx context.Context, tenantID id.TenantID) error
}
