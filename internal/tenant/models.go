// Package tenant manages the isolation boundary every owned entity hangs off.
// Deleting a tenant is the single code path allowed to remove change-log
// entries, and even then only the deleted tenant's own.
package tenant

import (
	"strings"
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// Status is the tenant lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Tenant is an isolated customer organization.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - CreatedAt is immutable after construction
type Tenant struct {
	ID        id.TenantID
	Name      string
	Status    Status
	CreatedAt time.Time
}

// NewTenant validates and constructs a tenant.
func NewTenant(name string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name must be 128 characters or less")
	}
	return &Tenant{
		ID:        id.NewTenantID(),
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
	}, nil
}

func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}
