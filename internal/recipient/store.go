package recipient

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store persists recipient nodes. Every method is tenant-scoped: a node that
// exists under another tenant behaves exactly like a missing node.
type Store interface {
	Insert(ctx context.Context, node *Node) error
	Update(ctx context.Context, node *Node) error
	FindByID(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*Node, error)
	// FindByIDForUpdate locks the row for the remainder of the surrounding
	// transaction so concurrent parent reassignments serialize.
	FindByIDForUpdate(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*Node, error)
	ChildrenOf(ctx context.Context, tenantID id.TenantID, parentID id.NodeID) ([]*Node, error)
	ListByTypes(ctx context.Context, tenantID id.TenantID, types []NodeType) ([]*Node, error)
	// DetachChildren nulls parent_id on all direct children of the node in one
	// statement, stamping updated_at with at so the rows match the change-log
	// snapshots written alongside. Returns how many rows were detached.
	DetachChildren(ctx context.Context, tenantID id.TenantID, parentID id.NodeID, at time.Time) (int64, error)
	Delete(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) error
	// DeleteByTenant removes every node of a tenant. Only the tenant-deletion
	// cascade may call this.
	DeleteByTenant(ctx context.Context, tenantID id.TenantID) (int64, error)
}
