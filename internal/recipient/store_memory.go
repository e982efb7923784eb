package recipient

import (
	"context"
	"sync"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps nodes in a map keyed by node ID. It backs unit tests and
// database-less development runs. Mutation serialization comes from the
// tx.MemoryRunner wrapping the write path; the store's own lock only protects
// map access.
type InMemoryStore struct {
	mu    sync.RWMutex
	nodes map[id.NodeID]*Node
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nodes: make(map[id.NodeID]*Node)}
}

func (s *InMemoryStore) Insert(_ context.Context, node *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[node.ID]; exists {
		return sentinel.ErrConflict
	}
	s.nodes[node.ID] = node.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, node *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.nodes[node.ID]
	if !ok || existing.TenantID != node.TenantID {
		return sentinel.ErrNotFound
	}
	s.nodes[node.ID] = node.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, nodeID id.NodeID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeID]
	if !ok || node.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return node.Clone(), nil
}

// FindByIDForUpdate behaves like FindByID; the surrounding MemoryRunner
// transaction already serializes writers.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*Node, error) {
	return s.FindByID(ctx, tenantID, nodeID)
}

func (s *InMemoryStore) ChildrenOf(_ context.Context, tenantID id.TenantID, parentID id.NodeID) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Node
	for _, node := range s.nodes {
		if node.TenantID == tenantID && node.ParentID != nil && *node.ParentID == parentID {
			out = append(out, node.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByTypes(_ context.Context, tenantID id.TenantID, types []NodeType) ([]*Node, error) {
	wanted := make(map[NodeType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Node
	for _, node := range s.nodes {
		if node.TenantID == tenantID && (len(types) == 0 || wanted[node.Type]) {
			out = append(out, node.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) DetachChildren(_ context.Context, tenantID id.TenantID, parentID id.NodeID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var detached int64
	for _, node := range s.nodes {
		if node.TenantID == tenantID && node.ParentID != nil && *node.ParentID == parentID {
			node.ParentID = nil
			node.UpdatedAt = at
			detached++
		}
	}
	return detached, nil
}

func (s *InMemoryStore) Delete(_ context.Context, tenantID id.TenantID, nodeID id.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[nodeID]
	if !ok || node.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.nodes, nodeID)
	return nil
}

func (s *InMemoryStore) DeleteByTenant(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for nodeID, node := range s.nodes {
		if node.TenantID == tenantID {
			delete(s.nodes, nodeID)
			removed++
		}
	}
	return removed, nil
}
