package changelog

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
)

// InMemoryStore keeps entries in a slice per tenant. Snapshots are deep-copied
// on both append and read so callers can never mutate a stored entry.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, tenantID id.TenantID, entityType, entityID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, cloneEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteByTenant(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

func cloneEntry(e Entry) Entry {
	e.OldValue = e.OldValue.Clone()
	e.NewValue = e.NewValue.Clone()
	if e.FieldChanged != nil {
		f := *e.FieldChanged
		e.FieldChanged = &f
	}
	return e
}
