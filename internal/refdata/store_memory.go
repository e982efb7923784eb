package refdata

import (
	"context"
	"sync"

	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps reference data in maps. It backs unit tests and
// database-less development runs.
type InMemoryStore struct {
	mu              sync.RWMutex
	countries       map[string]Country
	classifications map[string]Classification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		countries:       make(map[string]Country),
		classifications: make(map[string]Classification),
	}
}

func (s *InMemoryStore) FindCountry(_ context.Context, countryID string) (*Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.countries[countryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) FindClassification(_ context.Context, classificationID string) (*Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classifications[classificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) SeedCountries(_ context.Context, countries []Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range countries {
		s.countries[c.ID] = c
	}
	return nil
}

func (s *InMemoryStore) SeedClassifications(_ context.Context, classifications []Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range classifications {
		s.classifications[c.ID] = c
	}
	return nil
}
