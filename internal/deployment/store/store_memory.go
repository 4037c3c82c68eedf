package store

import (
	"context"
	"sync"

	"deploygate/internal/deployment/models"
	"deploygate/pkg/platform/sentinel"
)

// InMemoryRecordStore keeps records per owner, keyed by natural key.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	byOwner map[string]map[string]models.Record
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{byOwner: make(map[string]map[string]models.Record)}
}

// ListByOwner returns owner's records, newest first. An empty namespace
// matches every namespace.
func (s *InMemoryRecordStore) ListByOwner(_ context.Context, owner, namespace string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Record, 0, len(s.byOwner[owner]))
	for _, r := range s.byOwner[owner] {
		if namespace != "" && r.Namespace != namespace {
			continue
		}
		out = append(out, r)
	}
	sortNewestFirst(out)
	return out, nil
}

// SaveAll upserts records in one critical section. A record whose natural key
// already exists keeps the stored ID.
func (s *InMemoryRecordStore) SaveAll(_ context.Context, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		s.upsert(&records[i])
	}
	return nil
}

func (s *InMemoryRecordStore) Save(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(record)
	return nil
}

func (s *InMemoryRecordStore) upsert(r *models.Record) {
	owned, ok := s.byOwner[r.OwnerName]
	if !ok {
		owned = make(map[string]models.Record)
		s.byOwner[r.OwnerName] = owned
	}
	if existing, ok := owned[r.NaturalKey()]; ok {
		r.ID = existing.ID
	}
	assignID(r)
	owned[r.NaturalKey()] = *r
}

func (s *InMemoryRecordStore) Delete(_ context.Context, owner, namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.Record{Namespace: namespace, DeploymentName: name}.NaturalKey()
	owned := s.byOwner[owner]
	if _, ok := owned[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(owned, key)
	return nil
}
