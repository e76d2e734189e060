package store

import (
	"context"
	"sync"

	"gatepass/internal/resident/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// InMemory keeps residents in registration order. Phone lookups prefer the
// earliest created match, ties going to the first registered, as the durable
// stores do.
type InMemory struct {
	mu        sync.RWMutex
	residents []*models.Resident
	byID      map[id.RequesterID]int
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.RequesterID]int)}
}

func (s *InMemory) FindByPhone(_ context.Context, phones ...string) (*models.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first *models.Resident
	for _, r := range s.residents {
		if !matchesAny(r.Phone, phones) {
			continue
		}
		if first == nil || r.CreatedAt.Before(first.CreatedAt) {
			first = r
		}
	}
	if first == nil {
		return nil, sentinel.ErrNotFound
	}
	clone := *first
	return &clone, nil
}

func matchesAny(phone string, candidates []string) bool {
	for _, c := range candidates {
		if c != "" && c == phone {
			return true
		}
	}
	return false
}

func (s *InMemory) FindByID(_ context.Context, requester id.RequesterID) (*models.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.byID[requester]; ok {
		clone := *s.residents[idx]
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

// Save replaces any record with the same identity, keeping its creation time.
func (s *InMemory) Save(_ context.Context, resident *models.Resident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *resident
	if idx, ok := s.byID[resident.ID]; ok {
		clone.CreatedAt = s.residents[idx].CreatedAt
		s.residents[idx] = &clone
		return nil
	}
	s.byID[resident.ID] = len(s.residents)
	s.residents = append(s.residents, &clone)
	return nil
}
