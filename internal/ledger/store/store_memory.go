package store

import (
	"context"
	"sync"

	"gatepass/internal/ledger/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// InMemory keeps requests in process memory.
type InMemory struct {
	mu       sync.Mutex
	requests []models.Request
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, *req)
	return nil
}

func (s *InMemory) LastID(_ context.Context) (id.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last id.RequestID
	for _, r := range s.requests {
		if r.ID > last {
			last = r.ID
		}
	}
	return last, nil
}

func (s *InMemory) MarkAccepted(_ context.Context, requestID id.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if s.requests[i].ID == requestID {
			if !s.requests[i].Accept() {
				return sentinel.ErrInvalidState
			}
			return nil
		}
	}
	return sentinel.ErrInvalidState
}

// All returns a copy of the stored requests in append order.
func (s *InMemory) All() []models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Request, len(s.requests))
	copy(out, s.requests)
	return out
}
