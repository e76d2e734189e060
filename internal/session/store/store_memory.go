package store

import (
	"context"
	"sync"
	"time"

	"gatepass/internal/session/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// InMemory holds one session per requester. Sessions idle for longer than
// the configured TTL are treated as absent and reclaimed by Sweep.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[id.RequesterID]entry
	idleTTL  time.Duration
	now      func() time.Time
}

type entry struct {
	session models.Session
	touched time.Time
}

type Option func(*InMemory)

// WithIdleTTL enables expiry of untouched sessions. Zero disables it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *InMemory) {
		s.idleTTL = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *InMemory) {
		s.now = now
	}
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		sessions: make(map[id.RequesterID]entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Get(_ context.Context, requester id.RequesterID) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[requester]
	if !ok || s.expired(e, s.now()) {
		return models.Session{}, sentinel.ErrNotFound
	}
	return e.session, nil
}

func (s *InMemory) Put(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.RequesterID] = entry{session: session, touched: s.now()}
	return nil
}

func (s *InMemory) Clear(_ context.Context, requester id.RequesterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, requester)
	return nil
}

// Sweep deletes expired sessions and returns how many were removed.
func (s *InMemory) Sweep(_ context.Context) (int, error) {
	if s.idleTTL <= 0 {
		return 0, nil
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for requester, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, requester)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemory) expired(e entry, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(e.touched) > s.idleTTL
}
