package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/internal/session/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

const sessionKeyPrefix = "gatepass:session:"

// Redis stores sessions as JSON values whose TTL is refreshed on every Put,
// so idle conversations expire without a sweeper. Per-requester
// serialization is still provided in-process by KeyedLocker.
type Redis struct {
	client  *redis.Client
	idleTTL time.Duration
}

// NewRedis constructs a Redis-backed session store. A zero TTL keeps
// sessions until they are cleared.
func NewRedis(client *redis.Client, idleTTL time.Duration) *Redis {
	return &Redis{client: client, idleTTL: idleTTL}
}

func (s *Redis) Get(ctx context.Context, requester id.RequesterID) (models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(requester)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: get session: %v", sentinel.ErrUnavailable, err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *Redis) Put(ctx context.Context, session models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.RequesterID), raw, s.idleTTL).Err(); err != nil {
		return fmt.Errorf("%w: put session: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Clear(ctx context.Context, requester id.RequesterID) error {
	if err := s.client.Del(ctx, sessionKey(requester)).Err(); err != nil {
		return fmt.Errorf("%w: clear session: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself.
func (s *Redis) Sweep(context.Context) (int, error) {
	return 0, nil
}

func sessionKey(requester id.RequesterID) string {
	return sessionKeyPrefix + requester.String()
}
