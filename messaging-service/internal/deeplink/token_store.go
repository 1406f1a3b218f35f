package deeplink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore remembers consumed auto-send tokens.
type TokenStore interface {
	// Consume reports true the first time a token is seen within the TTL and
	// false on every later call.
	Consume(ctx context.Context, token string) (bool, error)
}

// RedisTokenStore records tokens with SET NX, so consumption is atomic
// across service instances.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTokenStore(client *redis.Client, prefix string, ttl time.Duration) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisTokenStore) Consume(ctx context.Context, token string) (bool, error) {
	ok, err := s.client.SetNX(ctx, fmt.Sprintf("%s:%s", s.prefix, token), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume link token: %w", err)
	}
	return ok, nil
}

// MemoryTokenStore is a single-instance TokenStore.
type MemoryTokenStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	consumed map[string]time.Time // token -> expiry
	now      func() time.Time
}

func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	return &MemoryTokenStore{
		ttl:      ttl,
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryTokenStore) Consume(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, expiry := range s.consumed {
		if !now.Before(expiry) {
			delete(s.consumed, t)
		}
	}

	if _, seen := s.consumed[token]; seen {
		return false, nil
	}
	s.consumed[token] = now.Add(s.ttl)
	return true, nil
}
