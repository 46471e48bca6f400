package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the append-only backing of the audit trail, keyed by masked
// application identifier.
type Store interface {
	Append(ctx context.Context, key string, event Event) error
	List(ctx context.Context, key string) ([]Event, error)
}

// RedisStore keeps one Redis list per masked application id.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return "audit:app:" + k
}

func (s *RedisStore) Append(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	rk := s.key(key)
	if err := s.client.RPush(ctx, rk, payload).Err(); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, rk, s.ttl)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, key string) ([]Event, error) {
	raw, err := s.client.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// MemoryStore is the in-process fallback used when Redis is not configured,
// and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]Event)}
}

func (s *MemoryStore) Append(_ context.Context, key string, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[key] = append(s.events[key], event)
	return nil
}

func (s *MemoryStore) List(_ context.Context, key string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events[key]))
	copy(out, s.events[key])
	return out, nil
}
