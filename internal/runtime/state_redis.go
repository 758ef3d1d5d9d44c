package runtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore persists module state in Redis for the Standard
// (multi-process) deployment profile, mirroring decision.redisCache's
// thin adapter-over-*redis.Client shape.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStateStore wraps client for use as a Runtime's StateStore.
func NewRedisStateStore(client *redis.Client, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = "autodev:module-state:"
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

func (s *RedisStateStore) key(moduleID string) string { return s.prefix + moduleID }

// SaveState implements StateStore.
func (s *RedisStateStore) SaveState(ctx context.Context, moduleID string, state []byte) error {
	if err := s.client.Set(ctx, s.key(moduleID), state, 0).Err(); err != nil {
		return fmt.Errorf("saving state for %s: %w", moduleID, err)
	}
	return nil
}

// LoadState implements StateStore.
func (s *RedisStateStore) LoadState(ctx context.Context, moduleID string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.key(moduleID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading state for %s: %w", moduleID, err)
	}
	return raw, true, nil
}
