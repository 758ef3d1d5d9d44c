// Package decision implements the decision engine (C4): an ordered
// rule chain that classifies an ingest event into exactly one action,
// backed by a two-tier memory+Redis cache so repeat events within the
// TTL window resolve deterministically without re-running the chain.
package decision

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// cacheTTL bounds how long a decision is considered valid for reuse
// against the same (event type, source path) pair.
const cacheTTL = 5 * time.Minute

// Cache is the L2 persistence contract the engine needs: get/set a
// decision by key. A nil Cache disables the L2 tier entirely (Lite
// deployment profile, single-process, L1 only).
type Cache interface {
	Get(ctx context.Context, key string) (domain.Decision, bool, error)
	Set(ctx context.Context, key string, d domain.Decision, ttl time.Duration) error
}

// redisCache adapts a *redis.Client to Cache, storing decisions as
// JSON strings.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client for use as the engine's L2 cache.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (domain.Decision, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.Decision{}, false, nil
	}
	if err != nil {
		return domain.Decision{}, false, err
	}
	var d domain.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Decision{}, false, err
	}
	return d, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, d domain.Decision, ttl time.Duration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}
