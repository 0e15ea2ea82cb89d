// Package dedup remembers notification trigger keys that have already fired
// so a trigger is delivered at most once per retention window.
package dedup

import (
	"context"
	"time"

	redis "github.com/go-redis/redis/v8"
)

// Retention is how long a fired trigger key is remembered. Calendar triggers
// only matter within minutes of their event, so 48 hours is a conservative
// horizon.
const Retention = 48 * time.Hour

// Store marks trigger keys as fired.
type Store interface {
	// MarkOnce records the key and reports whether this call was the first
	// to do so within the retention window.
	MarkOnce(ctx context.Context, key string) (bool, error)
}

type redisSetNX interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is a Store backed by Redis SETNX with a TTL, surviving process
// restarts.
type Redis struct {
	client redisSetNX
	prefix string
}

// NewRedis creates a Redis-backed store.
func NewRedis(client redisSetNX) *Redis {
	return &Redis{client: client, prefix: "notify:dedup:"}
}

func (r *Redis) MarkOnce(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, 1, Retention).Result()
}
