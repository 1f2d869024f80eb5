package alert

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper reports whether this instance is the first to deliver an alert key within a window.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, window time.Duration) (bool, error)
}

// NoopDeduper treats every alert as new. Used with a single instance.
type NoopDeduper struct{}

func (NoopDeduper) FirstSeen(context.Context, string, time.Duration) (bool, error) { return true, nil }

const redisKeyPrefix = "pricesentinel:alert:"

// RedisDeduper shares delivered alert keys across instances through Redis.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (r *RedisDeduper) FirstSeen(ctx context.Context, key string, window time.Duration) (bool, error) {
	return r.client.SetNX(ctx, redisKeyPrefix+key, time.Now().Unix(), window).Result()
}
