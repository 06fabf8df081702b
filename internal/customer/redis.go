package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores customer display names keyed by id
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// customerKey returns the Redis key for a customer's display name
func customerKey(id int64) string {
	return fmt.Sprintf("ledger:customer:%d:name", id)
}

// Get returns the cached name; ok is false on a cache miss
func (r *RedisCache) Get(ctx context.Context, id int64) (name string, ok bool, err error) {
	// GET ledger:customer:4:name
	name, err = r.client.Get(ctx, customerKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read customer from redis: %w", err)
	}
	return name, true, nil
}

// Set caches a name with the configured TTL
func (r *RedisCache) Set(ctx context.Context, id int64, name string) error {
	// SET ledger:customer:4:name "Georgina Hazel" EX 300
	if err := r.client.Set(ctx, customerKey(id), name, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache customer in redis: %w", err)
	}
	return nil
}
