package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces replay keys in a shared Redis instance.
const DefaultKeyPrefix = "x402:payment:"

// RedisCache is a replay cache shared across server instances. Consumption
// relies on SET NX so exactly one instance wins a concurrent redemption.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed replay cache. The connection is
// verified with a ping before use.
func NewRedisCache(ctx context.Context, redisURL, keyPrefix string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisCache{client: client, prefix: keyPrefix, ttl: ttl}, nil
}

func (c *RedisCache) key(signature string) string {
	return c.prefix + signature
}

// IsUsed reports whether the signature is consumed. Errors propagate so the
// caller can decide its failure policy.
func (c *RedisCache) IsUsed(ctx context.Context, signature string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(signature)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkUsed consumes the signature via SET NX with the cache TTL. Returns
// ErrAlreadyUsed when the key already exists.
func (c *RedisCache) MarkUsed(ctx context.Context, signature string, meta Meta) error {
	if meta.ConsumedAt.IsZero() {
		meta.ConsumedAt = time.Now()
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	ok, err := c.client.SetNX(ctx, c.key(signature), payload, c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrAlreadyUsed
	}
	return nil
}

// Meta returns the consumption record for a signature, or nil if absent.
func (c *RedisCache) Meta(ctx context.Context, signature string) (*Meta, error) {
	payload, err := c.client.Get(ctx, c.key(signature)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return &meta, nil
}

// Clear removes every key under the cache prefix. Intended for tests and
// operational resets, not the request path.
func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
