// Package statuscache keeps a short-lived Redis copy of per-product pipeline
// status so the polling endpoint does not hit SQLite on every request.
package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samsamoo/reviewpulse/internal/storage"
)

const (
	// DefaultTTL bounds staleness for entries that miss an invalidation
	DefaultTTL = 60 * time.Second
	// KeyPrefix is the prefix for all cache keys
	KeyPrefix = "status:"
)

// Cache provides product status caching backed by Redis
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new status cache instance. A non-positive ttl falls back to
// DefaultTTL.
func New(redisAddr string, ttl time.Duration) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// makeKey builds the Redis key for a product
func makeKey(source, sourceProductID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, source, sourceProductID)
}

// Get retrieves the cached status for a product.
// Returns (nil, nil) on a cache miss.
func (c *Cache) Get(ctx context.Context, source, sourceProductID string) (*storage.ProductStatus, error) {
	key := makeKey(source, sourceProductID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var status storage.ProductStatus
	if err := json.Unmarshal(data, &status); err != nil {
		// A corrupt entry is treated as a miss; the writer will refresh it
		return nil, nil
	}

	return &status, nil
}

// Set stores a product status snapshot with the configured TTL
func (c *Cache) Set(ctx context.Context, source, sourceProductID string, status storage.ProductStatus) error {
	key := makeKey(source, sourceProductID)

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	return nil
}

// Delete removes a product status from the cache
func (c *Cache) Delete(ctx context.Context, source, sourceProductID string) error {
	key := makeKey(source, sourceProductID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if the Redis connection is alive
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
