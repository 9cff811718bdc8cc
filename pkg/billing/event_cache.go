package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventCache is an EventCache backed by Redis.
// Seen only reads; the webhook handler calls Mark after the event was
// reconciled, so events from failed deliveries are never claimed and the
// provider's redelivery gets processed.
type RedisEventCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisEventCache creates a Redis-backed event cache.
// A non-positive ttl defaults to 24 hours, which comfortably covers the
// provider's retry window.
func NewRedisEventCache(client redis.UniversalClient, ttl time.Duration) *RedisEventCache {
	if client == nil {
		panic("billing: redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisEventCache{client: client, ttl: ttl}
}

func (c *RedisEventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisEventCache) Mark(ctx context.Context, eventID string) error {
	return c.client.Set(ctx, eventKey(eventID), 1, c.ttl).Err()
}

func eventKey(eventID string) string {
	return "billing:event:" + eventID
}
