package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a best-effort read-through cache of order aggregates. A miss or a
// Redis outage falls back to Postgres; writers refresh or invalidate after
// commit, never before.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns an order cache with the given TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(id string) string {
	return "order:" + id
}

// Get returns the cached order, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, id string) (*Order, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &o, nil
}

// Set stores the order aggregate.
func (c *Cache) Set(ctx context.Context, o *Order) error {
	if c == nil || c.client == nil || o == nil {
		return nil
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(o.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached aggregate after a state change.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
