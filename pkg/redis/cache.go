package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores json values under a key prefix
type Cache struct {
	client    *Client
	keyPrefix string
}

// NewCache creates a new Cache
func NewCache(client *Client, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = "poppy:cache:"
	}
	return &Cache{client: client, keyPrefix: keyPrefix}
}

// GetJSON decodes the value stored under key into dest. The bool is false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.rdb.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON encodes value and stores it under key for ttl
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, c.keyPrefix+key, raw, ttl).Err()
}
