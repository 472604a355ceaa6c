package redisclient

import (
	"context"
	"fmt"
	"time"

	"storelocator-service/internal/kvstore"

	"github.com/go-redis/redis/v8"
)

// Client adapts Redis to the kvstore.KV capability. It backs the token
// caches, reservation mirrors, and the originalStores snapshot when the
// service runs with more than one instance.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ kvstore.KV = (*Client)(nil)

// NewClient creates a new Redis-backed KV. ttl bounds how long any slot
// lives; zero means no expiry.
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get retrieves a slot value.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, prefixed(key)).Result()
	if err == redis.Nil {
		return "", kvstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set writes a slot value, last writer wins.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, prefixed(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a slot.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, prefixed(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func prefixed(key string) string {
	return "storelocator:" + key
}
