// Package redisx wraps go-redis behind a null-object client so every
// Redis-backed component (CacheStore, RateLimiter, UsageTracker) can be
// written against a concrete type without branching on whether Redis is
// configured. When REDIS_URL is unset, Client behaves as an absent store:
// every operation reports a miss or a no-op success, and callers treat
// that exactly like a cache miss or a fail-open condition.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a thin wrapper around *redis.Client (or no client at all).
type Client struct {
	rdb *redis.Client
}

// New parses rawURL and connects. An empty rawURL yields a null client:
// Enabled() reports false and every method degrades gracefully.
func New(ctx context.Context, rawURL string) (*Client, error) {
	if rawURL == "" {
		return &Client{}, nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Enabled reports whether a real Redis connection backs this client.
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// Raw exposes the underlying *redis.Client for callers that need
// pipeline/sorted-set primitives the wrapper does not itself expose.
// Returns nil when the adapter is a null client; callers must check
// Enabled() first.
func (c *Client) Raw() *redis.Client {
	if !c.Enabled() {
		return nil
	}
	return c.rdb
}

// Get fetches a raw string value. ok is false on miss or when disabled.
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if !c.Enabled() {
		return "", false, nil
	}

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a raw string value with an optional TTL (zero means no expiry).
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
