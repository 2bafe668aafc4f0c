// Package rediscache implements CacheStore: an opaque-bytes cache over
// Redis with the null-object absent-Redis semantics shared by every
// Redis-backed component in this service.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/fplsage/sage-api/internal/platform/redisx"
)

const keyPrefix = "fpl_sage:analysis:"

// Store is the CacheStore component. Values are opaque byte strings; the
// caller is responsible for serializing/deserializing them (the analysis
// service stores canonically-ordered JSON).
type Store struct {
	redis      *redisx.Client
	defaultTTL time.Duration
}

func New(client *redisx.Client, defaultTTLSeconds int) *Store {
	ttl := time.Duration(defaultTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Store{redis: client, defaultTTL: ttl}
}

// Key builds the canonical cache key for a (team_id, gameweek) pair. A
// gameweek of 0 (or below) renders as the literal "current", matching a
// request that left gameweek unspecified; a request naming a gameweek
// explicitly gets the numbered key, a separate cache entry.
func Key(teamID, gameweek int) string {
	if gameweek <= 0 {
		return fmt.Sprintf("%s%d:current", keyPrefix, teamID)
	}
	return fmt.Sprintf("%s%d:%d", keyPrefix, teamID, gameweek)
}

// Get returns the stored bytes and true on a hit. A miss, a disabled
// Redis, or a transport error all collapse to (nil, false) — Redis
// failures never surface as errors to the caller, only a warning-worthy
// miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := s.redis.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return []byte(value), true
}

// Put stores value under key with ttl (or the store's default when ttl<=0).
// A no-op, not an error, when Redis is absent.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.redis.Set(ctx, key, string(value), ttl)
}

// Invalidate removes a cache entry. No-op when Redis is absent.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	return s.redis.Del(ctx, key)
}
