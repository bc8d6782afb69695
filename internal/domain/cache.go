package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching and distributed counters.
// Supports two-phase caching: local LRU (Community) + Redis (Pro). All
// methods take a programID for per-program key scoping.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if not found.
	Get(ctx context.Context, programID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, programID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, programID string, key string) error

	// GetSnapshot retrieves a cached customer snapshot.
	GetSnapshot(ctx context.Context, programID string, customerID string) (*CustomerSnapshot, error)

	// SetSnapshot caches a customer snapshot.
	SetSnapshot(ctx context.Context, programID string, customerID string, snap *CustomerSnapshot, ttl time.Duration) error

	// GetCounter returns the current value of a counter (0 if absent).
	GetCounter(ctx context.Context, programID string, key string) (int64, error)

	// CheckAndIncrement atomically increments a counter only while it is
	// below limit, returning the resulting count and whether the increment
	// happened. A negative limit means unlimited. This is the atomic unit
	// the usage-limit contract depends on: check, decide, increment must
	// not interleave with another evaluation of the same customer+rule.
	CheckAndIncrement(ctx context.Context, programID string, key string, limit int64) (int64, bool, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
