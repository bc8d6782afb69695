package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// checkAndIncrScript increments a counter only while it is below the limit.
// Running it as a Lua script keeps check and increment in one atomic step
// across nodes; a limit below zero means unlimited.
var checkAndIncrScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	local limit = tonumber(ARGV[1])
	if limit >= 0 and current >= limit then
		return {current, 0}
	end
	current = redis.call('INCR', KEYS[1])
	return {current, 1}
`)

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, programID string, key string) ([]byte, error) {
	if programID == "" {
		return nil, fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, programID string, key string, value []byte, ttl time.Duration) error {
	if programID == "" {
		return fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, programID string, key string) error {
	if programID == "" {
		return fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetSnapshot retrieves a cached customer snapshot.
func (c *RedisCache) GetSnapshot(ctx context.Context, programID string, customerID string) (*domain.CustomerSnapshot, error) {
	data, err := c.Get(ctx, programID, "snapshot:"+customerID)
	if err != nil || data == nil {
		return nil, err
	}

	var snap domain.CustomerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSnapshot caches a customer snapshot.
func (c *RedisCache) SetSnapshot(ctx context.Context, programID string, customerID string, snap *domain.CustomerSnapshot, ttl time.Duration) error {
	bytes, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, programID, "snapshot:"+customerID, bytes, ttl)
}

// GetCounter returns the current counter value, zero if absent.
func (c *RedisCache) GetCounter(ctx context.Context, programID string, key string) (int64, error) {
	if programID == "" {
		return 0, fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, "counter:"+key)
	val, err := c.client.Get(ctx, fullKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// CheckAndIncrement atomically increments a counter only while it is below
// limit, via a Lua script.
func (c *RedisCache) CheckAndIncrement(ctx context.Context, programID string, key string, limit int64) (int64, bool, error) {
	if programID == "" {
		return 0, false, fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, "counter:"+key)

	result, err := checkAndIncrScript.Run(ctx, c.client, []string{fullKey}, limit).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(result) != 2 {
		return 0, false, fmt.Errorf("unexpected script result: %v", result)
	}
	return result[0], result[1] == 1, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(programID, key string) string {
	return "magpie:" + programID + ":" + key
}
