// Package cache provides caching implementations for Magpie.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/loyaltylab/magpie/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
// Counters live outside the LRU so eviction can never forget a grant count.
type LRUCache struct {
	mu       sync.RWMutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]int64
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]int64),
	}
}

// Get retrieves a value from cache.
func (c *LRUCache) Get(ctx context.Context, programID string, key string) ([]byte, error) {
	if programID == "" {
		return nil, fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	// Move to front (most recently used)
	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value in cache with TTL.
func (c *LRUCache) Set(ctx context.Context, programID string, key string, value []byte, ttl time.Duration) error {
	if programID == "" {
		return fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Update existing entry
	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		return nil
	}

	// Add new entry
	entry := &cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	elem := c.order.PushFront(entry)
	c.items[fullKey] = elem

	// Evict if over capacity
	for c.order.Len() > c.maxSize {
		c.removeOldest()
	}

	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, programID string, key string) error {
	if programID == "" {
		return fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetSnapshot retrieves a cached customer snapshot.
func (c *LRUCache) GetSnapshot(ctx context.Context, programID string, customerID string) (*domain.CustomerSnapshot, error) {
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
func (c *LRUCache) SetSnapshot(ctx context.Context, programID string, customerID string, snap *domain.CustomerSnapshot, ttl time.Duration) error {
	bytes, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, programID, "snapshot:"+customerID, bytes, ttl)
}

// GetCounter returns the current counter value, zero if absent.
func (c *LRUCache) GetCounter(ctx context.Context, programID string, key string) (int64, error) {
	if programID == "" {
		return 0, fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, "counter:"+key)

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[fullKey], nil
}

// CheckAndIncrement atomically increments a counter only while it is below
// limit. A negative limit means unlimited. The mutex covers the whole
// check-decide-increment sequence.
func (c *LRUCache) CheckAndIncrement(ctx context.Context, programID string, key string, limit int64) (int64, bool, error) {
	if programID == "" {
		return 0, false, fmt.Errorf("programID is required")
	}

	fullKey := c.makeKey(programID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.counters[fullKey]
	if limit >= 0 && current >= limit {
		return current, false, nil
	}
	current++
	c.counters[fullKey] = current
	return current, true, nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]int64)
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) makeKey(programID, key string) string {
	return programID + ":" + key
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *LRUCache) removeOldest() {
	elem := c.order.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}
