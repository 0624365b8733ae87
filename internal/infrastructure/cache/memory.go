package cache

import (
	"sync"
	"time"
)

// ResultCache is a simple in-memory byte cache with expiration. The
// synchronous predictions endpoint uses it to avoid re-running the analysis
// for a payload that was just processed.
type ResultCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
}

type cacheItem struct {
	value      []byte
	expireTime time.Time
}

// NewResultCache creates a new in-memory cache
func NewResultCache() *ResultCache {
	cache := &ResultCache{
		items: make(map[string]*cacheItem),
	}

	// Start cleanup goroutine to remove expired items
	go cache.cleanupExpired()

	return cache
}

// Set stores a value with expiration
func (c *ResultCache) Set(key string, value []byte, expiration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem{
		value:      value,
		expireTime: time.Now().Add(expiration),
	}
}

// Get retrieves a value by key (returns false if not found or expired)
func (c *ResultCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}

	// Check if expired
	if time.Now().After(item.expireTime) {
		return nil, false
	}

	return item.value, true
}

// Delete removes a key
func (c *ResultCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// cleanupExpired periodically removes expired items
func (c *ResultCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.items {
			if now.After(item.expireTime) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}
