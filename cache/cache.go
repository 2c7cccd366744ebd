/*
Package cache provides response caching for the upstream query gateway.

A cache entry maps a deterministic request fingerprint to the upstream JSON
payload with an expiry. Two implementations are provided: an in-memory cache
for single-instance deployments and a Datastore-backed cache shared across
instances. Expired entries are removed by a fixed-interval sweeper and,
secondarily, by an opportunistic best-effort sweep on a small fraction of
reads.
*/
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entry represents a cached upstream payload with expiration
type Entry struct {
	Key       string          `json:"key"`
	Action    string          `json:"action"`
	Symbol    string          `json:"symbol,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsExpired checks if the cache entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache interface defines caching operations
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Sweep(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// InMemoryCache implements an in-memory cache with TTL support
type InMemoryCache struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
	done    chan struct{}
	once    sync.Once
}

// NewInMemoryCache creates an in-memory cache and starts a sweeper goroutine
// that removes expired entries every sweepInterval.
func NewInMemoryCache(sweepInterval time.Duration) *InMemoryCache {
	cache := &InMemoryCache{
		entries: make(map[string]*Entry),
		done:    make(chan struct{}),
	}

	go cache.startSweeper(sweepInterval)

	return cache
}

// Get retrieves a payload from the cache. An expired entry is never returned
// as a hit; it is deleted lazily on read.
func (c *InMemoryCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.IsExpired() {
		c.mutex.Lock()
		delete(c.entries, key)
		c.mutex.Unlock()
		return nil, false
	}

	return entry.Payload, true
}

// Set stores an entry in the cache
func (c *InMemoryCache) Set(_ context.Context, entry *Entry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[entry.Key] = entry
	return nil
}

// Delete removes an entry from the cache
func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
	return nil
}

// Sweep removes all expired entries and returns the number removed
func (c *InMemoryCache) Sweep(_ context.Context) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all entries from the cache
func (c *InMemoryCache) Clear(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*Entry)
	return nil
}

// Close stops the sweeper goroutine
func (c *InMemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

// startSweeper periodically removes expired entries on a fixed interval,
// decoupled from request volume.
func (c *InMemoryCache) startSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Sweep(context.Background())
		}
	}
}
