package cache

import (
	"context"
	"sync"
	"time"
)

type item[V any] struct {
	value   V
	expires time.Time
}

func (it item[V]) expired(now time.Time) bool {
	return !it.expires.IsZero() && now.After(it.expires)
}

// Options configures a Cache.
type Options struct {
	// TTL is the default lifetime of an entry. Zero keeps entries forever.
	TTL time.Duration
	// MaxItems bounds the cache. When full, the entry closest to expiry
	// is evicted. Zero means unbounded.
	MaxItems int
}

// Cache is a thread-safe in-memory cache with expiration.
type Cache[V any] struct {
	mu        sync.RWMutex
	items     map[string]item[V]
	opts      Options
	now       func() time.Time
	onEvicted func(string, V)
}

func New[V any](opts Options) *Cache[V] {
	return &Cache[V]{items: make(map[string]item[V]), opts: opts, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// OnEvicted registers f to run for every entry removed by expiry or capacity.
func (c *Cache[V]) OnEvicted(f func(string, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvicted = f
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	if _, exists := c.items[key]; !exists && c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictOldest()
	}
	c.items[key] = item[V]{value: value, expires: exp}
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len counts stored entries, expired ones included until swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup sweeps expired entries every interval until ctx is done.
func (c *Cache[V]) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.DeleteExpired()
		}
	}
}

// DeleteExpired removes every expired entry.
func (c *Cache[V]) DeleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, it := range c.items {
		if it.expired(now) {
			c.evict(k, it)
		}
	}
}

func (c *Cache[V]) evictOldest() {
	var (
		oldestKey string
		oldest    item[V]
		found     bool
	)
	for k, it := range c.items {
		// entries without expiry are evicted last
		if !found || (!it.expires.IsZero() && (oldest.expires.IsZero() || it.expires.Before(oldest.expires))) {
			oldestKey, oldest, found = k, it, true
		}
	}
	if found {
		c.evict(oldestKey, oldest)
	}
}

func (c *Cache[V]) evict(key string, it item[V]) {
	delete(c.items, key)
	if c.onEvicted != nil {
		c.onEvicted(key, it.value)
	}
}
