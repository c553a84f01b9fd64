package lookup

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is the freshness window used when neither the request nor the channel sets one.
const DefaultTTL = time.Hour

// Entry is a cached response body.
type Entry struct {
	Payload   []byte
	FetchedAt time.Time
	TTL       time.Duration
}

// FreshAt reports whether the entry is still valid for a lookup with the given TTL.
func (e Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Cache stores raw response bodies by fully qualified request URL.
// Freshness is decided by the caller at lookup time.
type Cache interface {
	Get(key string) (Entry, bool)
	Put(key string, entry Entry)
}

// CacheStats reports hit and miss counters for a cache tier.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// MemoryCache is an in-process cache. With a positive capacity it evicts the
// least recently used entry; otherwise it grows without bound.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	bounded *lru.Cache[string, Entry]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a memory cache holding at most capacity entries.
// A capacity of zero or less disables eviction.
func NewMemoryCache(capacity int) *MemoryCache {
	c := &MemoryCache{}
	if capacity > 0 {
		// lru.New only fails for non-positive sizes.
		c.bounded, _ = lru.New[string, Entry](capacity)
	} else {
		c.entries = make(map[string]Entry)
	}
	return c
}

func (c *MemoryCache) Get(key string) (Entry, bool) {
	var (
		entry Entry
		ok    bool
	)
	if c.bounded != nil {
		entry, ok = c.bounded.Get(key)
	} else {
		c.mu.RLock()
		entry, ok = c.entries[key]
		c.mu.RUnlock()
	}
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return entry, ok
}

func (c *MemoryCache) Put(key string, entry Entry) {
	if c.bounded != nil {
		c.bounded.Add(key, entry)
		return
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// PruneExpired drops entries older than the TTL they were stored with.
func (c *MemoryCache) PruneExpired(now time.Time) (int64, error) {
	var removed int64
	if c.bounded != nil {
		for _, key := range c.bounded.Keys() {
			if entry, ok := c.bounded.Peek(key); ok && !entry.FreshAt(now, entry.TTL) {
				c.bounded.Remove(key)
				removed++
			}
		}
		return removed, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if !entry.FreshAt(now, entry.TTL) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns counters for debugging and monitoring.
func (c *MemoryCache) Stats() CacheStats {
	return CacheStats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// TieredCache reads the front tier first and promotes back-tier hits.
// Writes go to both tiers.
type TieredCache struct {
	front Cache
	back  Cache
}

// NewTieredCache layers front over back.
func NewTieredCache(front, back Cache) *TieredCache {
	return &TieredCache{front: front, back: back}
}

func (c *TieredCache) Get(key string) (Entry, bool) {
	if entry, ok := c.front.Get(key); ok {
		return entry, true
	}
	entry, ok := c.back.Get(key)
	if ok {
		c.front.Put(key, entry)
	}
	return entry, ok
}

func (c *TieredCache) Put(key string, entry Entry) {
	c.front.Put(key, entry)
	c.back.Put(key, entry)
}
