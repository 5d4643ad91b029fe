package tiles

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/standscan/internal/metrics"
)

// Cache is a concurrent-safe LRU cache of encoded PNG tiles with TTL expiry.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	nowFunc    func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache holding at most maxEntries tiles for ttl.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		nowFunc:    time.Now,
	}
}

// XYZKey builds the cache key of a web map tile.
func XYZKey(layer string, z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d", layer, z, x, y)
}

// BBoxKey builds the cache key of an arbitrary bbox render.
func BBoxKey(layer string, bbox [4]float64, width, height int) string {
	return fmt.Sprintf("%s/bbox/%.2f,%.2f,%.2f,%.2f/%dx%d", layer, bbox[0], bbox[1], bbox[2], bbox[3], width, height)
}

// Get returns a cached tile, or nil on miss or expiry.
func (c *Cache) Get(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.miss()
		return nil
	}
	if c.nowFunc().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.miss()
		return nil
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	metrics.CacheLookup("tiles", true)
	return entry.data
}

func (c *Cache) miss() {
	c.misses.Add(1)
	metrics.CacheLookup("tiles", false)
}

// Put stores a tile, evicting the least recently used entry when full.
func (c *Cache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &cacheEntry{data: data, createdAt: c.nowFunc()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &cacheEntry{data: data, createdAt: c.nowFunc()}
	c.order = append(c.order, key)
}

// Invalidate removes every entry of layer.
func (c *Cache) Invalidate(layer string) {
	prefix := layer + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	var remaining []string
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		} else {
			remaining = append(remaining, key)
		}
	}
	c.order = remaining
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
