// Package streamcache is a bounded TTL cache for resolved stream URLs.
// Extraction is expensive (it shells out to yt-dlp), while the direct
// URLs it yields stay valid for a few hours, so resolutions of the same
// source within the TTL window should hit the extractor at most once.
package streamcache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL matches the validity window YouTube grants direct
	// stream URLs, with margin.
	DefaultTTL = 2 * time.Hour

	// DefaultCapacity bounds memory; one entry is a key plus a URL.
	DefaultCapacity = 500
)

type entry struct {
	key       string
	url       string
	expiresAt time.Time
}

// Cache maps a source key to a direct stream URL with expiry. Eviction
// is oldest-insertion-first once capacity is reached. Safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = oldest
	now      func() time.Time
}

// New creates a cache with the given TTL and capacity. Zero values
// select the defaults.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached URL for key, or "" and false if the key is
// absent or past its expiry. Expired entries are removed on access.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		return "", false
	}
	return e.url, true
}

// Put stores url under key with the cache TTL, evicting the oldest
// entry if the cache is at capacity. Re-putting an existing key
// refreshes its expiry but not its insertion order.
func (c *Cache) Put(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.url = url
		e.expiresAt = c.now().Add(c.ttl)
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			c.remove(oldest)
		}
	}
	el := c.order.PushBack(&entry{key: key, url: url, expiresAt: c.now().Add(c.ttl)})
	c.entries[key] = el
}

// Evict removes key if present.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Len reports the number of entries, counting expired ones not yet
// swept by a Get.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(el)
}
