package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fingerprint derives a stable cache key from a request path and its query
// parameters. Parameter order does not matter.
func Fingerprint(path string, query map[string]string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(path)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(query[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Stats tracks cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache holds response bodies keyed by fingerprint for a fixed TTL.
// Only successful responses are ever stored.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	stats   Stats
}

// New returns an empty cache. A non-positive ttl falls back to five minutes.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores a copy of data. Expired entries are swept first.
func (c *Cache) Put(fingerprint string, data []byte) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			c.stats.Evictions++
			cacheEvictions.Inc()
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	c.entries[fingerprint] = entry{data: buf, expiresAt: now.Add(c.ttl)}
}

// Get returns a copy of the cached data, or false when absent or expired.
func (c *Cache) Get(fingerprint string) ([]byte, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok || !now.Before(e.expiresAt) {
		c.stats.Misses++
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.stats.Hits++
	cacheLookups.WithLabelValues("hit").Inc()

	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
