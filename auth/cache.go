package auth

import "sync"

type cacheKey struct {
	credential string
	resource   string
}

// Cache holds (credential, resource) permission entries. Entries never
// expire on their own; an administrative refresh or invalidation is the
// only way a cached answer changes. Read-mostly, safe for concurrent
// use.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Level
}

// NewCache creates an empty permission cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Level)}
}

// Get returns the cached level for the pair.
func (c *Cache) Get(credential, resource string) (Level, bool) {
	c.mu.RLock()
	level, ok := c.entries[cacheKey{credential, resource}]
	c.mu.RUnlock()
	return level, ok
}

// Set stores the level for the pair, overwriting any previous entry.
func (c *Cache) Set(credential, resource string, level Level) {
	c.mu.Lock()
	c.entries[cacheKey{credential, resource}] = level
	c.mu.Unlock()
}

// Invalidate drops the entry for the pair if present.
func (c *Cache) Invalidate(credential, resource string) {
	c.mu.Lock()
	delete(c.entries, cacheKey{credential, resource})
	c.mu.Unlock()
}

// InvalidateCredential drops every entry for the credential.
func (c *Cache) InvalidateCredential(credential string) {
	c.mu.Lock()
	for k := range c.entries {
		if k.credential == credential {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]Level)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return n
}

// pairs returns a snapshot of all cached pairs for refresh iteration.
func (c *Cache) pairs() []cacheKey {
	c.mu.RLock()
	out := make([]cacheKey, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	c.mu.RUnlock()
	return out
}
