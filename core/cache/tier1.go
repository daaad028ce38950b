package cache

import (
	"strings"
	"sync"
	"time"
)

const defaultMaxLocalEntries = 1024

// tier1 is a process-local bounded map with insertion-order eviction.
// Eviction is oldest-inserted, not LRU; cheap and good enough since the
// shared tier behind it absorbs re-reads after an eviction.
type tier1 struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]tier1Entry
	order      []string
	onEvict    func()
}

type tier1Entry struct {
	value      []byte
	insertedAt time.Time
	expiresAt  time.Time
}

func newTier1(maxEntries int, onEvict func()) *tier1 {
	if maxEntries <= 0 {
		maxEntries = defaultMaxLocalEntries
	}
	return &tier1{
		maxEntries: maxEntries,
		entries:    make(map[string]tier1Entry, maxEntries),
		onEvict:    onEvict,
	}
}

// Get returns the stored bytes, dropping the entry when its TTL has elapsed.
func (c *tier1) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores bytes under key. A replacement keeps the key's original
// insertion slot; a new key may evict the oldest-inserted entry.
func (c *tier1) Set(key string, value []byte, ttl time.Duration) {
	now := time.Now()
	entry := tier1Entry{value: value, insertedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		return
	}
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.removeLocked(oldest)
		if c.onEvict != nil {
			c.onEvict()
		}
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Delete removes a single key.
func (c *tier1) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// DeletePrefix removes every key with the given prefix.
func (c *tier1) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(key)
		}
	}
}

// Len reports the current entry count.
func (c *tier1) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *tier1) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
