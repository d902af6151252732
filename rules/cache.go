package rules

import (
	"sync"
	"time"
)

// RulesCache caches the enabled-rules list so scheduled runs do not hit the
// store on every tick. Implementations must be safe for concurrent use.
type RulesCache interface {
	// Get returns the cached rules, or nil on miss/expiry.
	Get() []*Rule

	// Set stores the rules.
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a refresh on next Get.
	Invalidate()
}

// InMemoryRulesCache is a mutex-guarded RulesCache with an optional TTL.
// A TTL of zero means entries only expire on explicit invalidation, which
// is the right default here: the engine invalidates on every rule mutation.
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	ttl      time.Duration
	valid    bool
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates a cache with the given TTL (0 = none).
func NewInMemoryRulesCache(ttl time.Duration) *InMemoryRulesCache {
	return &InMemoryRulesCache{ttl: ttl}
}

// Get returns the cached rules, or nil on miss/expiry.
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.ttl > 0 && time.Since(c.cachedAt) > c.ttl {
		return nil
	}

	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Set stores a copy of the rules.
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

// Invalidate clears the cache.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}
