// Package names caches user display names keyed by identity id.
package names

import (
	"context"
	"sync"
)

// Resolver looks up the display name of a user.
type Resolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, userID string) (string, error)

// DisplayName calls f.
func (f ResolverFunc) DisplayName(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// Cache memoizes a Resolver. Entries are never evicted; the cache lives as
// long as its owner. Failed lookups are not cached.
type Cache struct {
	resolver Resolver

	mu    sync.RWMutex
	names map[string]string
}

// NewCache creates a Cache over r. A nil resolver makes every miss fall back to the id.
func NewCache(r Resolver) *Cache {
	return &Cache{resolver: r, names: make(map[string]string)}
}

// Name returns the display name of userID, resolving it on first use.
// When resolution fails or yields nothing, the id itself is returned.
func (c *Cache) Name(ctx context.Context, userID string) string {
	c.mu.RLock()
	name, ok := c.names[userID]
	c.mu.RUnlock()
	if ok {
		return name
	}
	if c.resolver == nil {
		return userID
	}

	name, err := c.resolver.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}

	c.Put(userID, name)
	return name
}

// Put stores a known name.
func (c *Cache) Put(userID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[userID] = name
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
