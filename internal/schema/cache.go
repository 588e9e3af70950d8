package schema

import (
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// CachedIntrospector memoizes another Introspector for the process
// lifetime. Schema metadata is static at runtime, so entries never
// expire; Clear exists for test isolation, not for production eviction.
//
// Lookups are safe for concurrent use. Population is at-most-once per
// key: concurrent misses serialize on a mutex and re-check the cache
// before delegating, so the wrapped introspector sees a single call per
// entity/path regardless of request concurrency.
//
// Errors are not cached - a failed lookup is retried on the next call,
// which keeps a registry populated late (tests, tooling) usable without
// flushing.
type CachedIntrospector struct {
	next  Introspector
	cache *gocache.Cache
	mu    sync.Mutex
}

// NewCachedIntrospector wraps next with a process-lifetime memo cache.
func NewCachedIntrospector(next Introspector) *CachedIntrospector {
	return &CachedIntrospector{
		next: next,
		// No expiration and no janitor: entries live until Clear.
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Entity implements Introspector.
func (c *CachedIntrospector) Entity(name string) (*Entity, error) {
	key := "entity\x00" + name
	if v, ok := c.cache.Get(key); ok {
		return v.(*Entity), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache.Get(key); ok {
		return v.(*Entity), nil
	}

	e, err := c.next.Entity(name)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, e, gocache.NoExpiration)
	return e, nil
}

// PrimaryKey implements Introspector.
func (c *CachedIntrospector) PrimaryKey(name string) (ResolvedKey, error) {
	key := "key\x00" + name
	if v, ok := c.cache.Get(key); ok {
		return v.(ResolvedKey), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache.Get(key); ok {
		return v.(ResolvedKey), nil
	}

	rk, err := c.next.PrimaryKey(name)
	if err != nil {
		return ResolvedKey{}, err
	}
	c.cache.Set(key, rk, gocache.NoExpiration)
	return rk, nil
}

// Relationship implements Introspector.
func (c *CachedIntrospector) Relationship(entity, relation string) (*Relationship, error) {
	key := "rel\x00" + entity + "\x00" + relation
	if v, ok := c.cache.Get(key); ok {
		return v.(*Relationship), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache.Get(key); ok {
		return v.(*Relationship), nil
	}

	rel, err := c.next.Relationship(entity, relation)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, rel, gocache.NoExpiration)
	return rel, nil
}

// Clear drops every memoized entry. Intended for test isolation after
// swapping registry contents.
func (c *CachedIntrospector) Clear() {
	c.cache.Flush()
}

// Len returns the number of memoized entries. Used in tests to verify
// at-most-once population.
func (c *CachedIntrospector) Len() int {
	return c.cache.ItemCount()
}

var _ Introspector = (*CachedIntrospector)(nil)
