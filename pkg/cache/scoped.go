package cache

import (
	"context"
	"time"
)

// ScopedCache wraps a Cache so that every key gains a fixed prefix.
// The fetch layer scopes its entries per binary cache URL, letting one
// underlying store serve lookups against any number of caches without
// key collisions.
//
// Example usage:
//
//	shared, _ := NewFileCache(dir)
//	scoped := NewScopedCache(shared, Key("narinfo", cacheURL)+":")
type ScopedCache struct {
	inner  Cache
	prefix string
}

// NewScopedCache creates a cache view with a key prefix.
// A nil inner cache falls back to the null cache.
func NewScopedCache(inner Cache, prefix string) Cache {
	if inner == nil {
		inner = NewNullCache()
	}
	return &ScopedCache{
		inner:  inner,
		prefix: prefix,
	}
}

// Get retrieves a value under the prefixed key.
func (c *ScopedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.inner.Get(ctx, c.prefix+key)
}

// Set stores a value under the prefixed key.
func (c *ScopedCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, c.prefix+key, data, ttl)
}

// Delete removes the prefixed key.
func (c *ScopedCache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, c.prefix+key)
}

// Close does nothing: whoever created the underlying cache owns its
// lifecycle.
func (c *ScopedCache) Close() error {
	return nil
}

// Ensure ScopedCache implements Cache.
var _ Cache = (*ScopedCache)(nil)
