// Package cache provides pluggable storage for narinfo lookup results.
//
// A Cache persists raw narinfo response bodies between runs so that
// repeated checks against the same binary cache skip most of the HTTP
// round trips. Three backends are provided: a file-based cache for CLI
// usage, a Redis-backed cache for shared deployments, and a null cache
// that disables persistence entirely.
//
// Only successful lookups belong in the cache. Absence is never stored:
// a path missing from a binary cache today may be uploaded tomorrow.
package cache

import (
	"context"
	"time"
)

// Cache is the interface all cache backends implement.
type Cache interface {
	// Get retrieves a value from the cache.
	// The second return value reports whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a time-to-live.
	// A zero or negative ttl means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}
