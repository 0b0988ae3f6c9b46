package cache

import (
	"context"
	"time"
)

// Cache is the interface for caching permission decisions.
// Values are the booleans returned by the decision engine; keys identify a
// (catalogue, action, principal) combination.
type Cache interface {
	// Get retrieves a cached decision.
	// Returns the decision and true if found, or false and false if not found.
	Get(ctx context.Context, key string) (bool, bool)

	// Set stores a decision in cache with TTL.
	Set(ctx context.Context, key string, allowed bool, ttl time.Duration) error

	// Delete removes a decision from cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from cache.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Metrics holds cache performance statistics.
type Metrics struct {
	// Hits is the number of cache hits
	Hits uint64

	// Misses is the number of cache misses
	Misses uint64

	// KeysAdded is the number of keys added to cache
	KeysAdded uint64

	// KeysEvicted is the number of keys evicted from cache
	KeysEvicted uint64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
