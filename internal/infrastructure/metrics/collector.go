package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/mizutama/torii/pkg/cache"
	"github.com/mizutama/torii/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the permission engine.
type Collector struct {
	// Decision metrics
	decisions       sync.Map // map[string]*uint64 - action -> count
	denials         sync.Map // map[string]*uint64 - action -> denied count
	decisionSeconds sync.Map // map[string]*durationValue - action -> total duration in seconds

	// Traversal health
	cyclesDetected uint64
	storeErrors    sync.Map // map[string]*uint64 - chain -> count

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// DecisionMetrics holds permission decision metrics.
type DecisionMetrics struct {
	DecisionCounts       map[string]uint64
	DenialCounts         map[string]uint64
	TotalDurationSeconds map[string]float64
	CyclesDetected       uint64
	StoreErrorCounts     map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordDecision records a permission decision for an action.
func (c *Collector) RecordDecision(action string, allowed bool) {
	counter := c.getOrCreateCounter(&c.decisions, action)
	atomic.AddUint64(counter, 1)
	if !allowed {
		denied := c.getOrCreateCounter(&c.denials, action)
		atomic.AddUint64(denied, 1)
	}
}

// RecordDuration records the duration of a decision in seconds.
func (c *Collector) RecordDuration(action string, durationSeconds float64) {
	val, _ := c.decisionSeconds.LoadOrStore(action, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordCycle records a cycle detected during an inheritance walk.
func (c *Collector) RecordCycle() {
	atomic.AddUint64(&c.cyclesDetected, 1)
}

// RecordStoreError records a transient store failure on the given chain.
func (c *Collector) RecordStoreError(chain string) {
	counter := c.getOrCreateCounter(&c.storeErrors, chain)
	atomic.AddUint64(counter, 1)
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	// Get current keys and memory if available
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GetDecisionMetrics returns current decision metrics.
func (c *Collector) GetDecisionMetrics() *DecisionMetrics {
	result := &DecisionMetrics{
		DecisionCounts:       make(map[string]uint64),
		DenialCounts:         make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
		CyclesDetected:       atomic.LoadUint64(&c.cyclesDetected),
		StoreErrorCounts:     make(map[string]uint64),
	}

	// Collect decision counts
	c.decisions.Range(func(key, value interface{}) bool {
		action := key.(string)
		count := atomic.LoadUint64(value.(*uint64))
		result.DecisionCounts[action] = count
		return true
	})

	// Collect denial counts
	c.denials.Range(func(key, value interface{}) bool {
		action := key.(string)
		count := atomic.LoadUint64(value.(*uint64))
		result.DenialCounts[action] = count
		return true
	})

	// Collect duration totals
	c.decisionSeconds.Range(func(key, value interface{}) bool {
		action := key.(string)
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[action] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	// Collect store error counts
	c.storeErrors.Range(func(key, value interface{}) bool {
		chain := key.(string)
		count := atomic.LoadUint64(value.(*uint64))
		result.StoreErrorCounts[chain] = count
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
