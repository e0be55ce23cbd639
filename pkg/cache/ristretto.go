package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a Cache backed by Ristretto. Quote caching is small and
// hot: cost is counted in items, not bytes.
type RistrettoCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for the Ristretto cache.
type RistrettoConfig struct {
	NumCounters int64 // number of keys to track frequency for (10x max items)
	MaxCost     int64 // maximum number of cached items
	BufferItems int64 // keys per Get buffer
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &RistrettoCache{
		cache:  c,
		logger: cfg.Logger,
	}, nil
}

// Get retrieves a value from the cache.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	if found {
		HitsTotal.Inc()
	} else {
		MissesTotal.Inc()
	}
	return value, found
}

// Set stores a value in the cache with a TTL.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		SetsTotal.Inc()
	}
	return ok
}

// Delete removes a value from the cache.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
}

// Clear removes all values from the cache.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared")
}

// Close closes the cache and releases resources.
func (r *RistrettoCache) Close() {
	r.cache.Close()
}

// Wait blocks until pending writes have been applied. Ristretto applies sets
// asynchronously; tests need this before asserting on Get.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
