package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/liamashdown/whaletracker/internal/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long a cached response stays fresh
const DefaultTTL = 60 * time.Second

// Backend stores opaque values with a TTL
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Cache is the short-TTL response cache shared by the upstream client and the service.
// Backend failures degrade to misses and are logged, never returned.
type Cache struct {
	backend Backend
	ttl     time.Duration
	log     *logrus.Logger
}

// New creates a cache over backend. A non-positive ttl uses DefaultTTL.
func New(backend Backend, ttl time.Duration, log *logrus.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, ttl: ttl, log: log}
}

// TTL returns the configured freshness window
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value for key if it is still fresh
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Cache get failed")
		ok = false
	}
	metrics.RecordCacheLookup(ok)
	return val, ok
}

// Set stores val under key with the cache TTL
func (c *Cache) Set(ctx context.Context, key string, val []byte) {
	if err := c.backend.Set(ctx, key, val, c.ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Cache set failed")
	}
}

// Clear drops every entry
func (c *Cache) Clear(ctx context.Context) error {
	metrics.CacheClears.Inc()
	if err := c.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// GetJSON decodes a cached JSON value into out
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key, returning the stored encoding
func (c *Cache) SetJSON(ctx context.Context, key string, v any) ([]byte, error) {
	val, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	c.Set(ctx, key, val)
	return val, nil
}

// Key builds a deterministic cache key from an endpoint and its parameters.
// Parameter order does not matter.
func Key(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return endpoint + "?" + q.Encode()
}
