// Package cache is a read-through TTL cache over a persistent key-value
// medium. It never holds write authority: callers write to the document
// store and then repopulate or invalidate entries.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/port"
)

const DefaultNamespace = "cache:"

// entry is the persisted form of a cached value.
type entry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"` // unix ms
	TTLMs     int64           `json:"ttlMs"`
}

type Cache struct {
	kv        port.KeyValueStore
	namespace string
	now       func() time.Time
	log       logrus.FieldLogger
}

type Option func(*Cache)

func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = log }
}

func New(kv port.KeyValueStore, opts ...Option) *Cache {
	c := &Cache{
		kv:        kv,
		namespace: DefaultNamespace,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "cache")
	return c
}

func (c *Cache) key(k string) string {
	return c.namespace + k
}

// Get decodes the live value stored under key into dest and reports a hit.
// Expired and malformed entries are removed and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	raw, found, err := c.kv.Get(ctx, c.key(key))
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	if !found {
		return false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.log.WithField("key", key).Warn("evicting malformed cache entry")
		c.Remove(ctx, key)
		return false
	}

	if c.now().UnixMilli()-e.Timestamp >= e.TTLMs {
		c.Remove(ctx, key)
		return false
	}

	if err := json.Unmarshal(e.Value, dest); err != nil {
		c.log.WithField("key", key).Warn("evicting undecodable cache value")
		c.Remove(ctx, key)
		return false
	}
	return true
}

// Set stores value under key for ttl, replacing any previous entry.
// Failures are logged and dropped; the next read simply misses.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache value not serializable")
		return
	}

	raw, err := json.Marshal(entry{
		Value:     data,
		Timestamp: c.now().UnixMilli(),
		TTLMs:     ttl.Milliseconds(),
	})
	if err != nil {
		return
	}

	if err := c.kv.Set(ctx, c.key(key), string(raw)); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write skipped")
	}
}

func (c *Cache) Remove(ctx context.Context, key string) {
	if err := c.kv.Remove(ctx, c.key(key)); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache remove failed")
	}
}

// ClearAll removes every entry in the cache namespace and nothing else.
func (c *Cache) ClearAll(ctx context.Context) {
	keys, err := c.kv.Keys(ctx, c.namespace)
	if err != nil {
		c.log.WithError(err).Warn("cache clear failed")
		return
	}
	for _, k := range keys {
		c.Remove(ctx, strings.TrimPrefix(k, c.namespace))
	}
}

// Fetch serves key from c, or calls load and caches its result for ttl.
// force skips the cached value but still repopulates it. A nil cache
// always loads.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, force bool, load func(context.Context) (T, error)) (T, error) {
	if c != nil && !force {
		var cached T
		if c.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if c != nil {
		c.Set(ctx, key, v, ttl)
	}
	return v, nil
}
