package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/core/cache"
)

// Cache keys of the collections served through the cache.
const (
	CacheKeyProducts   = "products"
	CacheKeyCategories = "categories"
	CacheKeyBrands     = "brands"
	CacheKeyOrders     = "orders"
)

// TTLPolicy is how long each cached collection stays valid.
type TTLPolicy struct {
	Orders     time.Duration
	Products   time.Duration
	Categories time.Duration
	Brands     time.Duration
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Orders:     30 * time.Second,
		Products:   5 * time.Minute,
		Categories: 10 * time.Minute,
		Brands:     10 * time.Minute,
	}
}

type settings struct {
	ttl   TTLPolicy
	retry RetryPolicy
	now   func() time.Time
	log   logrus.FieldLogger
}

func newSettings(opts []Option) settings {
	s := settings{
		ttl:   DefaultTTLPolicy(),
		retry: DefaultRetryPolicy(),
		now:   time.Now,
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type Option func(*settings)

func WithTTLPolicy(p TTLPolicy) Option {
	return func(s *settings) { s.ttl = p }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *settings) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *settings) { s.log = log }
}

func invalidate(ctx context.Context, c *cache.Cache, keys ...string) {
	if c == nil {
		return
	}
	for _, k := range keys {
		c.Remove(ctx, k)
	}
}
