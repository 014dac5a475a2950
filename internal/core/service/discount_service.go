package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/core/domain"
)

// SweepExpiredDiscounts reverts every product whose discount has expired
// and returns how many were reverted. Running it concurrently is harmless:
// a product already reverted no longer matches.
func (s *CatalogService) SweepExpiredDiscounts(ctx context.Context) (int, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, products)
}

// sweep reverts the expired discounts found in products with one batched
// write. products may be a stale copy, so every update is conditional on
// the stored discount still being expired.
func (s *CatalogService) sweep(ctx context.Context, products []domain.Product) (int, error) {
	now := s.now()

	var updates []domain.PricingUpdate
	for _, p := range products {
		if !p.DiscountExpired(now) {
			continue
		}
		updates = append(updates, domain.PricingUpdate{
			ProductID: p.ID,
			Price:     p.Discount.OriginalPrice,
			ExpiredBy: now,
		})
	}
	if len(updates) == 0 {
		return 0, nil
	}

	n, err := s.store.UpdatePricing(ctx, updates)
	if err != nil {
		return 0, err
	}

	invalidate(ctx, s.cache, CacheKeyProducts)
	s.log.WithFields(logrus.Fields{"count": n, "skipped": len(updates) - n}).Info("expired discounts reverted")
	return n, nil
}

func anyDiscountExpired(products []domain.Product, now time.Time) bool {
	for _, p := range products {
		if p.DiscountExpired(now) {
			return true
		}
	}
	return false
}

// RunDiscountSweeper sweeps once immediately and then every interval until
// ctx is done.
func (s *CatalogService) RunDiscountSweeper(ctx context.Context, interval time.Duration) {
	if _, err := s.SweepExpiredDiscounts(ctx); err != nil {
		s.log.WithError(err).Warn("discount sweep failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredDiscounts(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("discount sweep failed")
			}
		}
	}
}
