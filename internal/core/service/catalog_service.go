package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/core/cache"
	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

// CatalogService serves products, categories and brands through the cache
// and invalidates the affected collection after every admin write.
type CatalogService struct {
	store port.DocumentStore
	cache *cache.Cache
	settings
}

func NewCatalogService(store port.DocumentStore, c *cache.Cache, opts ...Option) *CatalogService {
	s := &CatalogService{store: store, cache: c, settings: newSettings(opts)}
	s.log = s.log.WithField("component", "catalog")
	return s
}

// ListProducts also reverts any expired discount it comes across before
// returning the list.
func (s *CatalogService) ListProducts(ctx context.Context, force bool) ([]domain.Product, error) {
	products, err := cache.Fetch(ctx, s.cache, CacheKeyProducts, s.ttl.Products, force, s.store.ListProducts)
	if err != nil {
		return nil, err
	}
	if !anyDiscountExpired(products, s.now()) {
		return products, nil
	}

	// the list may be stale; the sweep re-checks each product and the
	// result is reloaded from the store
	if _, err := s.sweep(ctx, products); err != nil {
		s.log.WithError(err).Warn("discount sweep on read failed")
		return products, nil
	}
	return cache.Fetch(ctx, s.cache, CacheKeyProducts, s.ttl.Products, true, s.store.ListProducts)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// SaveProduct creates the product when it has no id and replaces it
// otherwise. A replaced product keeps its stored stock; use Restock to
// change quantities.
func (s *CatalogService) SaveProduct(ctx context.Context, p domain.Product) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	id := p.ID
	if id == "" {
		var err error
		if id, err = s.store.AddProduct(ctx, p); err != nil {
			return "", err
		}
	} else {
		_, err := s.updateProduct(ctx, id, func(stored domain.Product) (domain.Product, error) {
			edited := p.KeepStock(stored)
			edited.CreatedAt = stored.CreatedAt
			return edited, nil
		})
		if err != nil {
			return "", err
		}
	}

	invalidate(ctx, s.cache, CacheKeyProducts)
	s.log.WithField("product_id", id).Info("product saved")
	return id, nil
}

// Restock sets the stock backing sel, which must name a variant when the
// product has variants.
func (s *CatalogService) Restock(ctx context.Context, id string, sel *domain.Variant, stock int) (*domain.Product, error) {
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
	}
	p, err := s.updateProduct(ctx, id, func(stored domain.Product) (domain.Product, error) {
		restocked, ok := stored.SetStock(sel, stock)
		if !ok {
			return stored, ErrVariantRequired
		}
		return restocked, nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, CacheKeyProducts)
	s.log.WithFields(logrus.Fields{"product_id": id, "stock": stock}).Info("product restocked")
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	invalidate(ctx, s.cache, CacheKeyProducts)
	return nil
}

// ApplyDiscount discounts a product from its undiscounted price. A nil
// expiresAt keeps the discount until it is removed.
func (s *CatalogService) ApplyDiscount(ctx context.Context, id string, value float64, typ domain.DiscountType, expiresAt *time.Time) (*domain.Product, error) {
	p, err := s.updateProduct(ctx, id, func(stored domain.Product) (domain.Product, error) {
		return stored.WithDiscount(value, typ, expiresAt)
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, CacheKeyProducts)
	s.log.WithFields(logrus.Fields{"product_id": id, "type": typ, "value": value}).Info("discount applied")
	return p, nil
}

func (s *CatalogService) RemoveDiscount(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.updateProduct(ctx, id, func(stored domain.Product) (domain.Product, error) {
		return stored.WithoutDiscount(), nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, CacheKeyProducts)
	return p, nil
}

// updateProduct applies edit to the stored product inside a versioned
// transaction, so an edit never overwrites a concurrent checkout.
func (s *CatalogService) updateProduct(ctx context.Context, id string, edit func(domain.Product) (domain.Product, error)) (*domain.Product, error) {
	var result domain.Product
	err := runTransaction(ctx, s.store, s.retry, s.log, func(ctx context.Context, tx port.Transaction) error {
		stored, err := tx.GetProduct(ctx, id)
		if err != nil {
			return fmt.Errorf("read product %s: %w", id, err)
		}
		if stored == nil {
			return ErrProductNotFound
		}

		edited, err := edit(*stored)
		if err != nil {
			return err
		}
		edited.ID = id
		result = edited
		return tx.UpdateProduct(edited)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *CatalogService) ListCategories(ctx context.Context, force bool) ([]domain.Category, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyCategories, s.ttl.Categories, force, s.store.ListCategories)
}

func (s *CatalogService) SaveCategory(ctx context.Context, c domain.Category) (string, error) {
	if c.Name == "" {
		return "", fmt.Errorf("%w: category name required", ErrInvalidInput)
	}
	id, err := s.store.SaveCategory(ctx, c)
	if err != nil {
		return "", err
	}
	invalidate(ctx, s.cache, CacheKeyCategories)
	return id, nil
}

func (s *CatalogService) ListBrands(ctx context.Context, force bool) ([]domain.Brand, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyBrands, s.ttl.Brands, force, s.store.ListBrands)
}

func (s *CatalogService) SaveBrand(ctx context.Context, b domain.Brand) (string, error) {
	if b.Name == "" {
		return "", fmt.Errorf("%w: brand name required", ErrInvalidInput)
	}
	id, err := s.store.SaveBrand(ctx, b)
	if err != nil {
		return "", err
	}
	invalidate(ctx, s.cache, CacheKeyBrands)
	return id, nil
}
