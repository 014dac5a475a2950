package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

func seedProduct(t *testing.T, s *MemoryStore, p domain.Product) string {
	t.Helper()
	id, err := s.AddProduct(context.Background(), p)
	require.NoError(t, err)
	return id
}

func TestMemoryStore_ProductRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id := seedProduct(t, s, domain.Product{
		Name:  "Hair Oil",
		Price: 30,
		Inventory: domain.VariantStock{Variants: []domain.Variant{
			{Size: "50ml", Color: "", Price: 30, Stock: 4},
			{Size: "100ml", Color: "", Price: 50, Stock: 2},
		}},
	})
	require.NotEmpty(t, id)

	got, err := s.GetProduct(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hair Oil", got.Name)
	assert.True(t, got.HasVariants())
	stock, ok := got.StockFor(&domain.Variant{Size: "100ml"})
	assert.True(t, ok)
	assert.Equal(t, 2, stock)

	missing, err := s.GetProduct(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, s.DeleteProduct(ctx, "nope"), port.ErrNotFound)
	assert.ErrorIs(t, s.UpdateProduct(ctx, domain.Product{ID: "nope"}), port.ErrNotFound)
}

func TestMemoryStore_ListKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := seedProduct(t, s, domain.Product{Name: "A", Inventory: domain.SimpleStock{Stock: 1}})
	b := seedProduct(t, s, domain.Product{Name: "B", Inventory: domain.SimpleStock{Stock: 1}})

	// updating a must not move it
	pa, _ := s.GetProduct(ctx, a)
	pa.Price = 3
	require.NoError(t, s.UpdateProduct(ctx, *pa))

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, a, products[0].ID)
	assert.Equal(t, b, products[1].ID)
}

func TestMemoryStore_TransactionReadYourWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := seedProduct(t, s, domain.Product{Name: "Mask", Inventory: domain.SimpleStock{Stock: 5}})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx port.Transaction) error {
		for i := 0; i < 2; i++ {
			p, err := tx.GetProduct(ctx, id)
			if err != nil {
				return err
			}
			updated, _ := p.AdjustStock(nil, -2)
			if err := tx.UpdateProduct(updated); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	p, _ := s.GetProduct(ctx, id)
	stock, _ := p.StockFor(nil)
	assert.Equal(t, 1, stock)
}

func TestMemoryStore_TransactionConflictsOnConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := seedProduct(t, s, domain.Product{Name: "Mask", Inventory: domain.SimpleStock{Stock: 5}})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx port.Transaction) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		// someone else writes between our read and commit
		other, _ := p.AdjustStock(nil, -5)
		require.NoError(t, s.UpdateProduct(ctx, other))

		updated, _ := p.AdjustStock(nil, -1)
		return tx.UpdateProduct(updated)
	})
	assert.ErrorIs(t, err, port.ErrConflict)

	p, _ := s.GetProduct(ctx, id)
	stock, _ := p.StockFor(nil)
	assert.Equal(t, 0, stock, "losing transaction must not be applied")
}

func TestMemoryStore_DeleteAndRecreateIsStillAConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var orderID string
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx port.Transaction) error {
		var err error
		orderID, err = tx.CreateOrder(domain.Order{Status: domain.OrderStatusPending})
		return err
	}))

	err := s.RunTransaction(ctx, func(ctx context.Context, tx port.Transaction) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, inner port.Transaction) error {
			if err := inner.DeleteOrder(orderID); err != nil {
				return err
			}
			return nil
		}))
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, inner port.Transaction) error {
			return inner.UpdateOrder(*o)
		}))

		o.Status = domain.OrderStatusRejected
		return tx.UpdateOrder(*o)
	})
	assert.ErrorIs(t, err, port.ErrConflict)
}

func TestMemoryStore_TransactionErrorDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := seedProduct(t, s, domain.Product{Name: "Mask", Inventory: domain.SimpleStock{Stock: 5}})

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx port.Transaction) error {
		p, _ := tx.GetProduct(ctx, id)
		updated, _ := p.AdjustStock(nil, -5)
		if err := tx.UpdateProduct(updated); err != nil {
			return err
		}
		if _, err := tx.CreateOrder(domain.Order{}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, _ := s.GetProduct(ctx, id)
	stock, _ := p.StockFor(nil)
	assert.Equal(t, 5, stock)
	orders, _ := s.ListOrders(ctx)
	assert.Empty(t, orders)
}

func TestMemoryStore_UpdatePricingLeavesStock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := seedProduct(t, s, domain.Product{
		Name:      "Cream",
		Price:     8,
		Inventory: domain.SimpleStock{Stock: 7},
		Discount:  &domain.Discount{OriginalPrice: 10, Value: 20, Type: domain.DiscountPercentage},
	})

	n, err := s.UpdatePricing(ctx, []domain.PricingUpdate{
		{ProductID: id, Price: 10},
		{ProductID: "deleted", Price: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, _ := s.GetProduct(ctx, id)
	assert.Equal(t, 10.0, p.Price)
	assert.Nil(t, p.Discount)
	stock, _ := p.StockFor(nil)
	assert.Equal(t, 7, stock)
}

func TestMemoryStore_UpdatePricingChecksExpiryAgainstStoredDiscount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	yesterday, tomorrow := now.Add(-24*time.Hour), now.Add(24*time.Hour)

	expired := seedProduct(t, s, domain.Product{
		Name: "Kohl", Price: 8, Inventory: domain.SimpleStock{Stock: 2},
		Discount: &domain.Discount{OriginalPrice: 10, Value: 2, Type: domain.DiscountFixed, ExpiresAt: &yesterday},
	})
	running := seedProduct(t, s, domain.Product{
		Name: "Gloss", Price: 5, Inventory: domain.SimpleStock{Stock: 2},
		Discount: &domain.Discount{OriginalPrice: 10, Value: 50, Type: domain.DiscountPercentage, ExpiresAt: &tomorrow},
	})
	plain := seedProduct(t, s, domain.Product{Name: "Balm", Price: 10, Inventory: domain.SimpleStock{Stock: 2}})

	n, err := s.UpdatePricing(ctx, []domain.PricingUpdate{
		{ProductID: expired, Price: 10, ExpiredBy: now},
		{ProductID: running, Price: 10, ExpiredBy: now},
		{ProductID: plain, Price: 99, ExpiredBy: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, _ := s.GetProduct(ctx, expired)
	assert.Equal(t, 10.0, p.Price)
	assert.Nil(t, p.Discount)

	p, _ = s.GetProduct(ctx, running)
	assert.Equal(t, 5.0, p.Price)
	assert.NotNil(t, p.Discount)

	p, _ = s.GetProduct(ctx, plain)
	assert.Equal(t, 10.0, p.Price)
}

func TestMemoryStore_CategoriesAndBrands(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cid, err := s.SaveCategory(ctx, domain.Category{Name: "Skincare", NameAr: "العناية بالبشرة"})
	require.NoError(t, err)
	_, err = s.SaveCategory(ctx, domain.Category{ID: cid, Name: "Skin Care"})
	require.NoError(t, err)

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Skin Care", categories[0].Name)

	_, err = s.SaveBrand(ctx, domain.Brand{Name: "Lumière"})
	require.NoError(t, err)
	brands, err := s.ListBrands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}
