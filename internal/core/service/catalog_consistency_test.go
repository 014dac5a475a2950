package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/beauty-shop/internal/adapter/storage"
	"github.com/rl1809/beauty-shop/internal/core/cache"
	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

// interleavingStore runs between once, after the first transaction has
// done its reads and before it commits.
type interleavingStore struct {
	*storage.MemoryStore
	between func()
	calls   int
}

func (s *interleavingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Transaction) error) error {
	s.calls++
	first := s.calls == 1
	return s.MemoryStore.RunTransaction(ctx, func(ctx context.Context, tx port.Transaction) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if first && s.between != nil {
			s.between()
		}
		return nil
	})
}

// secondCatalog is another shop instance on the same store with its own cache.
func secondCatalog(t *testing.T, f *fixture, store port.DocumentStore) *CatalogService {
	t.Helper()
	log, _ := test.NewNullLogger()
	c := cache.New(storage.NewMemoryKV(), cache.WithClock(f.clock.now), cache.WithLogger(log))
	return NewCatalogService(store, c, WithClock(f.clock.now), WithLogger(log), WithRetryPolicy(fastRetry))
}

func TestListProducts_StaleCacheDoesNotUndoNewDiscount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := secondCatalog(t, f, f.store)

	soon := f.clock.now().Add(time.Minute)
	id := f.addProduct(t, domain.Product{
		Name: "Musk", Price: 80, Inventory: domain.SimpleStock{Stock: 4},
		Discount: &domain.Discount{OriginalPrice: 100, Value: 20, Type: domain.DiscountPercentage, ExpiresAt: &soon},
	})

	_, err := other.ListProducts(ctx, false)
	require.NoError(t, err)

	f.clock.advance(2 * time.Minute)
	tomorrow := f.clock.now().Add(24 * time.Hour)
	_, err = f.catalog.ApplyDiscount(ctx, id, 50, domain.DiscountPercentage, &tomorrow)
	require.NoError(t, err)

	// other still holds the expired copy in its cache
	products, err := other.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 50.0, products[0].Price)
	require.NotNil(t, products[0].Discount)

	stored, _ := f.catalog.GetProduct(ctx, id)
	assert.Equal(t, 50.0, stored.Price)
	require.NotNil(t, stored.Discount)
	assert.True(t, stored.Discount.ExpiresAt.Equal(tomorrow))

	n, err := other.sweep(ctx, []domain.Product{{
		ID: id, Price: 80,
		Discount: &domain.Discount{OriginalPrice: 100, Value: 20, Type: domain.DiscountPercentage, ExpiresAt: &soon},
	}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveProduct_KeepsStockTakenSinceLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addProduct(t, simple("Henna", 15, 5))

	edit, err := f.catalog.GetProduct(ctx, id)
	require.NoError(t, err)

	placeOrder(t, f, line(id, 2))

	edit.NameAr = "حناء"
	_, err = f.catalog.SaveProduct(ctx, *edit)
	require.NoError(t, err)

	stored, _ := f.catalog.GetProduct(ctx, id)
	assert.Equal(t, "حناء", stored.NameAr)
	assert.Equal(t, 3, f.stock(t, id, nil))
}

func TestSaveProduct_KeepsVariantStockAndAddsNewVariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	red := domain.Variant{Size: "M", Color: "red", Price: 60, Stock: 4}
	id := f.addProduct(t, domain.Product{Name: "Abaya", Price: 60, Inventory: domain.VariantStock{Variants: []domain.Variant{red}}})

	edit, _ := f.catalog.GetProduct(ctx, id)
	placeOrder(t, f, domain.CartItem{ProductID: id, Quantity: 1, SelectedVariant: &red})

	edit.Inventory = domain.VariantStock{Variants: []domain.Variant{
		red,
		{Size: "L", Color: "blue", Price: 65, Stock: 7},
	}}
	_, err := f.catalog.SaveProduct(ctx, *edit)
	require.NoError(t, err)

	assert.Equal(t, 3, f.stock(t, id, &red))
	assert.Equal(t, 7, f.stock(t, id, &domain.Variant{Size: "L", Color: "blue"}))
}

func TestRestock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addProduct(t, simple("Miswak", 2, 1))
	red := domain.Variant{Size: "S", Color: "red", Stock: 1}
	vid := f.addProduct(t, domain.Product{Name: "Hijab", Price: 20, Inventory: domain.VariantStock{Variants: []domain.Variant{red}}})

	p, err := f.catalog.Restock(ctx, id, nil, 12)
	require.NoError(t, err)
	stock, _ := p.StockFor(nil)
	assert.Equal(t, 12, stock)
	assert.Equal(t, 12, f.stock(t, id, nil))

	_, err = f.catalog.Restock(ctx, vid, &red, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, f.stock(t, vid, &red))

	_, err = f.catalog.Restock(ctx, vid, nil, 9)
	assert.ErrorIs(t, err, ErrVariantRequired)
	_, err = f.catalog.Restock(ctx, id, nil, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.catalog.Restock(ctx, "missing", nil, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestApplyDiscount_RetriesOverConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addProduct(t, simple("Saffron Cream", 40, 5))

	store := &interleavingStore{MemoryStore: f.store}
	store.between = func() {
		placeOrder(t, f, line(id, 2))
		_, err := f.catalog.ApplyDiscount(ctx, id, 5, domain.DiscountFixed, nil)
		require.NoError(t, err)
	}
	admin := secondCatalog(t, f, store)

	p, err := admin.ApplyDiscount(ctx, id, 25, domain.DiscountPercentage, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 30.0, p.Price)

	stored, _ := f.catalog.GetProduct(ctx, id)
	assert.Equal(t, 30.0, stored.Price)
	assert.Equal(t, 40.0, stored.Discount.OriginalPrice)
	assert.Equal(t, 3, f.stock(t, id, nil))
}

func TestRemoveDiscount_KeepsConcurrentCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addProduct(t, domain.Product{
		Name: "Kohl", Price: 8, Inventory: domain.SimpleStock{Stock: 4},
		Discount: &domain.Discount{OriginalPrice: 10, Value: 2, Type: domain.DiscountFixed},
	})

	store := &interleavingStore{MemoryStore: f.store}
	store.between = func() { placeOrder(t, f, line(id, 1)) }
	admin := secondCatalog(t, f, store)

	p, err := admin.RemoveDiscount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Price)
	assert.Nil(t, p.Discount)
	assert.Equal(t, 3, f.stock(t, id, nil))
}
