package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/beauty-shop/internal/adapter/storage"
	"github.com/rl1809/beauty-shop/internal/core/cache"
	"github.com/rl1809/beauty-shop/internal/core/domain"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store   *storage.MemoryStore
	kv      *storage.MemoryKV
	cache   *cache.Cache
	clock   *testClock
	carts   *CartService
	catalog *CatalogService
	orders  *OrderService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	clk := &testClock{t: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}

	f := &fixture{
		store: storage.NewMemoryStore(),
		kv:    storage.NewMemoryKV(),
		clock: clk,
	}
	f.cache = cache.New(f.kv, cache.WithClock(clk.now), cache.WithLogger(log))

	opts = append([]Option{WithClock(clk.now), WithLogger(log)}, opts...)
	f.carts = NewCartService(f.kv, opts...)
	f.catalog = NewCatalogService(f.store, f.cache, opts...)
	f.orders = NewOrderService(f.store, f.cache, f.carts, opts...)
	return f
}

func (f *fixture) addProduct(t *testing.T, p domain.Product) string {
	t.Helper()
	id, err := f.store.AddProduct(context.Background(), p)
	require.NoError(t, err)
	return id
}

func (f *fixture) stock(t *testing.T, id string, sel *domain.Variant) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p, "product %s missing", id)
	stock, ok := p.StockFor(sel)
	require.True(t, ok, "variant missing on %s", id)
	return stock
}

func simple(name string, price float64, stock int) domain.Product {
	return domain.Product{Name: name, Price: price, Inventory: domain.SimpleStock{Stock: stock}}
}

func line(id string, qty int) domain.CartItem {
	return domain.CartItem{ProductID: id, Quantity: qty}
}

var customer = domain.Customer{Name: "Layla", Phone: "+966500000001", Address: "King Fahd Rd 12", City: "Riyadh"}
