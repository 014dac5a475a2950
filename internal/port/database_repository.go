package port

import (
	"context"
	"errors"

	"github.com/rl1809/beauty-shop/internal/core/domain"
)

var (
	// ErrConflict is returned by RunTransaction when a document read by the
	// transaction changed before commit. Nothing was written.
	ErrConflict = errors.New("optimistic lock conflict")

	ErrNotFound = errors.New("document not found")
)

// DocumentStore is the source of truth for catalog and order documents.
// Single-document getters return nil, nil when the document does not exist.
type DocumentStore interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	AddProduct(ctx context.Context, product domain.Product) (string, error)
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	// UpdatePricing applies all updates in one batched write without
	// touching stock. Each precondition is checked against the stored
	// product under the write lock; missing products and updates whose
	// precondition no longer holds are skipped. It returns how many were
	// written.
	UpdatePricing(ctx context.Context, updates []domain.PricingUpdate) (int, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	SaveCategory(ctx context.Context, category domain.Category) (string, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	SaveBrand(ctx context.Context, brand domain.Brand) (string, error)

	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// RunTransaction runs fn once. Writes staged on tx are applied together
	// when fn returns nil, and discarded otherwise.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	Ping(ctx context.Context) error
}

// Transaction reads see the transaction's own staged writes.
type Transaction interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	UpdateProduct(product domain.Product) error
	// CreateOrder stages a new order and returns its assigned id.
	CreateOrder(order domain.Order) (string, error)
	UpdateOrder(order domain.Order) error
	DeleteOrder(id string) error
}
