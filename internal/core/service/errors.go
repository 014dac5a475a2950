package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/beauty-shop/internal/core/domain"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrVariantUnavailable = errors.New("variant unavailable")
	ErrVariantRequired    = errors.New("variant selection required")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidCart        = errors.New("invalid cart")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrTransientConflict  = errors.New("transaction conflict")
	ErrInvalidInput       = errors.New("invalid input")
)

// StockError identifies the cart line that failed an authoritative check.
// It unwraps to ErrProductNotFound, ErrVariantRequired,
// ErrVariantUnavailable or ErrInsufficientStock.
type StockError struct {
	Err         error
	ProductID   string
	ProductName string
	Size        string
	Color       string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	if e.Size != "" || e.Color != "" {
		name = fmt.Sprintf("%s (%s/%s)", name, e.Size, e.Color)
	}
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("%s: %v: requested %d, available %d", name, e.Err, e.Requested, e.Available)
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

func newStockError(err error, p *domain.Product, item domain.CartItem, available int) *StockError {
	se := &StockError{
		Err:         err,
		ProductID:   item.ProductID,
		ProductName: item.Name,
		Requested:   item.Quantity,
		Available:   available,
	}
	if p != nil {
		se.ProductName = p.Name
	}
	if v := item.SelectedVariant; v != nil {
		se.Size, se.Color = v.Size, v.Color
	}
	return se
}
