package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/core/cache"
	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

// OrderService owns checkout and every path that moves stock: the
// advisory check, the checkout transaction and stock restoration.
type OrderService struct {
	store port.DocumentStore
	cache *cache.Cache
	carts *CartService
	settings
}

func NewOrderService(store port.DocumentStore, c *cache.Cache, carts *CartService, opts ...Option) *OrderService {
	s := &OrderService{
		store:    store,
		cache:    c,
		carts:    carts,
		settings: newSettings(opts),
	}
	s.log = s.log.WithField("component", "orders")
	return s
}

// CheckStockAvailability compares items against live stock. It reserves
// nothing and can be overtaken by a concurrent checkout.
func (s *OrderService) CheckStockAvailability(ctx context.Context, items []domain.CartItem) ([]domain.StockIssue, error) {
	issues := []domain.StockIssue{}
	for _, item := range items {
		p, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("read product %s: %w", item.ProductID, err)
		}

		available, reason := domain.ResolveLine(p, item)
		if reason != "" {
			issues = append(issues, domain.StockIssue{
				Item:           item,
				Reason:         reason,
				AvailableStock: available,
			})
		}
	}
	return issues, nil
}

// SubmitOrder decrements stock for every line and creates the order in one
// transaction. Either all of it happens or none of it does.
func (s *OrderService) SubmitOrder(ctx context.Context, items []domain.CartItem, customer domain.Customer) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no items", ErrInvalidCart)
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return "", fmt.Errorf("%w: bad line %q x%d", ErrInvalidCart, item.ProductID, item.Quantity)
		}
	}

	var orderID string
	err := runTransaction(ctx, s.store, s.retry, s.log, func(ctx context.Context, tx port.Transaction) error {
		orderID = ""
		now := s.now()

		lines := make([]domain.CartItem, 0, len(items))
		var total float64
		for _, item := range items {
			p, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("read product %s: %w", item.ProductID, err)
			}
			if p == nil {
				return newStockError(ErrProductNotFound, nil, item, 0)
			}
			if p.HasVariants() && item.SelectedVariant == nil {
				return newStockError(ErrVariantRequired, p, item, 0)
			}

			available, reason := domain.ResolveLine(p, item)
			switch reason {
			case domain.ReasonVariantUnavailable:
				return newStockError(ErrVariantUnavailable, p, item, 0)
			case domain.ReasonInsufficientStock:
				return newStockError(ErrInsufficientStock, p, item, available)
			}

			updated, _ := p.AdjustStock(item.SelectedVariant, -item.Quantity)
			updated.UpdatedAt = now
			if err := tx.UpdateProduct(updated); err != nil {
				return err
			}

			line := orderLine(*p, item)
			total += line.UnitPrice * float64(line.Quantity)
			lines = append(lines, line)
		}

		id, err := tx.CreateOrder(domain.Order{
			Customer:  customer,
			Items:     lines,
			Total:     math.Round(total*100) / 100,
			Status:    domain.OrderStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("lines", len(items)).Warn("order submission failed")
		return "", err
	}

	invalidate(ctx, s.cache, CacheKeyOrders, CacheKeyProducts)
	s.log.WithFields(logrus.Fields{"order_id": orderID, "lines": len(items)}).Info("order submitted")
	return orderID, nil
}

// orderLine snapshots item with the name and unit price read from the live
// product; the price captured in the cart is not trusted.
func orderLine(p domain.Product, item domain.CartItem) domain.CartItem {
	line := item
	line.Name = p.Name
	line.UnitPrice = p.UnitPrice(item.SelectedVariant)
	if inv, ok := p.Inventory.(domain.VariantStock); ok {
		if v, found := inv.Find(item.SelectedVariant); found {
			line.SelectedVariant = &v
		}
	}
	return line
}

// Checkout submits the session's cart and clears it once the order exists.
func (s *OrderService) Checkout(ctx context.Context, sessionID string, customer domain.Customer) (string, error) {
	if s.carts == nil {
		return "", errors.New("checkout: no cart storage configured")
	}

	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	orderID, err := s.SubmitOrder(ctx, cart.Items, customer)
	if err != nil {
		return "", err
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("cart not cleared after checkout")
	}
	return orderID, nil
}

// RestoreStock credits items back to their products in one transaction.
// Lines whose product or variant no longer exists are skipped.
func (s *OrderService) RestoreStock(ctx context.Context, items []domain.CartItem) error {
	err := runTransaction(ctx, s.store, s.retry, s.log, func(ctx context.Context, tx port.Transaction) error {
		return s.restoreInTx(ctx, tx, items)
	})
	if err != nil {
		return err
	}
	invalidate(ctx, s.cache, CacheKeyProducts)
	return nil
}

func (s *OrderService) restoreInTx(ctx context.Context, tx port.Transaction, items []domain.CartItem) error {
	now := s.now()
	for _, item := range items {
		p, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("read product %s: %w", item.ProductID, err)
		}
		if p == nil {
			s.log.WithField("product_id", item.ProductID).Debug("skipping restore for deleted product")
			continue
		}

		updated, ok := p.AdjustStock(item.SelectedVariant, item.Quantity)
		if !ok {
			s.log.WithField("product_id", item.ProductID).Debug("skipping restore for removed variant")
			continue
		}
		updated.UpdatedAt = now
		if err := tx.UpdateProduct(updated); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrderStatus changes an order's status. Moving an order into
// rejected restores its stock unless that already happened; leaving
// rejected does not take the stock again.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var (
		result   domain.Order
		restored bool
	)
	err := runTransaction(ctx, s.store, s.retry, s.log, func(ctx context.Context, tx port.Transaction) error {
		restored = false
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("read order %s: %w", orderID, err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		if status == domain.OrderStatusRejected && order.Status != domain.OrderStatusRejected && !order.StockRestored {
			if err := s.restoreInTx(ctx, tx, order.Items); err != nil {
				return err
			}
			order.StockRestored = true
			restored = true
		}

		order.Status = status
		order.UpdatedAt = s.now()
		if err := tx.UpdateOrder(*order); err != nil {
			return err
		}
		result = *order
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, CacheKeyOrders)
	if restored {
		invalidate(ctx, s.cache, CacheKeyProducts)
	}
	s.log.WithFields(logrus.Fields{
		"order_id":       orderID,
		"status":         status,
		"stock_restored": restored,
	}).Info("order status updated")
	return &result, nil
}

// DeleteOrder removes an order and restores its stock if the order has not
// already given it back.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	var restored bool
	err := runTransaction(ctx, s.store, s.retry, s.log, func(ctx context.Context, tx port.Transaction) error {
		restored = false
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("read order %s: %w", orderID, err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		if !order.StockRestored {
			if err := s.restoreInTx(ctx, tx, order.Items); err != nil {
				return err
			}
			restored = true
		}
		return tx.DeleteOrder(orderID)
	})
	if err != nil {
		return err
	}

	invalidate(ctx, s.cache, CacheKeyOrders)
	if restored {
		invalidate(ctx, s.cache, CacheKeyProducts)
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "stock_restored": restored}).Info("order deleted")
	return nil
}

// ListOrders returns orders newest first.
func (s *OrderService) ListOrders(ctx context.Context, force bool) ([]domain.Order, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyOrders, s.ttl.Orders, force, func(ctx context.Context) ([]domain.Order, error) {
		orders, err := s.store.ListOrders(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(orders, func(i, j int) bool {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		})
		return orders, nil
	})
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
