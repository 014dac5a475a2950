package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

// CartKeyPrefix namespaces carts on the key-value medium. The cache
// namespace must not overlap it.
const CartKeyPrefix = "cart:"

// CartService persists shopping carts per session on the key-value medium,
// outside the cache namespace.
type CartService struct {
	kv port.KeyValueStore
	settings
}

func NewCartService(kv port.KeyValueStore, opts ...Option) *CartService {
	s := &CartService{kv: kv, settings: newSettings(opts)}
	s.log = s.log.WithField("component", "carts")
	return s
}

// Get returns the session's cart; a missing or unreadable cart is empty.
func (s *CartService) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	empty := domain.Cart{SessionID: sessionID, Items: []domain.CartItem{}}
	if sessionID == "" {
		return empty, errors.New("session id required")
	}

	raw, found, err := s.kv.Get(ctx, CartKeyPrefix+sessionID)
	if err != nil {
		return empty, fmt.Errorf("load cart: %w", err)
	}
	if !found {
		return empty, nil
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		s.log.WithField("session", sessionID).Warn("discarding unreadable cart")
		return empty, nil
	}
	cart.SessionID = sessionID
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

// Save replaces the session's cart. Lines for the same product and variant
// are merged.
func (s *CartService) Save(ctx context.Context, sessionID string, items []domain.CartItem) (domain.Cart, error) {
	if sessionID == "" {
		return domain.Cart{}, errors.New("session id required")
	}

	merged := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return domain.Cart{}, fmt.Errorf("%w: bad line %q x%d", ErrInvalidCart, item.ProductID, item.Quantity)
		}
		found := false
		for i := range merged {
			if merged[i].SameLine(item) {
				merged[i].Quantity += item.Quantity
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, item)
		}
	}

	cart := domain.Cart{SessionID: sessionID, Items: merged, UpdatedAt: s.now()}
	data, err := json.Marshal(cart)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("encode cart: %w", err)
	}
	if err := s.kv.Set(ctx, CartKeyPrefix+sessionID, string(data)); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	return s.kv.Remove(ctx, CartKeyPrefix+sessionID)
}
