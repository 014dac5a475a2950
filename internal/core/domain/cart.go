package domain

import "time"

// CartItem is one cart line. UnitPrice and SelectedVariant are snapshots
// taken when the item was added; stock in the snapshot is never trusted.
type CartItem struct {
	ProductID       string   `json:"productId" validate:"required"`
	Name            string   `json:"name,omitempty"`
	Quantity        int      `json:"quantity" validate:"gt=0"`
	UnitPrice       float64  `json:"unitPrice" validate:"gte=0"`
	SelectedVariant *Variant `json:"selectedVariant,omitempty"`
}

// SameLine reports whether a and b refer to the same product and variant.
func (a CartItem) SameLine(b CartItem) bool {
	if a.ProductID != b.ProductID {
		return false
	}
	if a.SelectedVariant == nil || b.SelectedVariant == nil {
		return a.SelectedVariant == nil && b.SelectedVariant == nil
	}
	return a.SelectedVariant.Matches(*b.SelectedVariant)
}

type Cart struct {
	SessionID string     `json:"sessionId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// StockIssue is an advisory finding for one cart line.
type StockIssue struct {
	Item           CartItem    `json:"item"`
	Reason         StockReason `json:"reason"`
	AvailableStock int         `json:"availableStock"`
}

// AdjustCart lowers each line with an issue to its available stock and
// drops lines that have none left.
func AdjustCart(items []CartItem, issues []StockIssue) []CartItem {
	out := make([]CartItem, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		for _, issue := range issues {
			if issue.Item.SameLine(item) {
				qty = min(qty, issue.AvailableStock)
			}
		}
		if qty <= 0 {
			continue
		}
		item.Quantity = qty
		out = append(out, item)
	}
	return out
}
