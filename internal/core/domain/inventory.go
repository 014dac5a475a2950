package domain

// StockReason explains why a cart line cannot be fulfilled.
type StockReason string

const (
	ReasonInsufficientStock  StockReason = "insufficient-stock"
	ReasonVariantUnavailable StockReason = "variant-unavailable"
	ReasonProductNotFound    StockReason = "product-not-found"
)

// Variant is a (size, color) inventory unit of a product.
type Variant struct {
	Size  string  `json:"size"`
	Color string  `json:"color"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// Matches reports whether v and other name the same (size, color) pair.
func (v Variant) Matches(other Variant) bool {
	return v.Size == other.Size && v.Color == other.Color
}

// Inventory is either SimpleStock or VariantStock.
type Inventory interface {
	inventory()
}

type SimpleStock struct {
	Stock int
}

type VariantStock struct {
	Variants []Variant
}

func (SimpleStock) inventory()  {}
func (VariantStock) inventory() {}

func (v VariantStock) index(sel *Variant) int {
	if sel == nil {
		return -1
	}
	for i := range v.Variants {
		if v.Variants[i].Matches(*sel) {
			return i
		}
	}
	return -1
}

// Find returns the variant matching sel.
func (v VariantStock) Find(sel *Variant) (Variant, bool) {
	i := v.index(sel)
	if i < 0 {
		return Variant{}, false
	}
	return v.Variants[i], true
}

// StockFor returns the stock backing a cart line with selection sel.
// ok is false when the product has variants and none matches sel.
func (p Product) StockFor(sel *Variant) (stock int, ok bool) {
	switch inv := p.Inventory.(type) {
	case VariantStock:
		v, found := inv.Find(sel)
		if !found {
			return 0, false
		}
		return v.Stock, true
	case SimpleStock:
		return inv.Stock, true
	default:
		return 0, true
	}
}

// AdjustStock returns a copy of p with the stock backing sel shifted by
// delta, floored at zero. For variant products only the matching variant
// changes; ok is false when no variant matches.
func (p Product) AdjustStock(sel *Variant, delta int) (Product, bool) {
	switch inv := p.Inventory.(type) {
	case VariantStock:
		i := inv.index(sel)
		if i < 0 {
			return p, false
		}
		variants := make([]Variant, len(inv.Variants))
		copy(variants, inv.Variants)
		variants[i].Stock = max(0, variants[i].Stock+delta)
		p.Inventory = VariantStock{Variants: variants}
	case SimpleStock:
		p.Inventory = SimpleStock{Stock: max(0, inv.Stock+delta)}
	default:
		p.Inventory = SimpleStock{Stock: max(0, delta)}
	}
	return p, true
}

// UnitPrice is the live price of one unit for selection sel.
func (p Product) UnitPrice(sel *Variant) float64 {
	if inv, ok := p.Inventory.(VariantStock); ok {
		if v, found := inv.Find(sel); found {
			return v.Price
		}
	}
	return p.Price
}

// HasVariants reports whether stock is tracked per variant.
func (p Product) HasVariants() bool {
	_, ok := p.Inventory.(VariantStock)
	return ok
}

// ResolveLine resolves the stock available to item against p, which may be
// nil when the product document does not exist. reason is empty when the
// line can be fulfilled.
func ResolveLine(p *Product, item CartItem) (available int, reason StockReason) {
	if p == nil {
		return 0, ReasonProductNotFound
	}
	available, ok := p.StockFor(item.SelectedVariant)
	if !ok {
		return 0, ReasonVariantUnavailable
	}
	if available < item.Quantity {
		return available, ReasonInsufficientStock
	}
	return available, ""
}

// KeepStock returns p with the stock quantities of stored, so an edit built
// from an older copy of the product cannot undo reservations made since.
// Variants are matched by (size, color); variants new to p keep their own
// stock, and a change of inventory kind keeps p's inventory as given.
func (p Product) KeepStock(stored Product) Product {
	switch inv := p.Inventory.(type) {
	case SimpleStock:
		if cur, ok := stored.Inventory.(SimpleStock); ok {
			p.Inventory = cur
		}
	case VariantStock:
		cur, ok := stored.Inventory.(VariantStock)
		if !ok {
			return p
		}
		variants := make([]Variant, len(inv.Variants))
		copy(variants, inv.Variants)
		for i := range variants {
			if v, found := cur.Find(&variants[i]); found {
				variants[i].Stock = v.Stock
			}
		}
		p.Inventory = VariantStock{Variants: variants}
	}
	return p
}

// SetStock returns a copy of p with the stock backing sel set to stock.
// ok is false when p has variants and none matches sel.
func (p Product) SetStock(sel *Variant, stock int) (Product, bool) {
	current, ok := p.StockFor(sel)
	if !ok {
		return p, false
	}
	return p.AdjustStock(sel, stock-current)
}
