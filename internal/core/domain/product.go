package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidProduct = errors.New("invalid product")

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Discount is present on a product only as a whole; OriginalPrice is the
// price restored when the discount is removed or expires.
type Discount struct {
	OriginalPrice float64
	Value         float64
	Type          DiscountType
	ExpiresAt     *time.Time // nil never expires
}

type Product struct {
	ID          string
	Name        string
	NameAr      string
	Description string
	CategoryID  string
	BrandID     string
	Images      []string
	Price       float64
	Inventory   Inventory
	Discount    *Discount
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PricingUpdate replaces the price and discount state of one product and
// leaves its stock untouched. When ExpiredBy is set the update only applies
// if the stored discount has expired by that instant.
type PricingUpdate struct {
	ProductID string
	Price     float64
	Discount  *Discount
	ExpiredBy time.Time
}

// Applies reports whether u may be written over the stored product p.
func (u PricingUpdate) Applies(p Product) bool {
	return u.ExpiredBy.IsZero() || p.DiscountExpired(u.ExpiredBy)
}

// DiscountExpired reports whether p carries a discount whose expiry is before now.
func (p Product) DiscountExpired(now time.Time) bool {
	return p.Discount != nil && p.Discount.ExpiresAt != nil && p.Discount.ExpiresAt.Before(now)
}

// WithDiscount prices p from its undiscounted price.
func (p Product) WithDiscount(value float64, typ DiscountType, expiresAt *time.Time) (Product, error) {
	base := p.Price
	if p.Discount != nil {
		base = p.Discount.OriginalPrice
	}

	var price float64
	switch typ {
	case DiscountPercentage:
		if value <= 0 || value > 100 {
			return p, fmt.Errorf("%w: percentage discount must be in (0, 100]", ErrInvalidProduct)
		}
		price = base * (1 - value/100)
	case DiscountFixed:
		if value <= 0 {
			return p, fmt.Errorf("%w: fixed discount must be positive", ErrInvalidProduct)
		}
		price = base - value
	default:
		return p, fmt.Errorf("%w: unknown discount type %q", ErrInvalidProduct, typ)
	}

	p.Price = math.Max(0, math.Round(price*100)/100)
	p.Discount = &Discount{
		OriginalPrice: base,
		Value:         value,
		Type:          typ,
		ExpiresAt:     expiresAt,
	}
	return p, nil
}

// WithoutDiscount restores the original price and clears all discount fields.
func (p Product) WithoutDiscount() Product {
	if p.Discount == nil {
		return p
	}
	p.Price = p.Discount.OriginalPrice
	p.Discount = nil
	return p
}

func (p Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidProduct)
	}

	switch inv := p.Inventory.(type) {
	case VariantStock:
		if len(inv.Variants) == 0 {
			return fmt.Errorf("%w: variant product needs at least one variant", ErrInvalidProduct)
		}
		seen := make(map[[2]string]struct{}, len(inv.Variants))
		for _, v := range inv.Variants {
			k := [2]string{v.Size, v.Color}
			if _, dup := seen[k]; dup {
				return fmt.Errorf("%w: duplicate variant %s/%s", ErrInvalidProduct, v.Size, v.Color)
			}
			seen[k] = struct{}{}
			if v.Stock < 0 || v.Price < 0 {
				return fmt.Errorf("%w: variant %s/%s has negative stock or price", ErrInvalidProduct, v.Size, v.Color)
			}
		}
	case SimpleStock:
		if inv.Stock < 0 {
			return fmt.Errorf("%w: stock must be >= 0", ErrInvalidProduct)
		}
	}

	if d := p.Discount; d != nil {
		if d.Type != DiscountPercentage && d.Type != DiscountFixed {
			return fmt.Errorf("%w: unknown discount type %q", ErrInvalidProduct, d.Type)
		}
		if d.OriginalPrice < 0 {
			return fmt.Errorf("%w: original price must be >= 0", ErrInvalidProduct)
		}
	}
	return nil
}

// productDocument is the stored shape of a product.
type productDocument struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	NameAr            string        `json:"nameAr,omitempty"`
	Description       string        `json:"description,omitempty"`
	CategoryID        string        `json:"categoryId,omitempty"`
	BrandID           string        `json:"brandId,omitempty"`
	Images            []string      `json:"images,omitempty"`
	Price             float64       `json:"price"`
	HasVariants       bool          `json:"hasVariants"`
	Stock             *int          `json:"stock,omitempty"`
	Variants          []Variant     `json:"variants,omitempty"`
	HasDiscount       bool          `json:"hasDiscount"`
	OriginalPrice     *float64      `json:"originalPrice"`
	DiscountValue     *float64      `json:"discountValue"`
	DiscountType      *DiscountType `json:"discountType"`
	DiscountExpiresAt *time.Time    `json:"discountExpiresAt"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	doc := productDocument{
		ID:          p.ID,
		Name:        p.Name,
		NameAr:      p.NameAr,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		BrandID:     p.BrandID,
		Images:      p.Images,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	switch inv := p.Inventory.(type) {
	case VariantStock:
		doc.HasVariants = true
		doc.Variants = inv.Variants
	case SimpleStock:
		stock := inv.Stock
		doc.Stock = &stock
	default:
		zero := 0
		doc.Stock = &zero
	}

	if d := p.Discount; d != nil {
		doc.HasDiscount = true
		doc.OriginalPrice = &d.OriginalPrice
		doc.DiscountValue = &d.Value
		doc.DiscountType = &d.Type
		doc.DiscountExpiresAt = d.ExpiresAt
	}

	return json.Marshal(doc)
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var doc productDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*p = Product{
		ID:          doc.ID,
		Name:        doc.Name,
		NameAr:      doc.NameAr,
		Description: doc.Description,
		CategoryID:  doc.CategoryID,
		BrandID:     doc.BrandID,
		Images:      doc.Images,
		Price:       doc.Price,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}

	if doc.HasVariants {
		p.Inventory = VariantStock{Variants: doc.Variants}
	} else {
		stock := 0
		if doc.Stock != nil {
			stock = *doc.Stock
		}
		p.Inventory = SimpleStock{Stock: stock}
	}

	// A discount without its original price cannot be reverted, so it is
	// not treated as a discount at all.
	if doc.HasDiscount && doc.OriginalPrice != nil {
		d := &Discount{
			OriginalPrice: *doc.OriginalPrice,
			ExpiresAt:     doc.DiscountExpiresAt,
		}
		if doc.DiscountValue != nil {
			d.Value = *doc.DiscountValue
		}
		if doc.DiscountType != nil {
			d.Type = *doc.DiscountType
		}
		p.Discount = d
	}
	return nil
}
