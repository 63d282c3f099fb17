// Package cart holds a working cart and guards what may enter it: every
// addition or quantity change is checked against freshly read stock.
package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not available for sale")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrVariantOutOfStock = errors.New("selected variant is out of stock")
	ErrExceedsStock      = errors.New("not enough stock available")
	ErrInvalidDiscount   = errors.New("invalid item discount")
)

type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Cart struct {
	reader ProductReader
	lines  []domain.CartLine
}

func New(reader ProductReader) *Cart {
	return &Cart{reader: reader}
}

// Add puts one more unit of the product (or variant) in the cart.
func (c *Cart) Add(ctx context.Context, productID string, variantID string) error {
	return c.AddQuantity(ctx, productID, variantID, 1)
}

// AddQuantity adds qty units, merging with an existing line for the same product and variant.
func (c *Cart) AddQuantity(ctx context.Context, productID string, variantID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
	}
	product, variant, err := c.load(ctx, productID, variantID)
	if err != nil {
		return err
	}
	if product.Stock <= 0 {
		return ErrOutOfStock
	}
	if variant != nil && variant.Stock <= 0 {
		return ErrVariantOutOfStock
	}

	idx := c.index(productID, variantID)
	newQty := qty
	if idx >= 0 {
		newQty += c.lines[idx].Quantity
	}
	if err := c.checkQuantity(product, variant, newQty); err != nil {
		return err
	}

	if idx >= 0 {
		c.lines[idx].Product = product
		c.lines[idx].Variant = variant
		c.lines[idx].Quantity = newQty
		return nil
	}
	c.lines = append(c.lines, domain.CartLine{Product: product, Variant: variant, Quantity: newQty})
	return nil
}

// UpdateQuantity sets a line's quantity. qty <= 0 removes the line; a line
// that is not in the cart is left alone.
func (c *Cart) UpdateQuantity(ctx context.Context, productID string, variantID string, qty int) error {
	idx := c.index(productID, variantID)
	if idx < 0 {
		return nil
	}
	if qty <= 0 {
		c.Remove(productID, variantID)
		return nil
	}
	product, variant, err := c.load(ctx, productID, variantID)
	if err != nil {
		return err
	}
	if err := c.checkQuantity(product, variant, qty); err != nil {
		return err
	}
	c.lines[idx].Product = product
	c.lines[idx].Variant = variant
	c.lines[idx].Quantity = qty
	return nil
}

func (c *Cart) Remove(productID string, variantID string) {
	c.lines = slices.DeleteFunc(c.lines, func(l domain.CartLine) bool {
		return l.Product.ID == productID && l.VariantID() == variantID
	})
}

// SetItemDiscount replaces the line's discount; nil clears it.
func (c *Cart) SetItemDiscount(productID string, variantID string, d *domain.ItemDiscount) error {
	idx := c.index(productID, variantID)
	if idx < 0 {
		return nil
	}
	if d == nil {
		c.lines[idx].ItemDiscount = nil
		return nil
	}
	if err := ValidateItemDiscount(*d); err != nil {
		return err
	}
	copied := *d
	c.lines[idx].ItemDiscount = &copied
	return nil
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines returns a deep copy of the cart contents.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, cloneLine(l))
	}
	return out
}

func (c *Cart) index(productID string, variantID string) int {
	return slices.IndexFunc(c.lines, func(l domain.CartLine) bool {
		return l.Product.ID == productID && l.VariantID() == variantID
	})
}

func (c *Cart) load(ctx context.Context, productID string, variantID string) (domain.Product, *domain.ProductVariant, error) {
	product, err := c.reader.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, nil, ErrProductNotFound
		}
		return domain.Product{}, nil, err
	}
	if !product.Active {
		return domain.Product{}, nil, ErrProductInactive
	}
	if variantID == "" {
		return *product, nil, nil
	}
	variant, ok := product.Variant(variantID)
	if !ok {
		return domain.Product{}, nil, ErrVariantNotFound
	}
	return *product, &variant, nil
}

// checkQuantity compares qty with the governing stock figure, and the
// product's total across all of its lines with the product stock.
func (c *Cart) checkQuantity(product domain.Product, variant *domain.ProductVariant, qty int) error {
	if variant != nil && qty > variant.Stock {
		return ErrExceedsStock
	}
	total := qty
	for _, l := range c.lines {
		if l.Product.ID != product.ID {
			continue
		}
		if variant == nil && l.Variant == nil {
			continue
		}
		if variant != nil && l.VariantID() == variant.ID {
			continue
		}
		total += l.Quantity
	}
	if total > product.Stock {
		return ErrExceedsStock
	}
	return nil
}

func ValidateItemDiscount(d domain.ItemDiscount) error {
	switch d.Type {
	case domain.DiscountTypePercentage:
		if d.Percent < 0 || d.Percent > 100 {
			return ErrInvalidDiscount
		}
	case domain.DiscountTypeFixed:
		if d.AmountCents < 0 {
			return ErrInvalidDiscount
		}
	default:
		return ErrInvalidDiscount
	}
	return nil
}

// Build admits a client-supplied cart line by line.
func Build(ctx context.Context, reader ProductReader, requests []domain.CartLineRequest) ([]domain.CartLine, error) {
	c := New(reader)
	for _, req := range requests {
		productID := strings.TrimSpace(req.ProductID)
		variantID := strings.TrimSpace(req.VariantID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id required", store.ErrInvalidTransaction)
		}
		if err := c.AddQuantity(ctx, productID, variantID, req.Quantity); err != nil {
			return nil, fmt.Errorf("%s: %w", productID, err)
		}
		if req.ItemDiscount != nil {
			if err := c.SetItemDiscount(productID, variantID, req.ItemDiscount); err != nil {
				return nil, fmt.Errorf("%s: %w", productID, err)
			}
		}
	}
	return c.Lines(), nil
}

// Requests converts admitted lines back to their request form.
func Requests(lines []domain.CartLine) []domain.CartLineRequest {
	out := make([]domain.CartLineRequest, 0, len(lines))
	for _, l := range lines {
		req := domain.CartLineRequest{ProductID: l.Product.ID, VariantID: l.VariantID(), Quantity: l.Quantity}
		if l.ItemDiscount != nil {
			d := *l.ItemDiscount
			req.ItemDiscount = &d
		}
		out = append(out, req)
	}
	return out
}

func cloneLine(l domain.CartLine) domain.CartLine {
	out := l
	out.Product.Variants = slices.Clone(l.Product.Variants)
	if l.Variant != nil {
		v := *l.Variant
		out.Variant = &v
	}
	if l.ItemDiscount != nil {
		d := *l.ItemDiscount
		out.ItemDiscount = &d
	}
	return out
}
