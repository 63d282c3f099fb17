// Package pricing derives every money figure of a cart: effective unit price,
// line totals, subtotal, order discount, tax and grand total. All amounts are
// integer cents; percentages are evaluated in decimal and rounded half away
// from zero exactly once per derived figure.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/discount"
	"retailpos/backend/internal/domain"
)

const (
	// PolicyFlat applies one flat rate to the discounted subtotal.
	PolicyFlat = "flat8"
	// PolicyPerItemInclusive taxes only tax-inclusive lines at their tax group rate.
	PolicyPerItemInclusive = "perItemInclusive"

	DefaultFlatRatePercent = 8.0
)

var hundred = decimal.NewFromInt(100)

// TaxRates resolves a tax group to its rate in percent for the configured country.
type TaxRates interface {
	RateFor(taxGroupID string) (float64, bool)
}

// StaticTaxRates is a fixed group id to percent table.
type StaticTaxRates map[string]float64

func (r StaticTaxRates) RateFor(taxGroupID string) (float64, bool) {
	rate, ok := r[taxGroupID]
	return rate, ok
}

type Engine struct {
	policy   string
	flatRate decimal.Decimal
	rates    TaxRates
}

func NewEngine(policy string, flatRatePercent float64, rates TaxRates) (*Engine, error) {
	switch policy {
	case "":
		policy = PolicyFlat
	case PolicyFlat, PolicyPerItemInclusive:
	default:
		return nil, fmt.Errorf("unknown tax policy %q", policy)
	}
	if flatRatePercent < 0 || flatRatePercent > 100 {
		return nil, fmt.Errorf("flat tax rate %.2f out of range", flatRatePercent)
	}
	if rates == nil {
		rates = StaticTaxRates{}
	}
	return &Engine{
		policy:   policy,
		flatRate: decimal.NewFromFloat(flatRatePercent),
		rates:    rates,
	}, nil
}

func (e *Engine) Policy() string {
	return e.policy
}

// WithRates returns a copy of the engine reading tax rates from rates.
func (e *Engine) WithRates(rates TaxRates) *Engine {
	clone := *e
	if rates != nil {
		clone.rates = rates
	}
	return &clone
}

// UnitPrice is the catalog price of a line: product price plus variant modifier.
func UnitPrice(line domain.CartLine) int64 {
	price := line.Product.PriceCents
	if line.Variant != nil {
		price += line.Variant.PriceModifierCents
	}
	return price
}

// EffectiveUnitPrice applies the line's own discount to UnitPrice. Never negative.
func EffectiveUnitPrice(line domain.CartLine) int64 {
	price := UnitPrice(line)
	if d := line.ItemDiscount; d != nil {
		switch d.Type {
		case domain.DiscountTypePercentage:
			factor := hundred.Sub(decimal.NewFromFloat(d.Percent))
			price = decimal.NewFromInt(price).Mul(factor).Div(hundred).Round(0).IntPart()
		case domain.DiscountTypeFixed:
			price -= d.AmountCents
		}
	}
	if price < 0 {
		return 0
	}
	return price
}

func LineTotal(line domain.CartLine) int64 {
	return EffectiveUnitPrice(line) * int64(line.Quantity)
}

func Subtotal(lines []domain.CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += LineTotal(line)
	}
	return total
}

// OrderDiscountAmount is the order-level discount on the cart subtotal; 0 without a discount.
func OrderDiscountAmount(lines []domain.CartLine, d *domain.Discount) int64 {
	if d == nil {
		return 0
	}
	return discount.Amount(*d, Subtotal(lines))
}

// Tax computes the tax due for the cart under the engine's policy.
func (e *Engine) Tax(lines []domain.CartLine, discountedSubtotal int64) int64 {
	if e.policy == PolicyPerItemInclusive {
		sum := decimal.Zero
		for _, line := range lines {
			sum = sum.Add(e.lineTax(line))
		}
		return sum.Round(0).IntPart()
	}
	return decimal.NewFromInt(discountedSubtotal).Mul(e.flatRate).Div(hundred).Round(0).IntPart()
}

func (e *Engine) lineTax(line domain.CartLine) decimal.Decimal {
	if !line.Product.TaxInclusive || line.Product.TaxGroupID == "" {
		return decimal.Zero
	}
	rate, ok := e.rates.RateFor(line.Product.TaxGroupID)
	if !ok || rate <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(LineTotal(line)).Mul(decimal.NewFromFloat(rate)).Div(hundred)
}

// Quote prices the whole cart. d may be nil.
func (e *Engine) Quote(lines []domain.CartLine, d *domain.Discount) domain.Totals {
	subtotal := Subtotal(lines)
	discountCents := OrderDiscountAmount(lines, d)
	discounted := subtotal - discountCents
	tax := e.Tax(lines, discounted)

	totals := domain.Totals{
		SubtotalCents:      subtotal,
		DiscountCents:      discountCents,
		DiscountedSubtotal: discounted,
		TaxCents:           tax,
		TotalCents:         discounted + tax,
		TaxPolicy:          e.policy,
		Lines:              e.Freeze(lines),
	}
	if d != nil {
		totals.DiscountCode = d.Code
		totals.DiscountID = d.ID
	}
	for _, line := range lines {
		totals.ItemCount += line.Quantity
	}
	return totals
}

// Freeze snapshots the cart into independent LineItem values.
func (e *Engine) Freeze(lines []domain.CartLine) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(lines))
	for _, line := range lines {
		item := domain.LineItem{
			ProductID:               line.Product.ID,
			ProductName:             line.Product.Name,
			SKU:                     line.Product.SKU,
			Quantity:                line.Quantity,
			UnitPriceCents:          UnitPrice(line),
			EffectiveUnitPriceCents: EffectiveUnitPrice(line),
			LineTotalCents:          LineTotal(line),
			TaxGroupID:              line.Product.TaxGroupID,
			TaxInclusive:            line.Product.TaxInclusive,
		}
		if line.Variant != nil {
			item.VariantID = line.Variant.ID
			item.VariantName = line.Variant.Name
		}
		if line.ItemDiscount != nil {
			d := *line.ItemDiscount
			item.ItemDiscount = &d
		}
		if e.policy == PolicyPerItemInclusive {
			item.TaxCents = e.lineTax(line).Round(0).IntPart()
		}
		items = append(items, item)
	}
	return items
}
