package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
)

func product(id string, price int64) domain.Product {
	return domain.Product{ID: id, Name: id, SKU: "SKU-" + id, PriceCents: price, Stock: 100, Active: true}
}

func newEngine(t *testing.T, policy string, rates TaxRates) *Engine {
	t.Helper()
	e, err := NewEngine(policy, DefaultFlatRatePercent, rates)
	require.NoError(t, err)
	return e
}

func TestQuoteFlatTax(t *testing.T) {
	e := newEngine(t, PolicyFlat, nil)
	lines := []domain.CartLine{{Product: product("p1", 1_000), Quantity: 2}}

	totals := e.Quote(lines, nil)
	assert.Equal(t, int64(2_000), totals.SubtotalCents)
	assert.Equal(t, int64(0), totals.DiscountCents)
	assert.Equal(t, int64(160), totals.TaxCents)
	assert.Equal(t, int64(2_160), totals.TotalCents)
	assert.Equal(t, 2, totals.ItemCount)
	assert.Equal(t, PolicyFlat, totals.TaxPolicy)
}

func TestItemPercentageDiscount(t *testing.T) {
	line := domain.CartLine{
		Product:      product("p1", 1_000),
		Quantity:     2,
		ItemDiscount: &domain.ItemDiscount{Type: domain.DiscountTypePercentage, Percent: 50},
	}
	assert.Equal(t, int64(500), EffectiveUnitPrice(line))
	assert.Equal(t, int64(1_000), LineTotal(line))
}

func TestVariantModifierAppliesBeforeItemDiscount(t *testing.T) {
	p := product("shirt", 2_000)
	p.Variants = []domain.ProductVariant{{ID: "xl", Name: "XL", PriceModifierCents: 500, Stock: 3}}
	v := p.Variants[0]

	line := domain.CartLine{
		Product:      p,
		Variant:      &v,
		Quantity:     1,
		ItemDiscount: &domain.ItemDiscount{Type: domain.DiscountTypeFixed, AmountCents: 300},
	}
	assert.Equal(t, int64(2_500), UnitPrice(line))
	assert.Equal(t, int64(2_200), EffectiveUnitPrice(line))

	v.PriceModifierCents = -2_500
	line.Variant = &v
	assert.Equal(t, int64(0), EffectiveUnitPrice(line))
}

func TestEffectiveUnitPriceNeverNegative(t *testing.T) {
	discounts := []*domain.ItemDiscount{
		nil,
		{Type: domain.DiscountTypePercentage, Percent: 0},
		{Type: domain.DiscountTypePercentage, Percent: 100},
		{Type: domain.DiscountTypePercentage, Percent: 150},
		{Type: domain.DiscountTypeFixed, AmountCents: 1},
		{Type: domain.DiscountTypeFixed, AmountCents: 1_000_000},
	}
	for _, price := range []int64{0, 1, 99, 1_000, 123_456} {
		for _, d := range discounts {
			line := domain.CartLine{Product: product("p", price), Quantity: 3, ItemDiscount: d}
			require.GreaterOrEqual(t, EffectiveUnitPrice(line), int64(0))
			require.GreaterOrEqual(t, LineTotal(line), int64(0))
		}
	}
}

func TestSubtotalIsSumOfLineTotals(t *testing.T) {
	lines := []domain.CartLine{
		{Product: product("a", 333), Quantity: 3},
		{Product: product("b", 1_999), Quantity: 1, ItemDiscount: &domain.ItemDiscount{Type: domain.DiscountTypePercentage, Percent: 15}},
		{Product: product("c", 50), Quantity: 7, ItemDiscount: &domain.ItemDiscount{Type: domain.DiscountTypeFixed, AmountCents: 10}},
	}
	var sum int64
	for _, l := range lines {
		sum += LineTotal(l)
	}
	assert.Equal(t, sum, Subtotal(lines))
}

func TestOrderDiscountCapped(t *testing.T) {
	e := newEngine(t, PolicyFlat, nil)
	lines := []domain.CartLine{{Product: product("p1", 5_000), Quantity: 1}}
	d := &domain.Discount{Code: "TWENTY", Type: domain.DiscountTypePercentage, Percent: 20, MaxDiscountCents: 300}

	totals := e.Quote(lines, d)
	assert.Equal(t, int64(300), totals.DiscountCents)
	assert.Equal(t, int64(4_700), totals.DiscountedSubtotal)
	assert.Equal(t, int64(376), totals.TaxCents)
	assert.Equal(t, int64(5_076), totals.TotalCents)
	assert.Equal(t, "TWENTY", totals.DiscountCode)
}

func TestPerItemInclusiveTax(t *testing.T) {
	rates := StaticTaxRates{"standard": 10, "reduced": 5}
	e := newEngine(t, PolicyPerItemInclusive, rates)

	taxed := product("t", 1_000)
	taxed.TaxInclusive = true
	taxed.TaxGroupID = "standard"
	reduced := product("r", 333)
	reduced.TaxInclusive = true
	reduced.TaxGroupID = "reduced"
	untaxed := product("u", 5_000)

	lines := []domain.CartLine{
		{Product: taxed, Quantity: 2},
		{Product: reduced, Quantity: 1},
		{Product: untaxed, Quantity: 1},
	}
	totals := e.Quote(lines, nil)
	// 2000*10% + 333*5% = 200 + 16.65, rounded once.
	assert.Equal(t, int64(217), totals.TaxCents)
	assert.Equal(t, totals.DiscountedSubtotal+217, totals.TotalCents)
	assert.Equal(t, int64(200), totals.Lines[0].TaxCents)
	assert.Equal(t, int64(0), totals.Lines[2].TaxCents)
}

func TestFreezeCopiesItemDiscount(t *testing.T) {
	e := newEngine(t, PolicyFlat, nil)
	d := &domain.ItemDiscount{Type: domain.DiscountTypeFixed, AmountCents: 100}
	lines := []domain.CartLine{{Product: product("p1", 1_000), Quantity: 1, ItemDiscount: d}}

	items := e.Freeze(lines)
	d.AmountCents = 900
	require.Equal(t, int64(100), items[0].ItemDiscount.AmountCents)
	require.Equal(t, int64(900), items[0].LineTotalCents)
}

func TestNewEngineRejectsUnknownPolicy(t *testing.T) {
	_, err := NewEngine("vat-magic", 8, nil)
	require.Error(t, err)
	_, err = NewEngine(PolicyFlat, 120, nil)
	require.Error(t, err)
}
