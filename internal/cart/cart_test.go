package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type catalog map[string]domain.Product

func (c catalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Variants = append([]domain.ProductVariant(nil), p.Variants...)
	return &p, nil
}

func testCatalog() catalog {
	return catalog{
		"mug": {ID: "mug", Name: "Mug", PriceCents: 1_200, Stock: 3, Active: true},
		"tee": {
			ID: "tee", Name: "Tee", PriceCents: 2_000, Stock: 10, Active: true,
			Variants: []domain.ProductVariant{
				{ID: "tee-s", Name: "S", Stock: 1},
				{ID: "tee-m", Name: "M", Stock: 5, PriceModifierCents: 200},
			},
		},
		"gone": {ID: "gone", Name: "Gone", PriceCents: 100, Stock: 0, Active: true},
		"old":  {ID: "old", Name: "Old", PriceCents: 100, Stock: 4, Active: false},
	}
}

func TestAddRejectsOutOfStockProduct(t *testing.T) {
	c := New(testCatalog())
	require.ErrorIs(t, c.Add(context.Background(), "gone", ""), ErrOutOfStock)
	require.ErrorIs(t, c.Add(context.Background(), "old", ""), ErrProductInactive)
	require.ErrorIs(t, c.Add(context.Background(), "missing", ""), ErrProductNotFound)
	require.Zero(t, c.Len())
}

func TestAddMergesAndStopsAtStock(t *testing.T) {
	ctx := context.Background()
	c := New(testCatalog())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Add(ctx, "mug", ""))
	}
	require.ErrorIs(t, c.Add(ctx, "mug", ""), ErrExceedsStock)

	lines := c.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 3, lines[0].Quantity)
}

func TestVariantStockGovernsVariantLines(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog()
	c := New(cat)

	require.NoError(t, c.Add(ctx, "tee", "tee-s"))
	require.ErrorIs(t, c.Add(ctx, "tee", "tee-s"), ErrExceedsStock)
	require.ErrorIs(t, c.Add(ctx, "tee", "tee-xl"), ErrVariantNotFound)

	// last unit sold: the next admission sees zero stock
	tee := cat["tee"]
	tee.Variants[0].Stock = 0
	cat["tee"] = tee
	c.Clear()
	require.ErrorIs(t, c.Add(ctx, "tee", "tee-s"), ErrVariantOutOfStock)
	require.Zero(t, c.Len())
}

func TestProductTotalAcrossVariantLinesIsBounded(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog()
	tee := cat["tee"]
	tee.Stock = 4
	cat["tee"] = tee
	c := New(cat)

	require.NoError(t, c.AddQuantity(ctx, "tee", "tee-m", 3))
	require.NoError(t, c.Add(ctx, "tee", "tee-s"))
	require.ErrorIs(t, c.UpdateQuantity(ctx, "tee", "tee-m", 4), ErrExceedsStock)
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	c := New(testCatalog())
	require.NoError(t, c.Add(ctx, "mug", ""))

	require.NoError(t, c.UpdateQuantity(ctx, "mug", "", 3))
	require.Equal(t, 3, c.Lines()[0].Quantity)

	require.ErrorIs(t, c.UpdateQuantity(ctx, "mug", "", 4), ErrExceedsStock)
	require.Equal(t, 3, c.Lines()[0].Quantity)

	// missing line is a no-op
	require.NoError(t, c.UpdateQuantity(ctx, "tee", "tee-m", 2))
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.UpdateQuantity(ctx, "mug", "", 0))
	require.Zero(t, c.Len())
}

func TestUpdateQuantityRereadsStock(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog()
	c := New(cat)
	require.NoError(t, c.AddQuantity(ctx, "mug", "", 2))

	mug := cat["mug"]
	mug.Stock = 1
	cat["mug"] = mug

	require.ErrorIs(t, c.UpdateQuantity(ctx, "mug", "", 2), ErrExceedsStock)
}

func TestLinesAreDeepCopies(t *testing.T) {
	ctx := context.Background()
	c := New(testCatalog())
	require.NoError(t, c.Add(ctx, "tee", "tee-m"))
	require.NoError(t, c.SetItemDiscount("tee", "tee-m", &domain.ItemDiscount{Type: domain.DiscountTypeFixed, AmountCents: 100}))

	lines := c.Lines()
	lines[0].Variant.Stock = 99
	lines[0].ItemDiscount.AmountCents = 5

	fresh := c.Lines()
	require.Equal(t, 5, fresh[0].Variant.Stock)
	require.Equal(t, int64(100), fresh[0].ItemDiscount.AmountCents)
}

func TestSetItemDiscountValidates(t *testing.T) {
	ctx := context.Background()
	c := New(testCatalog())
	require.NoError(t, c.Add(ctx, "mug", ""))

	require.ErrorIs(t, c.SetItemDiscount("mug", "", &domain.ItemDiscount{Type: "bogus"}), ErrInvalidDiscount)
	require.ErrorIs(t, c.SetItemDiscount("mug", "", &domain.ItemDiscount{Type: domain.DiscountTypePercentage, Percent: 101}), ErrInvalidDiscount)
	require.NoError(t, c.SetItemDiscount("mug", "", nil))
}

func TestBuildAggregatesRequests(t *testing.T) {
	lines, err := Build(context.Background(), testCatalog(), []domain.CartLineRequest{
		{ProductID: "mug", Quantity: 1},
		{ProductID: "tee", VariantID: "tee-m", Quantity: 2, ItemDiscount: &domain.ItemDiscount{Type: domain.DiscountTypePercentage, Percent: 10}},
		{ProductID: "mug", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, 3, lines[0].Quantity)
	require.Equal(t, "tee-m", lines[1].VariantID())
	require.NotNil(t, lines[1].ItemDiscount)

	_, err = Build(context.Background(), testCatalog(), []domain.CartLineRequest{{ProductID: "mug", Quantity: 4}})
	require.ErrorIs(t, err, ErrExceedsStock)

	reqs := Requests(lines)
	require.Equal(t, "mug", reqs[0].ProductID)
	require.Equal(t, 3, reqs[0].Quantity)
}

func TestMatchesIsExactMultiset(t *testing.T) {
	a := []domain.LineItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", VariantID: "v1", Quantity: 1},
	}
	b := []domain.LineItem{
		{ProductID: "p2", VariantID: "v1", Quantity: 1, UnitPriceCents: 999},
		{ProductID: "p1", Quantity: 2},
	}
	require.True(t, Matches(a, b))

	require.False(t, Matches(a, b[:1]))
	require.False(t, Matches(a, []domain.LineItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}))
	require.False(t, Matches(a, []domain.LineItem{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", VariantID: "v1", Quantity: 1}}))
}
