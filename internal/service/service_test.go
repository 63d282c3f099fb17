package service

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/cart"
	"retailpos/backend/internal/discount"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

const (
	sourdough = "prod-sourdough"
	mug       = "prod-ceramic-mug"
	regular   = "cust-walkin-regular"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	return newTestServiceWithCache(t, cache.NoopReportCache{})
}

func newTestServiceWithCache(t *testing.T, reports cache.ReportCache) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc, err := New(repo, reports, zap.NewNop(), Options{TaxPolicy: pricing.PolicyFlat, TaxCountry: "USA"})
	require.NoError(t, err)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func cashSale(key string, total int64, tendered int64, lines ...domain.CartLineRequest) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		IdempotencyKey:    key,
		Lines:             lines,
		Payments:          []domain.Payment{{Method: domain.PaymentCash, AmountCents: total}},
		CashTenderedCents: tendered,
	}
}

func line(productID string, qty int) domain.CartLineRequest {
	return domain.CartLineRequest{ProductID: productID, Quantity: qty}
}

func stockOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCheckoutCashWithChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	// 2 x 6.50 = 13.00, flat 8% tax = 1.04
	resp, err := svc.Checkout(ctx, cashSale("idem-cash", 1_404, 2_000, line(sourdough, 2)))
	require.NoError(t, err)

	assert.Equal(t, int64(1_300), resp.SubtotalCents)
	assert.Equal(t, int64(104), resp.TaxCents)
	assert.Equal(t, int64(1_404), resp.TotalCents)
	assert.Equal(t, int64(596), resp.ChangeCents)
	assert.Equal(t, 2, resp.ItemCount)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, 10, stockOf(t, svc, sourdough))

	tx, err := svc.GetTransaction(ctx, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "cashier", tx.Cashier)
	assert.Equal(t, pricing.PolicyFlat, tx.TaxPolicy)
}

func TestCheckoutRejectsPaymentMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(cashierCtx(), cashSale("idem-short", 1_000, 0, line(sourdough, 2)))
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
	assert.Equal(t, 12, stockOf(t, svc, sourdough))
}

func TestCheckoutCardNeedsReference(t *testing.T) {
	svc, _ := newTestService(t)
	req := domain.CheckoutRequest{
		IdempotencyKey: "idem-card",
		Lines:          []domain.CartLineRequest{line(mug, 1)},
		Payments:       []domain.Payment{{Method: domain.PaymentCard, AmountCents: 1_296}},
	}

	_, err := svc.Checkout(cashierCtx(), req)
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	req.Payments[0].Reference = "AUTH-7781"
	resp, err := svc.Checkout(cashierCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.ChangeCents)
	assert.Equal(t, int64(0), resp.CashTendered)
}

func TestCheckoutSplitTender(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		IdempotencyKey:    "idem-split",
		Lines:             []domain.CartLineRequest{line(mug, 1)},
		CashTenderedCents: 500,
		Payments: []domain.Payment{
			{Method: domain.PaymentCash, AmountCents: 296},
			{Method: domain.PaymentGiftCard, AmountCents: 1_000, Reference: "GC-1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(204), resp.ChangeCents)

	tx, err := svc.GetTransaction(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "split", tx.PaymentSummary())
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()
	req := cashSale("idem-replay", 1_404, 0, line(sourdough, 2))

	first, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 10, stockOf(t, svc, sourdough), "replay must not sell again")

	lookup, err := svc.LookupCheckoutByIdempotency(ctx, "idem-replay")
	require.NoError(t, err)
	require.True(t, lookup.Found)
	assert.Equal(t, first.TransactionID, lookup.Checkout.TransactionID)

	missing, err := svc.LookupCheckoutByIdempotency(ctx, "idem-unknown")
	require.NoError(t, err)
	assert.False(t, missing.Found)
}

func TestCheckoutRejectsOverselling(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(cashierCtx(), cashSale("idem-over", 100_000, 0, line(sourdough, 13)))
	require.ErrorIs(t, err, cart.ErrExceedsStock)

	_, err = svc.Checkout(cashierCtx(), cashSale("idem-empty", 324, 0, line("prod-gift-card-box", 1)))
	require.ErrorIs(t, err, cart.ErrOutOfStock)
}

func TestCheckoutAttachesActiveShift(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{TerminalID: "till-1", CashierName: "Casey", StartingCashCents: 10_000})
	require.NoError(t, err)

	_, err = svc.OpenShift(ctx, domain.ShiftOpenRequest{TerminalID: "till-1", CashierName: "Casey"})
	require.ErrorIs(t, err, store.ErrConflict)

	req := cashSale("idem-shift", 1_404, 0, line(sourdough, 2))
	req.TerminalID = "till-1"
	resp, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, shift.ID, resp.ShiftID)

	closed, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{TerminalID: "till-1", EndingCashCents: 11_404})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusClosed, closed.Status)
	assert.Equal(t, int64(1_404), closed.TotalSalesCents)
	assert.Equal(t, 1, closed.TotalTransactions)

	_, err = svc.ActiveShift(ctx, "till-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckoutWithoutShiftProceeds(t *testing.T) {
	svc, _ := newTestService(t)
	req := cashSale("idem-noshift", 1_404, 0, line(sourdough, 2))
	req.TerminalID = "till-9"

	resp, err := svc.Checkout(cashierCtx(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.ShiftID)
}

func TestCheckoutCreditsLoyaltyAndConvertsEstimation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	est, err := svc.CreateEstimation(ctx, domain.EstimationRequest{
		Lines:      []domain.CartLineRequest{line(sourdough, 2)},
		CustomerID: regular,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EstimationActive, est.Status)
	assert.Equal(t, int64(1_404), est.TotalCents)

	other, err := svc.CreateEstimation(ctx, domain.EstimationRequest{
		Lines:      []domain.CartLineRequest{line(sourdough, 1)},
		CustomerID: regular,
	})
	require.NoError(t, err)

	req := cashSale("idem-loyal", 1_404, 0, line(sourdough, 2))
	req.CustomerID = regular
	resp, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 14, resp.LoyaltyEarned)
	assert.Equal(t, []string{est.ID}, resp.ConvertedQuote)

	customer, err := svc.GetCustomer(ctx, regular)
	require.NoError(t, err)
	assert.Equal(t, 14, customer.LoyaltyPoints)
	assert.Equal(t, int64(1_404), customer.TotalSpentCents)
	require.NotNil(t, customer.LastVisit)

	converted, err := svc.GetEstimation(ctx, est.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EstimationConverted, converted.Status)

	untouched, err := svc.GetEstimation(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EstimationActive, untouched.Status)
}

func TestCheckoutUnknownCustomerIsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	req := cashSale("idem-ghost", 1_404, 0, line(sourdough, 2))
	req.CustomerID = "cust-ghost"

	_, err := svc.Checkout(cashierCtx(), req)
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestLoyaltyPoints(t *testing.T) {
	assert.Equal(t, 0, LoyaltyPoints(0))
	assert.Equal(t, 0, LoyaltyPoints(99))
	assert.Equal(t, 1, LoyaltyPoints(100))
	assert.Equal(t, 14, LoyaltyPoints(1_499))
}

func TestDiscountUsageLimitOne(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now().UTC()

	_, err := svc.CreateDiscount(adminCtx(), domain.DiscountRequest{
		Code:        " once ",
		Name:        "One shot",
		Type:        domain.DiscountTypeFixed,
		AmountCents: 100,
		StartsAt:    now.Add(-time.Hour),
		EndsAt:      now.Add(time.Hour),
		UsageLimit:  1,
	})
	require.NoError(t, err)

	d, amount, err := svc.ValidateDiscount(context.Background(), "ONCE", 1_300)
	require.NoError(t, err)
	assert.Equal(t, "ONCE", d.Code)
	assert.Equal(t, int64(100), amount)

	// 1300 - 100 = 1200, tax 96
	req := cashSale("idem-once-1", 1_296, 0, line(sourdough, 2))
	req.DiscountCode = "once"
	resp, err := svc.Checkout(cashierCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(100), resp.DiscountCents)

	req.IdempotencyKey = "idem-once-2"
	_, err = svc.Checkout(cashierCtx(), req)
	require.ErrorIs(t, err, discount.ErrUsageLimitReached)

	quote, err := svc.Quote(context.Background(), domain.QuoteRequest{
		Lines:        []domain.CartLineRequest{line(sourdough, 2)},
		DiscountCode: "once",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), quote.DiscountCents)
	assert.NotEmpty(t, quote.DiscountRejectionNote)
}

func TestDiscountAdministrationIsAdminOnly(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now().UTC()
	req := domain.DiscountRequest{
		Code: "STAFF", Name: "Staff", Type: domain.DiscountTypePercentage, Percent: 15,
		StartsAt: now, EndsAt: now.Add(24 * time.Hour),
	}

	_, err := svc.CreateDiscount(cashierCtx(), req)
	require.ErrorIs(t, err, ErrForbidden)

	created, err := svc.CreateDiscount(adminCtx(), req)
	require.NoError(t, err)
	assert.True(t, created.Active)

	inactive := false
	req.Active = &inactive
	updated, err := svc.UpdateDiscount(adminCtx(), created.ID, req)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, _, err = svc.ValidateDiscount(context.Background(), "staff", 1_000)
	require.ErrorIs(t, err, discount.ErrInactive)

	require.NoError(t, svc.DeleteDiscount(adminCtx(), created.ID))
	require.ErrorIs(t, svc.DeleteDiscount(adminCtx(), created.ID), store.ErrNotFound)
}

func TestReturnIsBoundedByPurchasedQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	sale, err := svc.Checkout(ctx, cashSale("idem-ret", 1_404, 0, line(sourdough, 2)))
	require.NoError(t, err)

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		TransactionID: sale.TransactionID,
		Reason:        "stale",
		Items:         []domain.ReturnItem{{ProductID: sourdough, Quantity: 3}},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	record, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		TransactionID: sale.TransactionID,
		Reason:        "stale",
		Items:         []domain.ReturnItem{{ProductID: sourdough, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1_404), record.RefundCents)
	assert.Equal(t, 12, stockOf(t, svc, sourdough))

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		TransactionID: sale.TransactionID,
		Reason:        "again",
		Items:         []domain.ReturnItem{{ProductID: sourdough, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		TransactionID: sale.TransactionID,
		Reason:        "wrong item",
		Items:         []domain.ReturnItem{{ProductID: mug, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestReturnRefundIsProrated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	// 1300 - 10% = 1170, tax round(93.6) = 94, total 1264
	req := cashSale("idem-prorate", 1_264, 0, line(sourdough, 2))
	req.DiscountCode = "WELCOME10"
	sale, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(1_264), sale.TotalCents)

	record, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		TransactionID: sale.TransactionID,
		Reason:        "changed mind",
		Items:         []domain.ReturnItem{{ProductID: sourdough, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(632), record.RefundCents)
}

func TestReturnWithoutReceiptUsesCatalogPrice(t *testing.T) {
	svc, _ := newTestService(t)

	record, err := svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		Reason: "no receipt",
		Items:  []domain.ReturnItem{{ProductID: "prod-logo-tee", VariantID: "var-logo-tee-xl", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2_200), record.RefundCents)

	p, err := svc.GetProduct(context.Background(), "prod-logo-tee")
	require.NoError(t, err)
	xl, ok := p.Variant("var-logo-tee-xl")
	require.True(t, ok)
	assert.Equal(t, 3, xl.Stock)
}

func TestRefundForRepeatedLinesUsesCombinedPrice(t *testing.T) {
	tx := domain.Transaction{
		ID: "tx-repeat",
		Items: []domain.LineItem{
			{ProductID: sourdough, Quantity: 1, EffectiveUnitPriceCents: 1_000, LineTotalCents: 1_000},
			{ProductID: sourdough, Quantity: 1, EffectiveUnitPriceCents: 500, LineTotalCents: 500},
		},
		SubtotalCents: 1_500,
		TotalCents:    1_500,
	}

	one, err := refundFor(tx, []domain.ReturnItem{{ProductID: sourdough, Quantity: 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(750), one)

	both, err := refundFor(tx, []domain.ReturnItem{{ProductID: sourdough, Quantity: 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), both)

	_, err = refundFor(tx, []domain.ReturnItem{{ProductID: sourdough, Quantity: 1}}, map[string]int{store.ReturnKey(sourdough, ""): 2})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestSellingLastVariantUnitBlocksNextCart(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx()
	xl := domain.CartLineRequest{ProductID: "prod-logo-tee", VariantID: "var-logo-tee-xl", Quantity: 2}

	quote, err := svc.Quote(ctx, domain.QuoteRequest{Lines: []domain.CartLineRequest{xl}})
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, cashSale("idem-last-xl", quote.TotalCents, 0, xl))
	require.NoError(t, err)

	moves, err := repo.ListMovements(ctx, domain.MovementFilter{ProductID: "prod-logo-tee"})
	require.NoError(t, err)
	before := len(moves)

	xl.Quantity = 1
	_, err = svc.Quote(ctx, domain.QuoteRequest{Lines: []domain.CartLineRequest{xl}})
	require.ErrorIs(t, err, cart.ErrVariantOutOfStock)
	_, err = svc.Checkout(ctx, cashSale("idem-after-last-xl", 2_376, 0, xl))
	require.ErrorIs(t, err, cart.ErrVariantOutOfStock)

	moves, err = repo.ListMovements(ctx, domain.MovementFilter{ProductID: "prod-logo-tee"})
	require.NoError(t, err)
	assert.Len(t, moves, before)

	p, err := svc.GetProduct(context.Background(), "prod-logo-tee")
	require.NoError(t, err)
	v, ok := p.Variant("var-logo-tee-xl")
	require.True(t, ok)
	assert.Zero(t, v.Stock)
}

func TestCreateProductPostsOpeningStockThroughLedger(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()
	req := domain.ProductCreateRequest{
		SKU:        " cap-01 ",
		Name:       "Baseball Cap",
		Category:   "apparel",
		PriceCents: 1_800,
		Variants: []domain.ProductVariant{
			{Name: "Navy", Type: "color", Value: "navy", Stock: 3},
			{Name: "Red", Type: "color", Value: "red", Stock: 2},
		},
	}

	_, err := svc.CreateProduct(cashierCtx(), req)
	require.ErrorIs(t, err, ErrForbidden)

	created, err := svc.CreateProduct(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "CAP-01", created.SKU)
	assert.Equal(t, 5, created.Stock)
	require.Len(t, created.Variants, 2)
	assert.Equal(t, 3, created.Variants[0].Stock)
	assert.Equal(t, 2, created.Variants[1].Stock)

	rec, err := svc.Reconcile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Drift)
	assert.Equal(t, 5, rec.LedgerStock)

	_, err = svc.CreateProduct(ctx, req)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestUpdateProductPatchesFields(t *testing.T) {
	svc, _ := newTestService(t)
	price := int64(700)
	inactive := false

	updated, err := svc.UpdateProduct(adminCtx(), sourdough, domain.ProductUpdateRequest{PriceCents: &price, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, int64(700), updated.PriceCents)
	assert.False(t, updated.Active)
	assert.Equal(t, 12, updated.Stock)

	negative := int64(-1)
	_, err = svc.UpdateProduct(adminCtx(), sourdough, domain.ProductUpdateRequest{PriceCents: &negative})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestLowStockListsEmptiestFirst(t *testing.T) {
	svc, _ := newTestService(t)

	low, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, low)
	assert.Equal(t, "prod-gift-card-box", low[0].ID)
	for _, p := range low {
		assert.LessOrEqual(t, p.Stock, p.MinStock)
	}
}

func TestRemoveStockValidatesTypeAndQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	_, err := svc.RemoveStock(ctx, domain.RemoveStockRequest{ProductID: sourdough, Quantity: 1, RemovalTypeID: "rt-unknown"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.RemoveStock(ctx, domain.RemoveStockRequest{ProductID: sourdough, Quantity: 1, RemovalTypeID: "rt-internal", UnitOption: "Garage"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.RemoveStock(ctx, domain.RemoveStockRequest{ProductID: sourdough, Quantity: 13, RemovalTypeID: "rt-damaged"})
	require.Error(t, err)

	mv, err := svc.RemoveStock(ctx, domain.RemoveStockRequest{ProductID: sourdough, Quantity: 2, RemovalTypeID: "rt-internal", UnitOption: "kitchen"})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementOut, mv.Type)
	assert.Contains(t, mv.Reason, "Internal Use")
	assert.Equal(t, 10, stockOf(t, svc, sourdough))
}

func TestCountStockPostsDifference(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CountStock(cashierCtx(), domain.StockCountRequest{ProductID: sourdough, CountedQty: 9})
	require.NoError(t, err)
	assert.Equal(t, -3, resp.DeltaQty)
	assert.Equal(t, 9, stockOf(t, svc, sourdough))

	rec, err := svc.Reconcile(context.Background(), sourdough)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Drift)
}

func TestReceiveStockNamesSupplier(t *testing.T) {
	svc, _ := newTestService(t)

	movements, err := svc.ReceiveStock(cashierCtx(), domain.ReceiveStockRequest{
		SupplierID: "sup-roastery",
		Items:      []domain.ReceiveStockItem{{ProductID: "prod-espresso-beans", Quantity: 10, UnitCostCents: 1_500}},
	})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, strings.HasPrefix(movements[0].Notes, "Supplier: Harbor Roastery"))

	p, err := svc.GetProduct(context.Background(), "prod-espresso-beans")
	require.NoError(t, err)
	assert.Equal(t, 50, p.Stock)
	assert.Equal(t, int64(1_500), p.CostPriceCents)

	_, err = svc.ReceiveStock(cashierCtx(), domain.ReceiveStockRequest{
		SupplierID: "sup-nobody",
		Items:      []domain.ReceiveStockItem{{ProductID: "prod-espresso-beans", Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-roastery",
		Items:      []domain.PurchaseOrderItem{{ProductID: "prod-espresso-beans", Quantity: 10, UnitCostCents: 1_400}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusSent, po.Status)
	assert.Equal(t, int64(14_000), po.TotalCostCents)

	resp, err := svc.ReceivePurchaseOrder(ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		Details: []domain.ReceiveDetail{{ProductID: "prod-espresso-beans", ReceivedQty: 8, DamagedQty: 2, UnitCostCents: 1_400}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPartial, resp.PurchaseOrder.Status)
	require.NotNil(t, resp.Replacement)
	assert.Equal(t, 48, stockOf(t, svc, "prod-espresso-beans"))

	full, err := svc.ReceivePurchaseOrder(ctx, resp.Replacement.ID, domain.PurchaseOrderReceiveRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, full.PurchaseOrder.Status)
	assert.Equal(t, 50, stockOf(t, svc, "prod-espresso-beans"))

	parent, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, parent.Status)

	draft, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-textiles",
		Draft:      true,
		Items:      []domain.PurchaseOrderItem{{ProductID: "prod-logo-tee", Quantity: 5, UnitCostCents: 800}},
	})
	require.NoError(t, err)
	cancelled, err := svc.CancelPurchaseOrder(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, cancelled.Status)

	orders, err := svc.ListPurchaseOrders(ctx, domain.POStatusCancelled, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, draft.ID, orders[0].ID)
}

func TestCreateSupplierValidates(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateSupplier(adminCtx(), domain.SupplierCreateRequest{Name: "Acme", Email: "not-an-email"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	created, err := svc.CreateSupplier(adminCtx(), domain.SupplierCreateRequest{Name: " Acme ", Email: "po@acme.example"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", created.Name)

	all, err := svc.ListSuppliers(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecallEstimationDropsUnavailableLines(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	est, err := svc.CreateEstimation(ctx, domain.EstimationRequest{
		Lines: []domain.CartLineRequest{line(sourdough, 2), line(mug, 1)},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, est.CreatedAt.Add(7*24*time.Hour), est.ExpiresAt, time.Second)

	_, err = svc.CountStock(ctx, domain.StockCountRequest{ProductID: mug, CountedQty: 0})
	require.NoError(t, err)

	recall, err := svc.RecallEstimation(ctx, est.ID)
	require.NoError(t, err)
	require.Len(t, recall.Lines, 1)
	assert.Equal(t, sourdough, recall.Lines[0].ProductID)
	require.Len(t, recall.Dropped, 1)
	assert.Contains(t, recall.Dropped[0], "Ceramic Mug")
	assert.Equal(t, int64(1_404), recall.Quote.TotalCents)
}

func TestExpireEstimations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	est, err := svc.CreateEstimation(ctx, domain.EstimationRequest{Lines: []domain.CartLineRequest{line(sourdough, 1)}})
	require.NoError(t, err)

	svc.now = func() time.Time { return est.ExpiresAt.Add(time.Minute) }
	n, err := svc.ExpireEstimations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.RecallEstimation(ctx, est.ID)
	require.ErrorIs(t, err, store.ErrConflict)

	expired, err := svc.ListEstimations(ctx, domain.EstimationExpired)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	_, err = svc.ListEstimations(ctx, "pending")
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCustomersCreateUpdateSearch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	created, err := svc.CreateCustomer(ctx, domain.CustomerRequest{
		Name: "Riley Chen", Email: "RILEY@Example.com", IsB2B: true, CompanyName: "Chen Catering", CreditLimitCents: 50_000,
	})
	require.NoError(t, err)
	assert.Equal(t, "riley@example.com", created.Email)
	assert.Equal(t, 0, created.LoyaltyPoints)

	updated, err := svc.UpdateCustomer(ctx, created.ID, domain.CustomerRequest{Name: "Riley Chen", Phone: "555-0199"})
	require.NoError(t, err)
	assert.Equal(t, "555-0199", updated.Phone)
	assert.False(t, updated.IsB2B)
	assert.Empty(t, updated.CompanyName)

	found, err := svc.ListCustomers(ctx, "riley")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)
}

func TestExpensesFeedDailyReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()
	today := time.Now().UTC().Format(time.DateOnly)

	_, err := svc.CreateExpense(ctx, domain.ExpenseRequest{Description: "Milk run", AmountCents: 2_500, Category: "supplies"})
	require.NoError(t, err)
	_, err = svc.CreateExpense(ctx, domain.ExpenseRequest{Description: "Bad date", AmountCents: 1, Category: "x", Date: "14/03/2026"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.Checkout(ctx, cashSale("idem-report-1", 1_404, 0, line(sourdough, 2)))
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, cashSale("idem-report-2", 1_296, 0, line(mug, 1)))
	require.NoError(t, err)

	report, err := svc.DailyReport(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Transactions)
	assert.Equal(t, int64(2_500), report.GrossSalesCents)
	assert.Equal(t, int64(200), report.TaxCents)
	assert.Equal(t, int64(2_500), report.NetSalesCents)
	assert.Equal(t, int64(2_500), report.ExpensesCents)
	require.Len(t, report.ByPayment, 1)
	assert.Equal(t, domain.PaymentCash, report.ByPayment[0].PaymentMethod)
	require.Len(t, report.TopProducts, 2)
	assert.Equal(t, sourdough, report.TopProducts[0].ProductID)

	expenses, err := svc.ListExpenses(ctx, today, today)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestDailyReportIsCachedUntilNextSale(t *testing.T) {
	mr := miniredis.RunT(t)
	reports := cache.NewRedisReportCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = reports.Close() })
	svc, _ := newTestServiceWithCache(t, reports)
	ctx := cashierCtx()
	today := time.Now().UTC().Format(time.DateOnly)

	_, err := svc.Checkout(ctx, cashSale("idem-cache-1", 1_404, 0, line(sourdough, 2)))
	require.NoError(t, err)

	first, err := svc.DailyReport(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Transactions)
	assert.True(t, mr.Exists(cache.DailyReportKey(today)))

	_, err = svc.Checkout(ctx, cashSale("idem-cache-2", 1_296, 0, line(mug, 1)))
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.DailyReportKey(today)), "sale must invalidate the cached report")

	second, err := svc.DailyReport(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Transactions)
}

func TestDailyReportSurvivesCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	reports := cache.NewRedisReportCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = reports.Close() })
	svc, _ := newTestServiceWithCache(t, reports)
	mr.Close()

	report, err := svc.DailyReport(cashierCtx(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Transactions)
}

func TestReceiptPreview(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Checkout(cashierCtx(), cashSale("idem-receipt", 1_404, 2_000, line(sourdough, 2)))
	require.NoError(t, err)

	receipt, err := svc.Receipt(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Contains(t, receipt.PreviewText, resp.TransactionID)
	assert.Contains(t, receipt.PreviewText, "Sourdough Loaf x2")
	assert.Contains(t, receipt.PreviewText, "USD 14.04")
	assert.Contains(t, receipt.PreviewText, "Change   : USD 5.96")

	_, err = svc.Receipt(context.Background(), "tx-missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMoneyFormatterGroupsByLocale(t *testing.T) {
	assert.Equal(t, "USD 1,234.56", newMoneyFormatter("US").format(123_456))
	assert.True(t, strings.HasPrefix(newMoneyFormatter("IND").format(123_456_700), "INR "))
	assert.Equal(t, "-USD 0.05", newMoneyFormatter("").format(-5))
}

func TestRemovalTypesAreAdminManaged(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateRemovalType(cashierCtx(), domain.RemovalTypeRequest{Name: "Sample"})
	require.ErrorIs(t, err, ErrForbidden)

	created, err := svc.CreateRemovalType(adminCtx(), domain.RemovalTypeRequest{Name: "Sample", Options: []string{" Trade show ", ""}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Trade show"}, created.Options)

	require.NoError(t, svc.DeleteRemovalType(adminCtx(), created.ID))
	_, err = svc.RemoveStock(cashierCtx(), domain.RemoveStockRequest{ProductID: sourdough, Quantity: 1, RemovalTypeID: created.ID})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestEveryMutationIsAudited(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(cashierCtx(), cashSale("idem-audit", 1_404, 0, line(sourdough, 2)))
	require.NoError(t, err)

	_, err = svc.ListAuditLogs(cashierCtx(), "", 10)
	require.ErrorIs(t, err, ErrForbidden)

	entries, err := svc.ListAuditLogs(adminCtx(), "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "checkout", entries[0].Action)
	assert.Equal(t, "cashier", entries[0].ActorUsername)
}

func TestPerItemTaxUsesCountryRates(t *testing.T) {
	repo := memory.NewSeeded()
	svc, err := New(repo, nil, nil, Options{TaxPolicy: pricing.PolicyPerItemInclusive, TaxCountry: "usa"})
	require.NoError(t, err)

	// mug is in the 8% standard group, sourdough carries no tax group
	quote, err := svc.Quote(context.Background(), domain.QuoteRequest{
		Lines: []domain.CartLineRequest{line(mug, 1), line(sourdough, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(96), quote.TaxCents)
	assert.Equal(t, pricing.PolicyPerItemInclusive, svc.TaxPolicy())
}
