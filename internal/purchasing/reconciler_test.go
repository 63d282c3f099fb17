package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/inventory"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

func newTestReconciler(t *testing.T) (*Reconciler, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	for _, p := range []domain.Product{
		{ID: "beans", SKU: "BEANS", Name: "Beans", PriceCents: 2_000, CostPriceCents: 900, Active: true},
		{ID: "filters", SKU: "FILTERS", Name: "Filters", PriceCents: 400, CostPriceCents: 100, Active: true},
	} {
		_, err := repo.CreateProduct(ctx, p)
		require.NoError(t, err)
	}
	_, err := repo.CreateSupplier(ctx, domain.Supplier{ID: "sup-1", Name: "Roaster"})
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	return NewReconciler(repo, inventory.NewLedger(repo, logger), logger), repo
}

func twoLineOrder() domain.PurchaseOrderCreateRequest {
	return domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-1",
		Items: []domain.PurchaseOrderItem{
			{ProductID: "beans", Quantity: 5, UnitCostCents: 1_000},
			{ProductID: "filters", Quantity: 5, UnitCostCents: 120},
		},
	}
}

func TestCreateDefaults(t *testing.T) {
	rec, _ := newTestReconciler(t)
	po, err := rec.Create(context.Background(), twoLineOrder(), "admin")
	require.NoError(t, err)

	assert.Equal(t, domain.POStatusSent, po.Status)
	assert.Equal(t, "Roaster", po.SupplierName)
	assert.Equal(t, int64(5*1_000+5*120), po.TotalCostCents)
	assert.Equal(t, domain.PaymentModePayNow, po.PaymentMode)
	assert.Equal(t, "Beans", po.Items[0].ProductName)
	assert.Nil(t, po.ReceivedAt)
}

func TestCreateReceiveNowPostsStock(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	req := twoLineOrder()
	req.ReceiveNow = true

	po, err := rec.Create(ctx, req, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, po.Status)
	assert.Equal(t, 5, po.Items[1].ReceivedQty)

	beans, err := repo.GetProduct(ctx, "beans")
	require.NoError(t, err)
	assert.Equal(t, 5, beans.Stock)
	assert.Equal(t, int64(1_000), beans.CostPriceCents)

	moves, err := repo.ListMovements(ctx, domain.MovementFilter{ProductID: "beans"})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, po.ID, moves[0].Reference)
}

func TestCreateRejectsBadInput(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	req := twoLineOrder()
	req.SupplierID = "missing"
	_, err := rec.Create(ctx, req, "admin")
	require.ErrorIs(t, err, store.ErrNotFound)

	req = twoLineOrder()
	req.Items = append(req.Items, domain.PurchaseOrderItem{ProductID: "beans", Quantity: 1})
	_, err = rec.Create(ctx, req, "admin")
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	req = twoLineOrder()
	req.Items[0].ProductID = "ghost"
	_, err = rec.Create(ctx, req, "admin")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReceivePartialWithDamageSpawnsReplacement(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	resp, err := rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{
		{ProductID: "beans", ReceivedQty: 5},
		{ProductID: "filters", ReceivedQty: 3, DamagedQty: 2},
	}, "stock")
	require.NoError(t, err)

	got := resp.PurchaseOrder
	assert.Equal(t, domain.POStatusPartial, got.Status)
	assert.Equal(t, 2, got.Items[1].ReplacementPendingQty)
	assert.Equal(t, 2, got.Items[1].DamagedQty)
	assert.Equal(t, 3, got.Items[1].ReceivedQty)

	require.NotNil(t, resp.Replacement)
	assert.Equal(t, domain.POKindReplacement, resp.Replacement.Kind)
	assert.Equal(t, po.ID, resp.Replacement.ParentID)
	assert.Equal(t, domain.POStatusSent, resp.Replacement.Status)
	require.Len(t, resp.Replacement.Items, 1)
	assert.Equal(t, "filters", resp.Replacement.Items[0].ProductID)
	assert.Equal(t, 2, resp.Replacement.Items[0].Quantity)
	assert.Equal(t, int64(120), resp.Replacement.Items[0].UnitCostCents)

	filters, err := repo.GetProduct(ctx, "filters")
	require.NoError(t, err)
	assert.Equal(t, 3, filters.Stock)

	stored, err := repo.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPartial, stored.Status)
	_, err = repo.GetPurchaseOrder(ctx, resp.Replacement.ID)
	require.NoError(t, err)
}

func TestReplacementReceiptClosesParent(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	resp, err := rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{
		{ProductID: "beans", ReceivedQty: 5},
		{ProductID: "filters", ReceivedQty: 3, DamagedQty: 2},
	}, "stock")
	require.NoError(t, err)

	_, err = rec.ReceiveFull(ctx, resp.Replacement.ID, "stock")
	require.NoError(t, err)

	parent, err := rec.repo.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, parent.Status)
	assert.Zero(t, parent.Items[1].ReplacementPendingQty)
	assert.Equal(t, 5, parent.Items[1].ReceivedQty)
	assert.NotNil(t, parent.ReceivedAt)
}

func TestReceivePartialLeavesOtherLinesAlone(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	resp, err := rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{{ProductID: "beans", ReceivedQty: 5}}, "stock")
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPartial, resp.PurchaseOrder.Status)
	assert.Nil(t, resp.Replacement)
	assert.Zero(t, resp.PurchaseOrder.Items[1].ReceivedQty)

	resp, err = rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{{ProductID: "filters", ReceivedQty: 5}}, "stock")
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, resp.PurchaseOrder.Status)

	_, err = rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{{ProductID: "filters", ReceivedQty: 1}}, "stock")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestApplyReceiptUsesSuppliedTallies(t *testing.T) {
	items := []domain.PurchaseOrderItem{{ProductID: "a", Quantity: 4}, {ProductID: "b", Quantity: 2}}
	details := []domain.ReceiveDetail{{ProductID: "a", ReceivedQty: 1, DamagedQty: 1}}

	first, damaged, err := ApplyReceipt(items, details)
	require.NoError(t, err)
	second, _, err := ApplyReceipt(items, details)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, first[0].ReceivedQty)
	assert.Equal(t, 1, first[0].ReplacementPendingQty)
	assert.Zero(t, first[1].ReceivedQty)
	assert.Zero(t, items[0].ReceivedQty, "input must not be mutated")
	require.Len(t, damaged, 1)

	_, _, err = ApplyReceipt(items, []domain.ReceiveDetail{{ProductID: "zzz", ReceivedQty: 1}})
	require.ErrorIs(t, err, ErrUnknownLine)
}

func TestSubmitAndCancelTransitions(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()
	req := twoLineOrder()
	req.Draft = true

	po, err := rec.Create(ctx, req, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusDraft, po.Status)

	_, err = rec.ReceiveFull(ctx, po.ID, "stock")
	require.ErrorIs(t, err, ErrInvalidState)

	po, err = rec.Submit(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusSent, po.Status)

	_, err = rec.Submit(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	po, err = rec.Cancel(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, po.Status)

	_, err = rec.Cancel(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStaleVersionIsRejected(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	stale := *po
	_, err = rec.ReceiveFull(ctx, po.ID, "stock")
	require.NoError(t, err)

	stale.Status = domain.POStatusCancelled
	err = repo.CommitPurchaseOrders(ctx, domain.PurchaseOrderCommit{Updated: []domain.PurchaseOrder{stale}})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestClearReplacementIgnoresCancelledParent(t *testing.T) {
	parent := &domain.PurchaseOrder{
		Status: domain.POStatusCancelled,
		Items:  []domain.PurchaseOrderItem{{ProductID: "a", Quantity: 2, ReceivedQty: 1, ReplacementPendingQty: 1}},
	}
	assert.Empty(t, ClearReplacement(parent, map[string]int{"a": 1}, time.Now()))
	assert.Equal(t, 1, parent.Items[0].ReplacementPendingQty)
}

func TestClearReplacementReportsWhatItCleared(t *testing.T) {
	parent := &domain.PurchaseOrder{
		Status: domain.POStatusPartial,
		Items:  []domain.PurchaseOrderItem{{ProductID: "a", Quantity: 4, ReceivedQty: 2, ReplacementPendingQty: 2}},
	}
	cleared := ClearReplacement(parent, map[string]int{"a": 5, "b": 1}, time.Now())

	assert.Equal(t, map[string]int{"a": 2}, cleared)
	assert.Equal(t, 4, parent.Items[0].ReceivedQty)
	assert.Equal(t, domain.POStatusReceived, parent.Status)
	assert.NotNil(t, parent.ReceivedAt)
}

func stockOf(t *testing.T, repo *memory.Store, id string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestReplacementOfReplacementClosesEveryAncestor(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	first, err := rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{
		{ProductID: "beans", ReceivedQty: 5},
		{ProductID: "filters", ReceivedQty: 3, DamagedQty: 2},
	}, "stock")
	require.NoError(t, err)

	second, err := rec.ReceivePartial(ctx, first.Replacement.ID, []domain.ReceiveDetail{
		{ProductID: "filters", ReceivedQty: 1, DamagedQty: 1},
	}, "stock")
	require.NoError(t, err)
	require.NotNil(t, second.Replacement)
	assert.Equal(t, first.Replacement.ID, second.Replacement.ParentID)

	mid, err := repo.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, mid.Items[1].ReplacementPendingQty)

	_, err = rec.ReceiveFull(ctx, second.Replacement.ID, "stock")
	require.NoError(t, err)

	r1, err := repo.GetPurchaseOrder(ctx, first.Replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, r1.Status)
	assert.Zero(t, r1.Items[0].ReplacementPendingQty)

	root, err := repo.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, root.Status)
	assert.Zero(t, root.Items[1].ReplacementPendingQty)
	assert.Equal(t, 5, root.Items[1].ReceivedQty)
	assert.NotNil(t, root.ReceivedAt)

	assert.Equal(t, 5, stockOf(t, repo, "filters"))
}

func TestReceiveFullCancelsOpenReplacements(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	resp, err := rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{
		{ProductID: "filters", ReceivedQty: 3, DamagedQty: 2},
	}, "stock")
	require.NoError(t, err)
	require.NotNil(t, resp.Replacement)

	full, err := rec.ReceiveFull(ctx, po.ID, "stock")
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, full.PurchaseOrder.Status)
	assert.Equal(t, 5, stockOf(t, repo, "filters"))
	assert.Equal(t, 5, stockOf(t, repo, "beans"))

	replacement, err := repo.GetPurchaseOrder(ctx, resp.Replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, replacement.Status)

	_, err = rec.ReceiveFull(ctx, resp.Replacement.ID, "stock")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 5, stockOf(t, repo, "filters"), "stock must never exceed the ordered quantity")
}

func TestCancelReplacementReturnsUnitsToParent(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	po, err := rec.Create(ctx, twoLineOrder(), "admin")
	require.NoError(t, err)

	resp, err := rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{
		{ProductID: "beans", ReceivedQty: 5},
		{ProductID: "filters", ReceivedQty: 3, DamagedQty: 2},
	}, "stock")
	require.NoError(t, err)
	nested, err := rec.ReceivePartial(ctx, resp.Replacement.ID, []domain.ReceiveDetail{
		{ProductID: "filters", ReceivedQty: 1, DamagedQty: 1},
	}, "stock")
	require.NoError(t, err)

	cancelled, err := rec.Cancel(ctx, resp.Replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, cancelled.Status)

	grandchild, err := repo.GetPurchaseOrder(ctx, nested.Replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, grandchild.Status)

	parent, err := repo.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPartial, parent.Status)
	assert.Zero(t, parent.Items[1].ReplacementPendingQty)
	assert.Equal(t, 4, parent.Items[1].ReceivedQty)

	// the unit nobody will deliver is outstanding on the parent again
	_, err = rec.ReceivePartial(ctx, po.ID, []domain.ReceiveDetail{{ProductID: "filters", ReceivedQty: 1}}, "stock")
	require.NoError(t, err)
	parent, err = repo.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, parent.Status)
	assert.Equal(t, 5, stockOf(t, repo, "filters"))
}

func TestApplyReceiptMergesRepeatedDamage(t *testing.T) {
	items := []domain.PurchaseOrderItem{{ProductID: "a", Quantity: 6, UnitCostCents: 50}, {ProductID: "b", Quantity: 2}}
	details := []domain.ReceiveDetail{
		{ProductID: "a", ReceivedQty: 2, DamagedQty: 1},
		{ProductID: "b", DamagedQty: 2},
		{ProductID: "a", ReceivedQty: 1, DamagedQty: 2},
	}

	out, damaged, err := ApplyReceipt(items, details)
	require.NoError(t, err)
	assert.Equal(t, 3, out[0].ReceivedQty)
	assert.Equal(t, 3, out[0].ReplacementPendingQty)

	require.Len(t, damaged, 2)
	assert.Equal(t, "a", damaged[0].ProductID)
	assert.Equal(t, 3, damaged[0].Quantity)
	assert.Equal(t, int64(50), damaged[0].UnitCostCents)
	assert.Equal(t, "b", damaged[1].ProductID)
	assert.Equal(t, 2, damaged[1].Quantity)
}

func TestReceiveFullSumsRepeatedLinesForParent(t *testing.T) {
	rec, repo := newTestReconciler(t)
	ctx := context.Background()
	now := time.Now().UTC()

	parent := domain.PurchaseOrder{
		ID: "po-parent", SupplierID: "sup-1", Status: domain.POStatusPartial, CreatedAt: now,
		Items: []domain.PurchaseOrderItem{{ProductID: "beans", Quantity: 5, DamagedQty: 5, ReplacementPendingQty: 5, UnitCostCents: 1_000}},
	}
	child := domain.PurchaseOrder{
		ID: "po-child", SupplierID: "sup-1", Status: domain.POStatusSent, CreatedAt: now,
		Kind: domain.POKindReplacement, ParentID: parent.ID,
		Items: []domain.PurchaseOrderItem{
			{ProductID: "beans", Quantity: 2, UnitCostCents: 1_000},
			{ProductID: "beans", Quantity: 3, UnitCostCents: 1_000},
		},
	}
	require.NoError(t, repo.CommitPurchaseOrders(ctx, domain.PurchaseOrderCommit{Created: []domain.PurchaseOrder{parent, child}}))

	_, err := rec.ReceiveFull(ctx, child.ID, "stock")
	require.NoError(t, err)

	got, err := repo.GetPurchaseOrder(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, got.Status)
	assert.Zero(t, got.Items[0].ReplacementPendingQty)
	assert.Equal(t, 5, stockOf(t, repo, "beans"))
}
