// Package purchasing runs the purchase order lifecycle and reconciles what a
// supplier actually delivered against what was ordered.
package purchasing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/inventory"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var (
	ErrInvalidState = errors.New("purchase order cannot change from its current status")
	ErrUnknownLine  = errors.New("product is not on this purchase order")
)

type Repository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListReplacementOrders(ctx context.Context, parentID string) ([]domain.PurchaseOrder, error)
	CommitPurchaseOrders(ctx context.Context, commit domain.PurchaseOrderCommit) error
}

type Reconciler struct {
	repo   Repository
	ledger *inventory.Ledger
	logger *zap.Logger
	now    func() time.Time
	locks  sync.Map
}

func NewReconciler(repo Repository, ledger *inventory.Ledger, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		repo:   repo,
		ledger: ledger,
		logger: logger.Named("purchasing"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// lock serializes work on one order id.
func (r *Reconciler) lock(id string) func() {
	m, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (r *Reconciler) Create(ctx context.Context, req domain.PurchaseOrderCreateRequest, actor string) (*domain.PurchaseOrder, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase order needs at least one item", store.ErrInvalidTransaction)
	}
	if req.ReceiveNow && req.Draft {
		return nil, fmt.Errorf("%w: a draft cannot be received", store.ErrInvalidTransaction)
	}
	supplier, err := r.repo.GetSupplier(ctx, req.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("supplier %s: %w", req.SupplierID, err)
	}

	now := r.now()
	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	var computedTotal int64
	for _, it := range req.Items {
		if it.Quantity <= 0 || it.UnitCostCents < 0 {
			return nil, fmt.Errorf("%w: invalid line for %s", store.ErrInvalidTransaction, it.ProductID)
		}
		if seen[it.ProductID] {
			return nil, fmt.Errorf("%w: duplicate line for %s", store.ErrInvalidTransaction, it.ProductID)
		}
		seen[it.ProductID] = true
		items = append(items, domain.PurchaseOrderItem{
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Quantity:      it.Quantity,
			UnitCostCents: it.UnitCostCents,
		})
		computedTotal += int64(it.Quantity) * it.UnitCostCents
	}

	po := domain.PurchaseOrder{
		ID:             xid.New("po"),
		SupplierID:     supplier.ID,
		SupplierName:   supplier.Name,
		Items:          items,
		TotalCostCents: req.TotalCostCents,
		Status:         domain.POStatusSent,
		PaymentMode:    req.PaymentMode,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedBy:      actor,
		CreatedAt:      now,
	}
	if po.TotalCostCents == 0 {
		po.TotalCostCents = computedTotal
	}
	if po.PaymentMode == "" {
		po.PaymentMode = domain.PaymentModePayNow
	}
	if req.Draft {
		po.Status = domain.POStatusDraft
	}

	commit := domain.PurchaseOrderCommit{}
	if req.ReceiveNow {
		receipts := make([]domain.ReceiveStockItem, 0, len(po.Items))
		for i := range po.Items {
			po.Items[i].ReceivedQty = po.Items[i].Quantity
			receipts = append(receipts, domain.ReceiveStockItem{
				ProductID:     po.Items[i].ProductID,
				Quantity:      po.Items[i].Quantity,
				UnitCostCents: po.Items[i].UnitCostCents,
			})
		}
		posting, err := r.ledger.PlanReceipt(ctx, receipts, receiptNotes(po), po.ID, actor, now)
		if err != nil {
			return nil, err
		}
		po.Status = domain.POStatusReceived
		po.ReceivedAt = &now
		commit.Posting = &posting
	}
	if err := r.fillNames(ctx, &po); err != nil {
		return nil, err
	}
	commit.Created = []domain.PurchaseOrder{po}

	if err := r.repo.CommitPurchaseOrders(ctx, commit); err != nil {
		return nil, err
	}
	po.Version = 1
	r.logger.Info("purchase order created",
		zap.String("po_id", po.ID),
		zap.String("status", po.Status),
		zap.Int64("total_cost_cents", po.TotalCostCents),
	)
	return &po, nil
}

// Submit sends a draft to the supplier.
func (r *Reconciler) Submit(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	unlock := r.lock(id)
	defer unlock()

	po, err := r.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != domain.POStatusDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, po.ID, po.Status)
	}
	po.Status = domain.POStatusSent
	if err := r.repo.CommitPurchaseOrders(ctx, domain.PurchaseOrderCommit{Updated: []domain.PurchaseOrder{*po}}); err != nil {
		return nil, err
	}
	po.Version++
	return po, nil
}

// Cancel closes an order together with any replacement orders still open
// beneath it. Units a cancelled replacement never delivered go back to the
// parent as outstanding rather than pending.
func (r *Reconciler) Cancel(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	unlock := r.lock(id)
	defer unlock()

	po, err := r.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case domain.POStatusDraft, domain.POStatusSent, domain.POStatusPartial:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, po.ID, po.Status)
	}
	descendants, err := r.openReplacements(ctx, po.ID)
	if err != nil {
		return nil, err
	}

	commit := domain.PurchaseOrderCommit{Updated: []domain.PurchaseOrder{*po}}
	commit.Updated[0].Status = domain.POStatusCancelled
	commit.Updated = append(commit.Updated, descendants...)
	if po.Kind == domain.POKindReplacement && po.ParentID != "" {
		parent, err := r.repo.GetPurchaseOrder(ctx, po.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent order %s: %w", po.ParentID, err)
		}
		unfilled := make(map[string]int, len(po.Items))
		for _, it := range po.Items {
			if n := it.Quantity - it.ReceivedQty; n > 0 {
				unfilled[it.ProductID] += n
			}
		}
		if releasePending(parent, unfilled) {
			commit.Updated = append(commit.Updated, *parent)
		}
	}

	if err := r.repo.CommitPurchaseOrders(ctx, commit); err != nil {
		return nil, err
	}
	po.Status = domain.POStatusCancelled
	po.Version++
	if len(descendants) > 0 {
		r.logger.Info("replacement orders cancelled", zap.String("po_id", po.ID), zap.Int("count", len(descendants)))
	}
	return po, nil
}

// openReplacements returns every replacement order below id that can still
// deliver, already marked cancelled.
func (r *Reconciler) openReplacements(ctx context.Context, id string) ([]domain.PurchaseOrder, error) {
	var out []domain.PurchaseOrder
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		children, err := r.repo.ListReplacementOrders(ctx, queue[0])
		if err != nil {
			return nil, fmt.Errorf("replacements of %s: %w", queue[0], err)
		}
		queue = queue[1:]
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			queue = append(queue, child.ID)
			if child.Status == domain.POStatusReceived || child.Status == domain.POStatusCancelled {
				continue
			}
			child.Status = domain.POStatusCancelled
			out = append(out, child)
		}
	}
	return out, nil
}

// ReceiveFull books everything still outstanding on the order, units awaiting
// replacement included. Open replacement orders below it are cancelled in the
// same commit so those units cannot be booked twice.
func (r *Reconciler) ReceiveFull(ctx context.Context, id string, actor string) (*domain.PurchaseOrderReceiveResponse, error) {
	unlock := r.lock(id)
	defer unlock()

	po, err := r.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !receivable(po.Status) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, po.ID, po.Status)
	}

	cancelled, err := r.openReplacements(ctx, po.ID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	receipts := make([]domain.ReceiveStockItem, 0, len(po.Items))
	good := make(map[string]int, len(po.Items))
	for i := range po.Items {
		item := &po.Items[i]
		if remaining := item.Quantity - item.ReceivedQty; remaining > 0 {
			receipts = append(receipts, domain.ReceiveStockItem{
				ProductID:     item.ProductID,
				Quantity:      remaining,
				UnitCostCents: item.UnitCostCents,
			})
			good[item.ProductID] += remaining
		}
		item.ReceivedQty = item.Quantity
		item.DamagedQty = 0
		item.ReplacementPendingQty = 0
	}
	po.Status = domain.POStatusReceived
	po.ReceivedAt = &now

	return r.commitReceipt(ctx, po, receipts, good, nil, cancelled, actor, now)
}

// ReceivePartial books the good units of each detail line and raises one
// replacement order for everything that arrived damaged. Lines without a
// detail are left as they are.
func (r *Reconciler) ReceivePartial(ctx context.Context, id string, details []domain.ReceiveDetail, actor string) (*domain.PurchaseOrderReceiveResponse, error) {
	if len(details) == 0 {
		return nil, fmt.Errorf("%w: no receipt details", store.ErrInvalidTransaction)
	}
	unlock := r.lock(id)
	defer unlock()

	po, err := r.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !receivable(po.Status) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, po.ID, po.Status)
	}

	items, damaged, err := ApplyReceipt(po.Items, details)
	if err != nil {
		return nil, err
	}
	po.Items = items
	po.Status = Status(items)

	now := r.now()
	if po.Status == domain.POStatusReceived {
		po.ReceivedAt = &now
	}

	receipts := make([]domain.ReceiveStockItem, 0, len(details))
	good := make(map[string]int, len(details))
	for _, d := range details {
		if d.ReceivedQty <= 0 {
			continue
		}
		unitCost := d.UnitCostCents
		if unitCost == 0 {
			unitCost = lineCost(po.Items, d.ProductID)
		}
		receipts = append(receipts, domain.ReceiveStockItem{ProductID: d.ProductID, Quantity: d.ReceivedQty, UnitCostCents: unitCost})
		good[d.ProductID] += d.ReceivedQty
	}

	var replacement *domain.PurchaseOrder
	if len(damaged) > 0 {
		replacement = newReplacement(*po, damaged, actor, now)
	}
	return r.commitReceipt(ctx, po, receipts, good, replacement, nil, actor, now)
}

func (r *Reconciler) commitReceipt(ctx context.Context, po *domain.PurchaseOrder, receipts []domain.ReceiveStockItem, good map[string]int, replacement *domain.PurchaseOrder, cancelled []domain.PurchaseOrder, actor string, now time.Time) (*domain.PurchaseOrderReceiveResponse, error) {
	commit := domain.PurchaseOrderCommit{Updated: []domain.PurchaseOrder{*po}}
	commit.Updated = append(commit.Updated, cancelled...)

	if len(receipts) > 0 {
		posting, err := r.ledger.PlanReceipt(ctx, receipts, receiptNotes(*po), po.ID, actor, now)
		if err != nil {
			return nil, err
		}
		commit.Posting = &posting
	}
	if replacement != nil {
		commit.Created = append(commit.Created, *replacement)
	}

	// Units a replacement delivers settle the pending tally one level up;
	// whatever that clears there settles the next level, and so on.
	seen := map[string]bool{po.ID: true}
	child, carry := po, good
	for child.Kind == domain.POKindReplacement && child.ParentID != "" && len(carry) > 0 && !seen[child.ParentID] {
		parent, err := r.repo.GetPurchaseOrder(ctx, child.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent order %s: %w", child.ParentID, err)
		}
		seen[parent.ID] = true
		carry = ClearReplacement(parent, carry, now)
		if len(carry) == 0 {
			break
		}
		commit.Updated = append(commit.Updated, *parent)
		child = parent
	}

	if err := r.repo.CommitPurchaseOrders(ctx, commit); err != nil {
		return nil, err
	}
	po.Version++
	if replacement != nil {
		replacement.Version = 1
	}

	fields := []zap.Field{zap.String("po_id", po.ID), zap.String("status", po.Status), zap.Int("lines_posted", len(receipts))}
	if replacement != nil {
		fields = append(fields, zap.String("replacement_id", replacement.ID))
	}
	if len(cancelled) > 0 {
		fields = append(fields, zap.Int("replacements_cancelled", len(cancelled)))
	}
	r.logger.Info("purchase order received", fields...)
	return &domain.PurchaseOrderReceiveResponse{PurchaseOrder: *po, Replacement: replacement}, nil
}

// ApplyReceipt adds the supplied tallies to the matching lines and returns
// the damaged quantities, one entry per product in first-seen order.
// Quantities are taken exactly as given; repeated details for one product
// add up.
func ApplyReceipt(items []domain.PurchaseOrderItem, details []domain.ReceiveDetail) ([]domain.PurchaseOrderItem, []domain.PurchaseOrderItem, error) {
	out := make([]domain.PurchaseOrderItem, len(items))
	copy(out, items)

	var damaged []domain.PurchaseOrderItem
	damagedAt := make(map[string]int)
	for _, d := range details {
		if d.ReceivedQty < 0 || d.DamagedQty < 0 {
			return nil, nil, fmt.Errorf("%w: negative tally for %s", store.ErrInvalidTransaction, d.ProductID)
		}
		idx := -1
		for i := range out {
			if out[i].ProductID == d.ProductID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownLine, d.ProductID)
		}
		out[idx].ReceivedQty += d.ReceivedQty
		out[idx].DamagedQty += d.DamagedQty
		out[idx].ReplacementPendingQty += d.DamagedQty
		if d.DamagedQty == 0 {
			continue
		}
		if at, ok := damagedAt[d.ProductID]; ok {
			damaged[at].Quantity += d.DamagedQty
			continue
		}
		damagedAt[d.ProductID] = len(damaged)
		damaged = append(damaged, domain.PurchaseOrderItem{
			ProductID:     out[idx].ProductID,
			ProductName:   out[idx].ProductName,
			Quantity:      d.DamagedQty,
			UnitCostCents: out[idx].UnitCostCents,
		})
	}
	return out, damaged, nil
}

// Status is received once every line is fully in and nothing awaits replacement.
func Status(items []domain.PurchaseOrderItem) string {
	for _, it := range items {
		if it.ReceivedQty < it.Quantity || it.ReplacementPendingQty > 0 {
			return domain.POStatusPartial
		}
	}
	return domain.POStatusReceived
}

// ClearReplacement moves good replacement units from pending to received on
// the parent order and returns how many it cleared per product. The result is
// empty when the parent did not change.
func ClearReplacement(parent *domain.PurchaseOrder, good map[string]int, now time.Time) map[string]int {
	if parent.Status == domain.POStatusCancelled {
		return nil
	}
	var cleared map[string]int
	left := maps.Clone(good)
	for i := range parent.Items {
		item := &parent.Items[i]
		qty := left[item.ProductID]
		if qty <= 0 || item.ReplacementPendingQty == 0 {
			continue
		}
		n := min(qty, item.ReplacementPendingQty)
		item.ReplacementPendingQty -= n
		item.ReceivedQty += n
		left[item.ProductID] -= n
		if cleared == nil {
			cleared = make(map[string]int)
		}
		cleared[item.ProductID] += n
	}
	if len(cleared) == 0 {
		return nil
	}
	parent.Status = Status(parent.Items)
	if parent.Status == domain.POStatusReceived && parent.ReceivedAt == nil {
		parent.ReceivedAt = &now
	}
	return cleared
}

// releasePending drops pending units that a cancelled replacement will never
// deliver. They stay outstanding on the parent.
func releasePending(parent *domain.PurchaseOrder, unfilled map[string]int) bool {
	if parent.Status == domain.POStatusCancelled {
		return false
	}
	changed := false
	left := maps.Clone(unfilled)
	for i := range parent.Items {
		item := &parent.Items[i]
		n := min(left[item.ProductID], item.ReplacementPendingQty)
		if n <= 0 {
			continue
		}
		item.ReplacementPendingQty -= n
		left[item.ProductID] -= n
		changed = true
	}
	if changed {
		parent.Status = Status(parent.Items)
	}
	return changed
}

func newReplacement(parent domain.PurchaseOrder, damaged []domain.PurchaseOrderItem, actor string, now time.Time) *domain.PurchaseOrder {
	var total int64
	for _, it := range damaged {
		total += int64(it.Quantity) * it.UnitCostCents
	}
	return &domain.PurchaseOrder{
		ID:             xid.New("po"),
		SupplierID:     parent.SupplierID,
		SupplierName:   parent.SupplierName,
		Items:          damaged,
		TotalCostCents: total,
		Status:         domain.POStatusSent,
		Kind:           domain.POKindReplacement,
		ParentID:       parent.ID,
		PaymentMode:    parent.PaymentMode,
		Notes:          "Replacement for " + parent.ID,
		CreatedBy:      actor,
		CreatedAt:      now,
	}
}

func (r *Reconciler) fillNames(ctx context.Context, po *domain.PurchaseOrder) error {
	for i := range po.Items {
		product, err := r.repo.GetProduct(ctx, po.Items[i].ProductID)
		if err != nil {
			return fmt.Errorf("product %s: %w", po.Items[i].ProductID, err)
		}
		po.Items[i].ProductName = product.Name
	}
	return nil
}

func receivable(status string) bool {
	return status == domain.POStatusSent || status == domain.POStatusPartial
}

func lineCost(items []domain.PurchaseOrderItem, productID string) int64 {
	for _, it := range items {
		if it.ProductID == productID {
			return it.UnitCostCents
		}
	}
	return 0
}

func receiptNotes(po domain.PurchaseOrder) string {
	if po.SupplierName == "" {
		return "PO " + po.ID
	}
	return "PO " + po.ID + " from " + po.SupplierName
}
