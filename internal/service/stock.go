package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/inventory"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// lockReturn serializes returns against the same sale so the already-returned
// tally cannot be read twice before either return is stored.
func (s *Service) lockReturn(transactionID string) func() {
	v, _ := s.returnLocks.LoadOrStore(transactionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.ReceiveStockRequest) ([]domain.InventoryMovement, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(req.Notes)
	if req.SupplierID != "" {
		supplier, err := s.repo.GetSupplier(ctx, req.SupplierID)
		if err != nil {
			return nil, fmt.Errorf("supplier %s: %w", req.SupplierID, err)
		}
		notes = strings.TrimSpace("Supplier: " + supplier.Name + ". " + notes)
	}

	posting, err := s.ledger.ApplyReceiptMovement(ctx, req.Items, notes, actorName(ctx), s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "stock_receive", "inventory", firstReference(posting), fmt.Sprintf("lines=%d,supplier=%s", len(posting.Movements), req.SupplierID))
	return posting.Movements, nil
}

func (s *Service) RemoveStock(ctx context.Context, req domain.RemoveStockRequest) (domain.InventoryMovement, error) {
	if err := s.check(req); err != nil {
		return domain.InventoryMovement{}, err
	}
	removalType, err := s.repo.GetRemovalType(ctx, req.RemovalTypeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.InventoryMovement{}, fmt.Errorf("%w: unknown removal type %s", store.ErrInvalidTransaction, req.RemovalTypeID)
		}
		return domain.InventoryMovement{}, err
	}
	option := strings.TrimSpace(req.UnitOption)
	if option != "" && len(removalType.Options) > 0 && !containsFold(removalType.Options, option) {
		return domain.InventoryMovement{}, fmt.Errorf("%w: %q is not an option of %s", store.ErrInvalidTransaction, option, removalType.Name)
	}

	reason := inventory.RemovalReason(removalType.Name, removalType.UnitType, option)
	movement, err := s.ledger.ApplyManualRemoval(ctx, req.ProductID, req.Quantity, reason, strings.TrimSpace(req.Notes), actorName(ctx), s.now())
	if err != nil {
		return domain.InventoryMovement{}, err
	}
	s.logAudit(ctx, "stock_remove", "product", req.ProductID, fmt.Sprintf("qty=%d,reason=%s", req.Quantity, reason))
	return movement, nil
}

func (s *Service) CountStock(ctx context.Context, req domain.StockCountRequest) (domain.StockCountResponse, error) {
	if err := s.check(req); err != nil {
		return domain.StockCountResponse{}, err
	}
	resp, err := s.ledger.ApplyStockCount(ctx, req.ProductID, req.CountedQty, strings.TrimSpace(req.Reason), strings.TrimSpace(req.Notes), actorName(ctx), s.now())
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	if resp.DeltaQty != 0 {
		s.logAudit(ctx, "stock_count", "product", resp.ProductID, fmt.Sprintf("system=%d,counted=%d", resp.SystemQty, resp.CountedQty))
	}
	return resp, nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	if filter.Limit < 1 {
		filter.Limit = 200
	}
	return s.ledger.History(ctx, filter)
}

func (s *Service) Reconcile(ctx context.Context, productID string) (domain.StockReconciliation, error) {
	return s.ledger.Reconcile(ctx, strings.TrimSpace(productID))
}

// ProcessReturn restocks returned goods. Against a stored sale, each line may
// only be returned up to what was bought minus what earlier returns took back,
// and the refund is the share of the amount actually paid.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnRecord, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.check(req); err != nil {
		return domain.ReturnRecord{}, err
	}

	var refund int64
	if req.TransactionID != "" {
		unlock := s.lockReturn(req.TransactionID)
		defer unlock()

		tx, err := s.repo.FindTransactionByID(ctx, req.TransactionID)
		if err != nil {
			return domain.ReturnRecord{}, err
		}
		returned, err := s.repo.GetReturnedQtyByTransaction(ctx, tx.ID)
		if err != nil {
			return domain.ReturnRecord{}, err
		}
		refund, err = refundFor(*tx, req.Items, returned)
		if err != nil {
			return domain.ReturnRecord{}, err
		}
	} else {
		for _, item := range req.Items {
			product, err := s.repo.GetProduct(ctx, item.ProductID)
			if err != nil {
				return domain.ReturnRecord{}, err
			}
			unit := product.PriceCents
			if item.VariantID != "" {
				variant, ok := product.Variant(item.VariantID)
				if !ok {
					return domain.ReturnRecord{}, fmt.Errorf("variant %s: %w", item.VariantID, store.ErrNotFound)
				}
				unit += variant.PriceModifierCents
			}
			refund += unit * int64(item.Quantity)
		}
	}

	now := s.now()
	actor := actorName(ctx)
	posting, err := s.ledger.PlanReturn(ctx, req.Items, req.Reason, req.TransactionID, actor, now)
	if err != nil {
		return domain.ReturnRecord{}, err
	}
	record, err := s.repo.CreateReturn(ctx, domain.ReturnRecord{
		ID:            xid.New("ret"),
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
		Items:         req.Items,
		RefundCents:   refund,
		ProcessedBy:   actor,
		CreatedAt:     now,
	}, posting)
	if err != nil {
		return domain.ReturnRecord{}, err
	}

	s.invalidateReport(ctx, now)
	s.logAudit(ctx, "return", "transaction", req.TransactionID, fmt.Sprintf("return_id=%s,refund=%d,items=%d", record.ID, record.RefundCents, len(record.Items)))
	return *record, nil
}

// refundFor validates return quantities against the sale and prices them at
// the sale's effective prices scaled by total over subtotal, so order
// discounts and tax are refunded in proportion. Lines sold more than once in
// one sale are priced at their combined average.
func refundFor(tx domain.Transaction, items []domain.ReturnItem, alreadyReturned map[string]int) (int64, error) {
	sold := make(map[string]domain.LineItem, len(tx.Items))
	for _, line := range tx.Items {
		key := store.ReturnKey(line.ProductID, line.VariantID)
		if prev, ok := sold[key]; ok {
			line.Quantity += prev.Quantity
			line.LineTotalCents += prev.LineTotalCents
		}
		sold[key] = line
	}

	requested := make(map[string]int, len(items))
	gross := decimal.Zero
	for _, item := range items {
		key := store.ReturnKey(item.ProductID, item.VariantID)
		line, ok := sold[key]
		if !ok {
			return 0, fmt.Errorf("%w: %s was not part of transaction %s", store.ErrInvalidTransaction, key, tx.ID)
		}
		requested[key] += item.Quantity
		if requested[key]+alreadyReturned[key] > line.Quantity {
			return 0, fmt.Errorf("%w: %s return exceeds purchased quantity (%d bought, %d already returned)",
				store.ErrInvalidTransaction, key, line.Quantity, alreadyReturned[key])
		}
		gross = gross.Add(decimal.NewFromInt(line.LineTotalCents).
			Mul(decimal.NewFromInt(int64(item.Quantity))).
			Div(decimal.NewFromInt(int64(line.Quantity))))
	}
	if tx.SubtotalCents <= 0 {
		return 0, nil
	}
	return gross.Mul(decimal.NewFromInt(tx.TotalCents)).Div(decimal.NewFromInt(tx.SubtotalCents)).Round(0).IntPart(), nil
}

func (s *Service) ListRemovalTypes(ctx context.Context) ([]domain.RemovalType, error) {
	return s.repo.ListRemovalTypes(ctx)
}

func (s *Service) CreateRemovalType(ctx context.Context, req domain.RemovalTypeRequest) (domain.RemovalType, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.RemovalType{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.RemovalType{}, err
	}
	options := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	created, err := s.repo.CreateRemovalType(ctx, domain.RemovalType{
		ID:        xid.New("rt"),
		Name:      req.Name,
		UnitType:  strings.TrimSpace(req.UnitType),
		Options:   options,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.RemovalType{}, err
	}
	s.logAudit(ctx, "removal_type_create", "removal_type", created.ID, created.Name)
	return *created, nil
}

func (s *Service) DeleteRemovalType(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteRemovalType(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logAudit(ctx, "removal_type_delete", "removal_type", id, "")
	return nil
}

func firstReference(posting domain.StockPosting) string {
	for _, m := range posting.Movements {
		if m.Reference != "" {
			return m.Reference
		}
	}
	return ""
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
