// Package inventory keeps product stock and the append-only movement log in
// step. Every stock change is planned as a domain.StockPosting and committed
// by the repository as one unit, so product.Stock always equals the net sum
// of the product's movements.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const (
	ReasonSale           = "Sale"
	ReasonStockReceiving = "Stock Receiving"
	ReasonOpeningStock   = "Opening Stock"
	ReasonStockCount     = "Stock Count"
)

var ErrInvalidQuantity = errors.New("quantity must be positive")

type Repository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ApplyStockPosting(ctx context.Context, posting domain.StockPosting) error
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)
}

type Ledger struct {
	repo   Repository
	logger *zap.Logger
}

func NewLedger(repo Repository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, logger: logger.Named("inventory")}
}

// PlanSale builds the posting for a completed sale: product stock drops by
// the total quantity per product, a selected variant's stock drops by its own
// line, and every cart line gets one "out" movement.
func PlanSale(lines []domain.CartLine, transactionID string, actor string, now time.Time) domain.StockPosting {
	var posting domain.StockPosting
	perProduct := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))

	for _, line := range lines {
		if _, seen := perProduct[line.Product.ID]; !seen {
			order = append(order, line.Product.ID)
		}
		perProduct[line.Product.ID] += line.Quantity

		reason := ReasonSale
		movement := domain.InventoryMovement{
			ID:          xid.New("mv"),
			ProductID:   line.Product.ID,
			ProductName: line.Product.Name,
			Type:        domain.MovementOut,
			Quantity:    line.Quantity,
			Reference:   transactionID,
			User:        actor,
			CreatedAt:   now,
		}
		if line.Variant != nil {
			reason = ReasonSale + " - " + line.Variant.Name
			movement.VariantID = line.Variant.ID
			movement.VariantName = line.Variant.Name
			posting.Changes = append(posting.Changes, domain.StockChange{
				ProductID: line.Product.ID,
				VariantID: line.Variant.ID,
				Delta:     -line.Quantity,
			})
		}
		movement.Reason = reason
		posting.Movements = append(posting.Movements, movement)
	}
	for _, productID := range order {
		posting.Changes = append(posting.Changes, domain.StockChange{ProductID: productID, Delta: -perProduct[productID]})
	}
	return posting
}

// ApplySaleMovement commits a sale posting on its own. Checkout normally
// commits PlanSale together with the transaction instead.
func (l *Ledger) ApplySaleMovement(ctx context.Context, lines []domain.CartLine, transactionID string, actor string, now time.Time) (domain.StockPosting, error) {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.StockPosting{}, ErrInvalidQuantity
		}
	}
	posting := PlanSale(lines, transactionID, actor, now)
	return posting, l.commit(ctx, "sale", posting)
}

// PlanReturn restocks returned items with "return" movements.
func (l *Ledger) PlanReturn(ctx context.Context, items []domain.ReturnItem, reason string, transactionRef string, actor string, now time.Time) (domain.StockPosting, error) {
	reason = strings.TrimSpace(reason)
	var posting domain.StockPosting
	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.StockPosting{}, ErrInvalidQuantity
		}
		product, err := l.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.StockPosting{}, fmt.Errorf("return %s: %w", item.ProductID, err)
		}
		movement := domain.InventoryMovement{
			ID:          xid.New("mv"),
			ProductID:   product.ID,
			ProductName: product.Name,
			Type:        domain.MovementReturn,
			Quantity:    item.Quantity,
			Reason:      "Return: " + reason,
			Reference:   transactionRef,
			User:        actor,
			Notes:       "Return processed - " + reason,
			CreatedAt:   now,
		}
		posting.Changes = append(posting.Changes, domain.StockChange{ProductID: product.ID, Delta: item.Quantity})
		if item.VariantID != "" {
			variant, ok := product.Variant(item.VariantID)
			if !ok {
				return domain.StockPosting{}, fmt.Errorf("return %s/%s: %w", item.ProductID, item.VariantID, store.ErrNotFound)
			}
			movement.VariantID = variant.ID
			movement.VariantName = variant.Name
			posting.Changes = append(posting.Changes, domain.StockChange{ProductID: product.ID, VariantID: variant.ID, Delta: item.Quantity})
		}
		posting.Movements = append(posting.Movements, movement)
	}
	return posting, nil
}

func (l *Ledger) ApplyReturnMovement(ctx context.Context, items []domain.ReturnItem, reason string, transactionRef string, actor string, now time.Time) (domain.StockPosting, error) {
	posting, err := l.PlanReturn(ctx, items, reason, transactionRef, actor, now)
	if err != nil {
		return domain.StockPosting{}, err
	}
	return posting, l.commit(ctx, "return", posting)
}

// PlanReceipt adds received goods and sets the product cost price to the
// received unit cost (last-in). reference groups the movements of one
// receiving; a fresh one is generated when empty.
func (l *Ledger) PlanReceipt(ctx context.Context, items []domain.ReceiveStockItem, notes string, reference string, actor string, now time.Time) (domain.StockPosting, error) {
	if reference == "" {
		reference = xid.New("rcv")
	}
	var posting domain.StockPosting
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if item.UnitCostCents < 0 {
			return domain.StockPosting{}, fmt.Errorf("%w: negative unit cost", store.ErrInvalidTransaction)
		}
		product, err := l.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.StockPosting{}, fmt.Errorf("receive %s: %w", item.ProductID, err)
		}
		posting.Changes = append(posting.Changes, domain.StockChange{
			ProductID:      product.ID,
			Delta:          item.Quantity,
			CostPriceCents: item.UnitCostCents,
		})
		posting.Movements = append(posting.Movements, domain.InventoryMovement{
			ID:            xid.New("mv"),
			ProductID:     product.ID,
			ProductName:   product.Name,
			Type:          domain.MovementIn,
			Quantity:      item.Quantity,
			Reason:        ReasonStockReceiving,
			Reference:     reference,
			User:          actor,
			Notes:         notes,
			UnitCostCents: item.UnitCostCents,
			CreatedAt:     now,
		})
	}
	return posting, nil
}

func (l *Ledger) ApplyReceiptMovement(ctx context.Context, items []domain.ReceiveStockItem, notes string, actor string, now time.Time) (domain.StockPosting, error) {
	posting, err := l.PlanReceipt(ctx, items, notes, "", actor, now)
	if err != nil {
		return domain.StockPosting{}, err
	}
	return posting, l.commit(ctx, "receipt", posting)
}

// RemovalReason formats the reason of a manual removal, e.g. "Damaged (Box: 12 pcs)".
func RemovalReason(removalType string, unitType string, unitOption string) string {
	reason := strings.TrimSpace(removalType)
	unitType = strings.TrimSpace(unitType)
	unitOption = strings.TrimSpace(unitOption)
	if unitType != "" && unitOption != "" {
		reason += fmt.Sprintf(" (%s: %s)", unitType, unitOption)
	}
	return reason
}

// ApplyManualRemoval takes stock out for damage, loss, internal use and the like.
func (l *Ledger) ApplyManualRemoval(ctx context.Context, productID string, quantity int, reason string, notes string, actor string, now time.Time) (domain.InventoryMovement, error) {
	if quantity <= 0 {
		return domain.InventoryMovement{}, ErrInvalidQuantity
	}
	product, err := l.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.InventoryMovement{}, err
	}
	if quantity > product.Stock {
		return domain.InventoryMovement{}, store.ErrInsufficientStock
	}
	movement := domain.InventoryMovement{
		ID:          xid.New("mv"),
		ProductID:   product.ID,
		ProductName: product.Name,
		Type:        domain.MovementOut,
		Quantity:    quantity,
		Reason:      reason,
		User:        actor,
		Notes:       notes,
		CreatedAt:   now,
	}
	posting := domain.StockPosting{
		Changes:   []domain.StockChange{{ProductID: product.ID, Delta: -quantity}},
		Movements: []domain.InventoryMovement{movement},
	}
	return movement, l.commit(ctx, "removal", posting)
}

// ApplyStockCount brings stock to a counted figure by posting the difference.
func (l *Ledger) ApplyStockCount(ctx context.Context, productID string, counted int, reason string, notes string, actor string, now time.Time) (domain.StockCountResponse, error) {
	if counted < 0 {
		return domain.StockCountResponse{}, ErrInvalidQuantity
	}
	product, err := l.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	resp := domain.StockCountResponse{
		ProductID:  product.ID,
		SystemQty:  product.Stock,
		CountedQty: counted,
		DeltaQty:   counted - product.Stock,
	}
	if resp.DeltaQty == 0 {
		return resp, nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = ReasonStockCount
	}

	movement := domain.InventoryMovement{
		ID:          xid.New("mv"),
		ProductID:   product.ID,
		ProductName: product.Name,
		Type:        domain.MovementIn,
		Quantity:    resp.DeltaQty,
		Reason:      reason,
		User:        actor,
		Notes:       notes,
		CreatedAt:   now,
	}
	if resp.DeltaQty < 0 {
		movement.Type = domain.MovementOut
		movement.Quantity = -resp.DeltaQty
	}
	posting := domain.StockPosting{
		Changes:   []domain.StockChange{{ProductID: product.ID, Delta: resp.DeltaQty}},
		Movements: []domain.InventoryMovement{movement},
	}
	if err := l.commit(ctx, "count", posting); err != nil {
		return domain.StockCountResponse{}, err
	}
	resp.Movement = &movement
	return resp, nil
}

// PlanOpeningStock records the stock a product is created with.
func PlanOpeningStock(product domain.Product, quantity int, actor string, now time.Time) domain.StockPosting {
	if quantity <= 0 {
		return domain.StockPosting{}
	}
	return domain.StockPosting{
		Changes: []domain.StockChange{{ProductID: product.ID, Delta: quantity}},
		Movements: []domain.InventoryMovement{{
			ID:            xid.New("mv"),
			ProductID:     product.ID,
			ProductName:   product.Name,
			Type:          domain.MovementIn,
			Quantity:      quantity,
			Reason:        ReasonOpeningStock,
			User:          actor,
			UnitCostCents: product.CostPriceCents,
			CreatedAt:     now,
		}},
	}
}

func (l *Ledger) ApplyOpeningStock(ctx context.Context, product domain.Product, quantity int, actor string, now time.Time) error {
	posting := PlanOpeningStock(product, quantity, actor, now)
	if posting.Empty() {
		return nil
	}
	return l.commit(ctx, "opening", posting)
}

func (l *Ledger) History(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	return l.repo.ListMovements(ctx, filter)
}

// Project folds movements into a net stock figure: in - out + return.
func Project(movements []domain.InventoryMovement) int {
	net := 0
	for _, m := range movements {
		switch m.Type {
		case domain.MovementIn, domain.MovementReturn:
			net += m.Quantity
		case domain.MovementOut:
			net -= m.Quantity
		}
	}
	return net
}

// Reconcile compares the cached product stock with the movement log.
func (l *Ledger) Reconcile(ctx context.Context, productID string) (domain.StockReconciliation, error) {
	product, err := l.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockReconciliation{}, err
	}
	movements, err := l.repo.ListMovements(ctx, domain.MovementFilter{ProductID: productID})
	if err != nil {
		return domain.StockReconciliation{}, err
	}
	ledger := Project(movements)
	rec := domain.StockReconciliation{
		ProductID:    product.ID,
		CachedStock:  product.Stock,
		LedgerStock:  ledger,
		Drift:        product.Stock - ledger,
		MovementSeen: len(movements),
	}
	if rec.Drift != 0 {
		l.logger.Warn("stock drift detected",
			zap.String("product_id", product.ID),
			zap.Int("cached", product.Stock),
			zap.Int("ledger", ledger),
		)
	}
	return rec, nil
}

// Commit applies a posting planned elsewhere.
func (l *Ledger) Commit(ctx context.Context, kind string, posting domain.StockPosting) error {
	return l.commit(ctx, kind, posting)
}

func (l *Ledger) commit(ctx context.Context, kind string, posting domain.StockPosting) error {
	if posting.Empty() {
		return nil
	}
	if err := l.repo.ApplyStockPosting(ctx, posting); err != nil {
		return err
	}
	l.logger.Debug("stock posted",
		zap.String("kind", kind),
		zap.Int("changes", len(posting.Changes)),
		zap.Int("movements", len(posting.Movements)),
	)
	return nil
}
