package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

// Store is the in-process repository. One RWMutex guards every entity so
// multi-entity commits (checkout, receipts, returns) are atomic.
type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	taxGroups          map[string]domain.TaxGroup
	movements          []domain.InventoryMovement
	removalTypes       map[string]domain.RemovalType
	discountsByID      map[string]domain.Discount
	discountIDByCode   map[string]string
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]string
	returns            []domain.ReturnRecord
	customersByID      map[string]domain.Customer
	estimationsByID    map[string]domain.Estimation
	shiftsByID         map[string]domain.Shift
	activeShiftByTerm  map[string]string
	expenses           []domain.Expense
	suppliersByID      map[string]domain.Supplier
	purchaseOrdersByID map[string]domain.PurchaseOrder
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		taxGroups:          make(map[string]domain.TaxGroup),
		movements:          make([]domain.InventoryMovement, 0, 256),
		removalTypes:       make(map[string]domain.RemovalType),
		discountsByID:      make(map[string]domain.Discount),
		discountIDByCode:   make(map[string]string),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]string),
		customersByID:      make(map[string]domain.Customer),
		estimationsByID:    make(map[string]domain.Estimation),
		shiftsByID:         make(map[string]domain.Shift),
		activeShiftByTerm:  make(map[string]string),
		suppliersByID:      make(map[string]domain.Supplier),
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	for i := range product.Variants {
		if product.Variants[i].ID == "" {
			product.Variants[i].ID = xid.New("var")
		}
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = cloneProduct(product)
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	existing.Name = product.Name
	existing.Category = product.Category
	existing.PriceCents = product.PriceCents
	existing.CostPriceCents = product.CostPriceCents
	existing.MinStock = product.MinStock
	existing.TaxGroupID = product.TaxGroupID
	existing.TaxInclusive = product.TaxInclusive
	existing.Active = product.Active
	existing.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = existing
	out := cloneProduct(existing)
	return &out, nil
}

func (s *Store) ListTaxGroups(_ context.Context) ([]domain.TaxGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]domain.TaxGroup, 0, len(s.taxGroups))
	for _, g := range s.taxGroups {
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(a, b domain.TaxGroup) int {
		return cmp.Or(cmp.Compare(a.Country, b.Country), cmp.Compare(a.Name, b.Name))
	})
	return groups, nil
}

func (s *Store) UpsertTaxGroup(_ context.Context, group domain.TaxGroup) (*domain.TaxGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group.Name == "" || group.RatePercent < 0 || group.RatePercent > 100 {
		return nil, store.ErrInvalidTransaction
	}
	if group.ID == "" {
		group.ID = xid.New("tg")
	}
	s.taxGroups[group.ID] = group
	out := group
	return &out, nil
}

func (s *Store) ApplyStockPosting(_ context.Context, posting domain.StockPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyPostingLocked(posting, time.Now().UTC())
}

// applyPostingLocked stages every change on copies and only publishes them
// once all resulting stock figures are known to be non-negative.
func (s *Store) applyPostingLocked(posting domain.StockPosting, now time.Time) error {
	staged := make(map[string]domain.Product)
	for _, change := range posting.Changes {
		product, ok := staged[change.ProductID]
		if !ok {
			current, exists := s.products[change.ProductID]
			if !exists {
				return fmt.Errorf("product %s: %w", change.ProductID, store.ErrNotFound)
			}
			product = cloneProduct(current)
		}

		if change.VariantID != "" {
			idx := slices.IndexFunc(product.Variants, func(v domain.ProductVariant) bool { return v.ID == change.VariantID })
			if idx < 0 {
				return fmt.Errorf("variant %s: %w", change.VariantID, store.ErrNotFound)
			}
			next := product.Variants[idx].Stock + change.Delta
			if next < 0 {
				return fmt.Errorf("%w: %s - %s", store.ErrInsufficientStock, product.Name, product.Variants[idx].Name)
			}
			product.Variants[idx].Stock = next
		} else {
			next := product.Stock + change.Delta
			if next < 0 {
				return fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
			}
			product.Stock = next
			if change.CostPriceCents > 0 {
				product.CostPriceCents = change.CostPriceCents
			}
		}
		product.UpdatedAt = now
		staged[product.ID] = product
	}

	for id, product := range staged {
		s.products[id] = product
	}
	for _, movement := range posting.Movements {
		if movement.ID == "" {
			movement.ID = xid.New("mv")
		}
		if movement.CreatedAt.IsZero() {
			movement.CreatedAt = now
		}
		s.movements = append(s.movements, movement)
	}
	return nil
}

func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0, 64)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !m.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateRemovalType(_ context.Context, removalType domain.RemovalType) (*domain.RemovalType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(removalType.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.removalTypes {
		if strings.EqualFold(existing.Name, removalType.Name) {
			return nil, store.ErrConflict
		}
	}
	if removalType.ID == "" {
		removalType.ID = xid.New("rt")
	}
	if removalType.CreatedAt.IsZero() {
		removalType.CreatedAt = time.Now().UTC()
	}
	removalType.Options = slices.Clone(removalType.Options)
	s.removalTypes[removalType.ID] = removalType
	out := removalType
	out.Options = slices.Clone(removalType.Options)
	return &out, nil
}

func (s *Store) GetRemovalType(_ context.Context, id string) (*domain.RemovalType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.removalTypes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rt.Options = slices.Clone(rt.Options)
	return &rt, nil
}

func (s *Store) ListRemovalTypes(_ context.Context) ([]domain.RemovalType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RemovalType, 0, len(s.removalTypes))
	for _, rt := range s.removalTypes {
		rt.Options = slices.Clone(rt.Options)
		out = append(out, rt)
	}
	slices.SortFunc(out, func(a, b domain.RemovalType) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) DeleteRemovalType(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removalTypes[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.removalTypes, id)
	return nil
}

func (s *Store) CreateDiscount(_ context.Context, d domain.Discount) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if d.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, taken := s.discountIDByCode[d.Code]; taken {
		return nil, fmt.Errorf("%w: code %s already exists", store.ErrConflict, d.Code)
	}
	if d.ID == "" {
		d.ID = xid.New("disc")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.discountsByID[d.ID] = d
	s.discountIDByCode[d.Code] = d.ID
	out := d
	return &out, nil
}

func (s *Store) UpdateDiscount(_ context.Context, d domain.Discount) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.discountsByID[d.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if d.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	if owner, taken := s.discountIDByCode[d.Code]; taken && owner != d.ID {
		return nil, fmt.Errorf("%w: code %s already exists", store.ErrConflict, d.Code)
	}
	delete(s.discountIDByCode, existing.Code)
	d.UsageCount = existing.UsageCount
	d.CreatedAt = existing.CreatedAt
	s.discountsByID[d.ID] = d
	s.discountIDByCode[d.Code] = d.ID
	out := d
	return &out, nil
}

func (s *Store) DeleteDiscount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.discountsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.discountIDByCode, existing.Code)
	delete(s.discountsByID, id)
	return nil
}

func (s *Store) GetDiscount(_ context.Context, id string) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.discountsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (s *Store) GetDiscountByCode(_ context.Context, code string) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.discountIDByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, store.ErrNotFound
	}
	d := s.discountsByID[id]
	return &d, nil
}

func (s *Store) ListDiscounts(_ context.Context) ([]domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Discount, 0, len(s.discountsByID))
	for _, d := range s.discountsByID {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b domain.Discount) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *Store) CommitCheckout(_ context.Context, commit domain.CheckoutCommit) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := commit.Transaction
	if tx.IdempotencyKey == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if id, ok := s.transactionsByIdem[tx.IdempotencyKey]; ok {
		return cloneTransaction(s.transactionsByID[id]), nil
	}

	var usedDiscount domain.Discount
	if commit.DiscountID != "" {
		d, ok := s.discountsByID[commit.DiscountID]
		if !ok {
			return nil, fmt.Errorf("discount %s: %w", commit.DiscountID, store.ErrNotFound)
		}
		if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
			return nil, store.ErrUsageLimitReached
		}
		usedDiscount = d
	}
	var customer domain.Customer
	if tx.CustomerID != "" {
		c, ok := s.customersByID[tx.CustomerID]
		if !ok {
			return nil, fmt.Errorf("customer %s: %w", tx.CustomerID, store.ErrNotFound)
		}
		customer = c
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if err := s.applyPostingLocked(commit.Posting, tx.CreatedAt); err != nil {
		return nil, err
	}

	if commit.DiscountID != "" {
		usedDiscount.UsageCount++
		s.discountsByID[usedDiscount.ID] = usedDiscount
	}
	if tx.CustomerID != "" {
		visit := tx.CreatedAt
		customer.LoyaltyPoints += commit.LoyaltyPoints
		customer.TotalSpentCents += tx.TotalCents
		customer.LastVisit = &visit
		s.customersByID[customer.ID] = customer
	}
	for _, id := range commit.EstimationIDs {
		est, ok := s.estimationsByID[id]
		if !ok || est.Status != domain.EstimationActive {
			continue
		}
		est.Status = domain.EstimationConverted
		est.UpdatedAt = tx.CreatedAt
		s.estimationsByID[id] = est
	}

	saved := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = saved
	s.transactionsByIdem[tx.IdempotencyKey] = tx.ID
	return cloneTransaction(saved), nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.transactionsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(s.transactionsByID[id]), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if !from.IsZero() && tx.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	slices.SortFunc(out, func(a, b domain.Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateReturn(_ context.Context, record domain.ReturnRecord, posting domain.StockPosting) (*domain.ReturnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(record.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if record.TransactionID != "" {
		if _, ok := s.transactionsByID[record.TransactionID]; !ok {
			return nil, fmt.Errorf("transaction %s: %w", record.TransactionID, store.ErrNotFound)
		}
	}
	if record.ID == "" {
		record.ID = xid.New("ret")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := s.applyPostingLocked(posting, record.CreatedAt); err != nil {
		return nil, err
	}
	record.Items = slices.Clone(record.Items)
	s.returns = append(s.returns, record)
	out := record
	out.Items = slices.Clone(record.Items)
	return &out, nil
}

func (s *Store) GetReturnedQtyByTransaction(_ context.Context, transactionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int)
	for _, r := range s.returns {
		if r.TransactionID != transactionID {
			continue
		}
		for _, item := range r.Items {
			result[store.ReturnKey(item.ProductID, item.VariantID)] += item.Quantity
		}
	}
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	out := customer
	return &out, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customersByID[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// loyalty figures only move through checkout
	customer.LoyaltyPoints = existing.LoyaltyPoints
	customer.TotalSpentCents = existing.TotalSpentCents
	customer.LastVisit = existing.LastVisit
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	out := customer
	return &out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCustomers(_ context.Context, search string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Email), needle) &&
			!strings.Contains(c.Phone, needle) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateEstimation(_ context.Context, est domain.Estimation) (*domain.Estimation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(est.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if est.ID == "" {
		est.ID = xid.New("est")
	}
	est.Items = cloneLineItems(est.Items)
	s.estimationsByID[est.ID] = est
	out := est
	out.Items = cloneLineItems(est.Items)
	return &out, nil
}

func (s *Store) UpdateEstimation(_ context.Context, est domain.Estimation) (*domain.Estimation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.estimationsByID[est.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	est.CreatedAt = existing.CreatedAt
	est.CreatedBy = existing.CreatedBy
	est.Items = cloneLineItems(est.Items)
	s.estimationsByID[est.ID] = est
	out := est
	out.Items = cloneLineItems(est.Items)
	return &out, nil
}

func (s *Store) GetEstimation(_ context.Context, id string) (*domain.Estimation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	est, ok := s.estimationsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	est.Items = cloneLineItems(est.Items)
	return &est, nil
}

func (s *Store) ListEstimations(_ context.Context, status string) ([]domain.Estimation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Estimation, 0, len(s.estimationsByID))
	for _, est := range s.estimationsByID {
		if status != "" && est.Status != status {
			continue
		}
		est.Items = cloneLineItems(est.Items)
		out = append(out, est)
	}
	slices.SortFunc(out, func(a, b domain.Estimation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) DeleteEstimation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.estimationsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.estimationsByID, id)
	return nil
}

func (s *Store) ExpireEstimations(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, est := range s.estimationsByID {
		if est.Status != domain.EstimationActive || est.ExpiresAt.IsZero() || !now.After(est.ExpiresAt) {
			continue
		}
		est.Status = domain.EstimationExpired
		est.UpdatedAt = now
		s.estimationsByID[id] = est
		expired++
	}
	return expired, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shift.TerminalID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, open := s.activeShiftByTerm[shift.TerminalID]; open {
		return nil, fmt.Errorf("%w: shift already open on %s", store.ErrConflict, shift.TerminalID)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	shift.Status = domain.ShiftStatusActive
	s.shiftsByID[shift.ID] = shift
	s.activeShiftByTerm[shift.TerminalID] = shift.ID
	out := shift
	return &out, nil
}

func (s *Store) GetActiveShift(_ context.Context, terminalID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeShiftByTerm[terminalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[id]
	return &shift, nil
}

func (s *Store) CloseActiveShift(_ context.Context, terminalID string, endingCashCents int64, notes string, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.activeShiftByTerm[terminalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[id]
	shift.TotalSalesCents = 0
	shift.TotalTransactions = 0
	for _, tx := range s.transactionsByID {
		if tx.ShiftID != shift.ID {
			continue
		}
		shift.TotalSalesCents += tx.TotalCents
		shift.TotalTransactions++
	}
	shift.EndingCashCents = endingCashCents
	shift.Notes = notes
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt
	s.shiftsByID[id] = shift
	delete(s.activeShiftByTerm, terminalID)
	out := shift
	return &out, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.Description == "" || expense.AmountCents <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expenses = append(s.expenses, expense)
	out := expense
	return &out, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !e.Date.Before(to) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.suppliersByID {
		if strings.EqualFold(existing.Name, supplier.Name) {
			return nil, store.ErrConflict
		}
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	out := supplier
	return &out, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		out = append(out, supplier)
	}
	slices.SortFunc(out, func(a, b domain.Supplier) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrdersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if status != "" && po.Status != status {
			continue
		}
		out = append(out, clonePurchaseOrder(po))
	}
	slices.SortFunc(out, func(a, b domain.PurchaseOrder) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListReplacementOrders(_ context.Context, parentID string) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PurchaseOrder
	for _, po := range s.purchaseOrdersByID {
		if po.ParentID == parentID {
			out = append(out, clonePurchaseOrder(po))
		}
	}
	slices.SortFunc(out, func(a, b domain.PurchaseOrder) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) CommitPurchaseOrders(_ context.Context, commit domain.PurchaseOrderCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, po := range commit.Updated {
		current, ok := s.purchaseOrdersByID[po.ID]
		if !ok {
			return fmt.Errorf("purchase order %s: %w", po.ID, store.ErrNotFound)
		}
		if current.Version != po.Version {
			return fmt.Errorf("purchase order %s: %w", po.ID, store.ErrConflict)
		}
	}
	for _, po := range commit.Created {
		if po.ID == "" || len(po.Items) == 0 {
			return store.ErrInvalidTransaction
		}
		if _, exists := s.purchaseOrdersByID[po.ID]; exists {
			return fmt.Errorf("purchase order %s: %w", po.ID, store.ErrConflict)
		}
	}
	if commit.Posting != nil {
		if err := s.applyPostingLocked(*commit.Posting, time.Now().UTC()); err != nil {
			return err
		}
	}

	for _, po := range commit.Updated {
		po.Version++
		s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	}
	for _, po := range commit.Created {
		po.Version = 1
		s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return cmp.Compare(a.Username, b.Username) })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	p.Variants = slices.Clone(p.Variants)
	return p
}

func cloneLineItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	for i, it := range items {
		if it.ItemDiscount != nil {
			d := *it.ItemDiscount
			it.ItemDiscount = &d
		}
		out[i] = it
	}
	return out
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Items = cloneLineItems(src.Items)
	dst.Payments = slices.Clone(src.Payments)
	return &dst
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dst := src
	dst.Items = slices.Clone(src.Items)
	if src.ReceivedAt != nil {
		at := *src.ReceivedAt
		dst.ReceivedAt = &at
	}
	return dst
}
