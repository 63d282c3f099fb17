package store

import (
	"context"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflicting update")
	ErrUsageLimitReached  = errors.New("discount usage limit reached")
)

type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct rewrites catalog fields. Stock figures are left alone;
	// they only move through ApplyStockPosting.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListTaxGroups(ctx context.Context) ([]domain.TaxGroup, error)
	UpsertTaxGroup(ctx context.Context, group domain.TaxGroup) (*domain.TaxGroup, error)
}

type InventoryRepository interface {
	ApplyStockPosting(ctx context.Context, posting domain.StockPosting) error
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)
	CreateRemovalType(ctx context.Context, removalType domain.RemovalType) (*domain.RemovalType, error)
	GetRemovalType(ctx context.Context, id string) (*domain.RemovalType, error)
	ListRemovalTypes(ctx context.Context) ([]domain.RemovalType, error)
	DeleteRemovalType(ctx context.Context, id string) error
}

type DiscountRepository interface {
	CreateDiscount(ctx context.Context, discount domain.Discount) (*domain.Discount, error)
	UpdateDiscount(ctx context.Context, discount domain.Discount) (*domain.Discount, error)
	DeleteDiscount(ctx context.Context, id string) error
	GetDiscount(ctx context.Context, id string) (*domain.Discount, error)
	GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error)
	ListDiscounts(ctx context.Context) ([]domain.Discount, error)
}

type PurchaseOrderRepository interface {
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	ListReplacementOrders(ctx context.Context, parentID string) ([]domain.PurchaseOrder, error)
	CommitPurchaseOrders(ctx context.Context, commit domain.PurchaseOrderCommit) error
}

type Repository interface {
	ProductRepository
	InventoryRepository
	DiscountRepository
	PurchaseOrderRepository

	CommitCheckout(ctx context.Context, commit domain.CheckoutCommit) (*domain.Transaction, error)
	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)

	CreateReturn(ctx context.Context, record domain.ReturnRecord, posting domain.StockPosting) (*domain.ReturnRecord, error)
	GetReturnedQtyByTransaction(ctx context.Context, transactionID string) (map[string]int, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, search string) ([]domain.Customer, error)

	CreateEstimation(ctx context.Context, estimation domain.Estimation) (*domain.Estimation, error)
	UpdateEstimation(ctx context.Context, estimation domain.Estimation) (*domain.Estimation, error)
	GetEstimation(ctx context.Context, id string) (*domain.Estimation, error)
	ListEstimations(ctx context.Context, status string) ([]domain.Estimation, error)
	DeleteEstimation(ctx context.Context, id string) error
	ExpireEstimations(ctx context.Context, now time.Time) (int, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, terminalID string) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, terminalID string, endingCashCents int64, notes string, closedAt time.Time) (*domain.Shift, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ReturnKey identifies a sold line for return bookkeeping.
func ReturnKey(productID string, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "/" + variantID
}
