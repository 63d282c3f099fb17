package domain

import "time"

type ProductVariant struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Value              string `json:"value"`
	PriceModifierCents int64  `json:"price_modifier_cents"`
	Stock              int    `json:"stock"`
	IsDefault          bool   `json:"is_default"`
}

type Product struct {
	ID             string           `json:"id"`
	SKU            string           `json:"sku"`
	Name           string           `json:"name"`
	Category       string           `json:"category"`
	PriceCents     int64            `json:"price_cents"`
	CostPriceCents int64            `json:"cost_price_cents"`
	Stock          int              `json:"stock"`
	MinStock       int              `json:"min_stock"`
	TaxGroupID     string           `json:"tax_group_id,omitempty"`
	TaxInclusive   bool             `json:"tax_inclusive"`
	Active         bool             `json:"active"`
	Variants       []ProductVariant `json:"variants,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return ProductVariant{}, false
}

type ProductCreateRequest struct {
	SKU            string           `json:"sku" validate:"required,max=64"`
	Name           string           `json:"name" validate:"required,max=200"`
	Category       string           `json:"category" validate:"required,max=100"`
	PriceCents     int64            `json:"price_cents" validate:"gte=0"`
	CostPriceCents int64            `json:"cost_price_cents" validate:"gte=0"`
	InitialStock   int              `json:"initial_stock" validate:"gte=0"`
	MinStock       int              `json:"min_stock" validate:"gte=0"`
	TaxGroupID     string           `json:"tax_group_id"`
	TaxInclusive   bool             `json:"tax_inclusive"`
	Variants       []ProductVariant `json:"variants" validate:"dive"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty"`
	MinStock       *int    `json:"min_stock,omitempty"`
	TaxGroupID     *string `json:"tax_group_id,omitempty"`
	TaxInclusive   *bool   `json:"tax_inclusive,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type TaxGroup struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	RatePercent float64 `json:"rate_percent"`
}

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// ItemDiscount is a per-line discount. At most one applies to a line.
type ItemDiscount struct {
	Type        string  `json:"type" validate:"oneof=percentage fixed"`
	Percent     float64 `json:"percent,omitempty" validate:"gte=0,lte=100"`
	AmountCents int64   `json:"amount_cents,omitempty" validate:"gte=0"`
}

// CartLineRequest is the client-supplied form of a cart line.
type CartLineRequest struct {
	ProductID    string        `json:"product_id" validate:"required"`
	VariantID    string        `json:"variant_id,omitempty"`
	Quantity     int           `json:"quantity" validate:"gt=0"`
	ItemDiscount *ItemDiscount `json:"item_discount,omitempty"`
}

// CartLine is an admitted cart line carrying the catalog snapshot it was priced from.
type CartLine struct {
	Product      Product
	Variant      *ProductVariant
	Quantity     int
	ItemDiscount *ItemDiscount
}

func (l CartLine) VariantID() string {
	if l.Variant == nil {
		return ""
	}
	return l.Variant.ID
}

// LineItem is the frozen form of a cart line stored on transactions and estimations.
type LineItem struct {
	ProductID               string        `json:"product_id"`
	ProductName             string        `json:"product_name"`
	SKU                     string        `json:"sku"`
	VariantID               string        `json:"variant_id,omitempty"`
	VariantName             string        `json:"variant_name,omitempty"`
	Quantity                int           `json:"quantity"`
	UnitPriceCents          int64         `json:"unit_price_cents"`
	ItemDiscount            *ItemDiscount `json:"item_discount,omitempty"`
	EffectiveUnitPriceCents int64         `json:"effective_unit_price_cents"`
	LineTotalCents          int64         `json:"line_total_cents"`
	TaxCents                int64         `json:"tax_cents"`
	TaxGroupID              string        `json:"tax_group_id,omitempty"`
	TaxInclusive            bool          `json:"tax_inclusive"`
}

type Discount struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Percent          float64   `json:"percent,omitempty"`
	AmountCents      int64     `json:"amount_cents,omitempty"`
	MaxDiscountCents int64     `json:"max_discount_cents,omitempty"`
	MinPurchaseCents int64     `json:"min_purchase_cents,omitempty"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	UsageLimit       int       `json:"usage_limit,omitempty"`
	UsageCount       int       `json:"usage_count"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type DiscountRequest struct {
	Code             string    `json:"code" validate:"required,max=40"`
	Name             string    `json:"name" validate:"required,max=120"`
	Type             string    `json:"type" validate:"required,oneof=percentage fixed"`
	Percent          float64   `json:"percent" validate:"gte=0,lte=100"`
	AmountCents      int64     `json:"amount_cents" validate:"gte=0"`
	MaxDiscountCents int64     `json:"max_discount_cents" validate:"gte=0"`
	MinPurchaseCents int64     `json:"min_purchase_cents" validate:"gte=0"`
	StartsAt         time.Time `json:"starts_at" validate:"required"`
	EndsAt           time.Time `json:"ends_at" validate:"required,gtefield=StartsAt"`
	UsageLimit       int       `json:"usage_limit" validate:"gte=0"`
	Active           *bool     `json:"active,omitempty"`
}

type Totals struct {
	SubtotalCents         int64      `json:"subtotal_cents"`
	DiscountCents         int64      `json:"discount_cents"`
	DiscountedSubtotal    int64      `json:"discounted_subtotal_cents"`
	TaxCents              int64      `json:"tax_cents"`
	TotalCents            int64      `json:"total_cents"`
	TaxPolicy             string     `json:"tax_policy"`
	Lines                 []LineItem `json:"lines"`
	DiscountCode          string     `json:"discount_code,omitempty"`
	DiscountID            string     `json:"-"`
	ItemCount             int        `json:"item_count"`
	DiscountRejectionNote string     `json:"discount_rejection,omitempty"`
}

type QuoteRequest struct {
	Lines        []CartLineRequest `json:"lines" validate:"required,min=1,dive"`
	DiscountCode string            `json:"discount_code,omitempty"`
	CustomerID   string            `json:"customer_id,omitempty"`
}

const (
	PaymentCash        = "cash"
	PaymentCard        = "card"
	PaymentDigital     = "digital"
	PaymentGiftCard    = "gift_card"
	PaymentStoreCredit = "store_credit"
)

type Payment struct {
	Method      string `json:"method" validate:"required,oneof=cash card digital gift_card store_credit"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Reference   string `json:"reference,omitempty"`
}

type CheckoutRequest struct {
	IdempotencyKey    string            `json:"idempotency_key"`
	TerminalID        string            `json:"terminal_id"`
	Lines             []CartLineRequest `json:"lines" validate:"required,min=1,dive"`
	DiscountCode      string            `json:"discount_code,omitempty"`
	CustomerID        string            `json:"customer_id,omitempty"`
	Payments          []Payment         `json:"payments" validate:"required,min=1,dive"`
	CashTenderedCents int64             `json:"cash_tendered_cents" validate:"gte=0"`
}

type CheckoutResponse struct {
	TransactionID  string     `json:"transaction_id"`
	Status         string     `json:"status"`
	Items          []LineItem `json:"items"`
	Payments       []Payment  `json:"payments"`
	SubtotalCents  int64      `json:"subtotal_cents"`
	DiscountCents  int64      `json:"discount_cents"`
	DiscountCode   string     `json:"discount_code,omitempty"`
	TaxCents       int64      `json:"tax_cents"`
	TotalCents     int64      `json:"total_cents"`
	CashTendered   int64      `json:"cash_tendered_cents"`
	ChangeCents    int64      `json:"change_cents"`
	ItemCount      int        `json:"item_count"`
	ShiftID        string     `json:"shift_id,omitempty"`
	CustomerID     string     `json:"customer_id,omitempty"`
	LoyaltyEarned  int        `json:"loyalty_points_earned"`
	ConvertedQuote []string   `json:"converted_estimations,omitempty"`
	Duplicate      bool       `json:"duplicate"`
	CreatedAt      string     `json:"created_at"`
}

type CheckoutLookupResponse struct {
	Found    bool              `json:"found"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

const (
	TxTypeSale        = "sale"
	TxStatusCompleted = "completed"
)

type Transaction struct {
	ID                string     `json:"id"`
	IdempotencyKey    string     `json:"idempotency_key"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	Items             []LineItem `json:"items"`
	SubtotalCents     int64      `json:"subtotal_cents"`
	DiscountCents     int64      `json:"discount_cents"`
	DiscountID        string     `json:"discount_id,omitempty"`
	DiscountCode      string     `json:"discount_code,omitempty"`
	TaxCents          int64      `json:"tax_cents"`
	TotalCents        int64      `json:"total_cents"`
	TaxPolicy         string     `json:"tax_policy"`
	Payments          []Payment  `json:"payments"`
	CashTenderedCents int64      `json:"cash_tendered_cents"`
	ChangeCents       int64      `json:"change_cents"`
	Cashier           string     `json:"cashier"`
	TerminalID        string     `json:"terminal_id,omitempty"`
	ShiftID           string     `json:"shift_id,omitempty"`
	CustomerID        string     `json:"customer_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// PaymentSummary returns "cash", "card", ... or "split" for multi-tender sales.
func (t Transaction) PaymentSummary() string {
	if len(t.Payments) == 1 {
		return t.Payments[0].Method
	}
	if len(t.Payments) == 0 {
		return ""
	}
	return "split"
}

const (
	MovementIn     = "in"
	MovementOut    = "out"
	MovementReturn = "return"
)

type InventoryMovement struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	VariantID     string    `json:"variant_id,omitempty"`
	VariantName   string    `json:"variant_name,omitempty"`
	Type          string    `json:"type"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason"`
	Reference     string    `json:"reference,omitempty"`
	User          string    `json:"user"`
	Notes         string    `json:"notes,omitempty"`
	UnitCostCents int64     `json:"unit_cost_cents,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StockChange moves the on-hand figure of a product, or of one of its
// variants when VariantID is set. A positive CostPriceCents replaces the
// product cost price.
type StockChange struct {
	ProductID      string
	VariantID      string
	Delta          int
	CostPriceCents int64
}

// StockPosting is the unit of work committed atomically by the repository:
// every change is applied and every movement appended, or nothing is.
type StockPosting struct {
	Changes   []StockChange
	Movements []InventoryMovement
}

func (p StockPosting) Empty() bool {
	return len(p.Changes) == 0 && len(p.Movements) == 0
}

type MovementFilter struct {
	ProductID string
	Type      string
	From      time.Time
	To        time.Time
	Limit     int
}

type ReceiveStockItem struct {
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"gt=0"`
	UnitCostCents int64  `json:"unit_cost_cents" validate:"gte=0"`
}

type ReceiveStockRequest struct {
	SupplierID string             `json:"supplier_id"`
	Items      []ReceiveStockItem `json:"items" validate:"required,min=1,dive"`
	Notes      string             `json:"notes"`
}

type RemoveStockRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"gt=0"`
	RemovalTypeID string `json:"removal_type_id" validate:"required"`
	UnitOption    string `json:"unit_option,omitempty"`
	Notes         string `json:"notes"`
}

type StockCountRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	CountedQty int    `json:"counted_qty" validate:"gte=0"`
	Reason     string `json:"reason"`
	Notes      string `json:"notes"`
}

type StockCountResponse struct {
	ProductID  string             `json:"product_id"`
	SystemQty  int                `json:"system_qty"`
	CountedQty int                `json:"counted_qty"`
	DeltaQty   int                `json:"delta_qty"`
	Movement   *InventoryMovement `json:"movement,omitempty"`
}

type StockReconciliation struct {
	ProductID    string `json:"product_id"`
	CachedStock  int    `json:"cached_stock"`
	LedgerStock  int    `json:"ledger_stock"`
	Drift        int    `json:"drift"`
	MovementSeen int    `json:"movements"`
}

type ReturnItem struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type ReturnRequest struct {
	TransactionID string       `json:"transaction_id"`
	Reason        string       `json:"reason" validate:"required,max=200"`
	ManagerPIN    string       `json:"manager_pin"`
	Items         []ReturnItem `json:"items" validate:"required,min=1,dive"`
}

type ReturnRecord struct {
	ID            string       `json:"id"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Reason        string       `json:"reason"`
	Items         []ReturnItem `json:"items"`
	RefundCents   int64        `json:"refund_cents"`
	ProcessedBy   string       `json:"processed_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

type RemovalType struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UnitType  string     `json:"unit_type,omitempty"`
	Options   []string   `json:"options,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type RemovalTypeRequest struct {
	Name     string   `json:"name" validate:"required,max=80"`
	UnitType string   `json:"unit_type"`
	Options  []string `json:"options"`
}

const (
	POStatusDraft     = "draft"
	POStatusSent      = "sent"
	POStatusPartial   = "partial"
	POStatusReceived  = "received"
	POStatusCancelled = "cancelled"

	POKindReplacement = "replacement"

	PaymentModePayNow = "pay_now"
	PaymentModeCredit = "credit"
)

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
}

type PurchaseOrderItem struct {
	ProductID             string `json:"product_id" validate:"required"`
	ProductName           string `json:"product_name"`
	Quantity              int    `json:"quantity" validate:"gt=0"`
	UnitCostCents         int64  `json:"unit_cost_cents" validate:"gte=0"`
	ReceivedQty           int    `json:"received_qty"`
	DamagedQty            int    `json:"damaged_qty"`
	ReplacementPendingQty int    `json:"replacement_pending_qty"`
}

type PurchaseOrder struct {
	ID             string              `json:"id"`
	SupplierID     string              `json:"supplier_id"`
	SupplierName   string              `json:"supplier_name"`
	Items          []PurchaseOrderItem `json:"items"`
	TotalCostCents int64               `json:"total_cost_cents"`
	Status         string              `json:"status"`
	Kind           string              `json:"kind,omitempty"`
	ParentID       string              `json:"parent_id,omitempty"`
	PaymentMode    string              `json:"payment_mode"`
	Notes          string              `json:"notes,omitempty"`
	CreatedBy      string              `json:"created_by"`
	CreatedAt      time.Time           `json:"created_at"`
	ReceivedAt     *time.Time          `json:"received_at,omitempty"`
	Version        int                 `json:"version"`
}

// PurchaseOrderCommit is applied atomically: every Updated order must still be
// at its Version, Created orders are inserted and Posting is applied.
type PurchaseOrderCommit struct {
	Updated []PurchaseOrder
	Created []PurchaseOrder
	Posting *StockPosting
}

type PurchaseOrderCreateRequest struct {
	SupplierID     string              `json:"supplier_id" validate:"required"`
	Items          []PurchaseOrderItem `json:"items" validate:"required,min=1,dive"`
	TotalCostCents int64               `json:"total_cost_cents" validate:"gte=0"`
	Notes          string              `json:"notes"`
	PaymentMode    string              `json:"payment_mode" validate:"omitempty,oneof=pay_now credit"`
	ReceiveNow     bool                `json:"receive_now"`
	Draft          bool                `json:"draft"`
}

type ReceiveDetail struct {
	ProductID     string `json:"product_id" validate:"required"`
	ReceivedQty   int    `json:"received_qty" validate:"gte=0"`
	DamagedQty    int    `json:"damaged_qty" validate:"gte=0"`
	UnitCostCents int64  `json:"unit_cost_cents" validate:"gte=0"`
}

type PurchaseOrderReceiveRequest struct {
	Details []ReceiveDetail `json:"details" validate:"dive"`
}

type PurchaseOrderReceiveResponse struct {
	PurchaseOrder PurchaseOrder  `json:"purchase_order"`
	Replacement   *PurchaseOrder `json:"replacement,omitempty"`
}

type Customer struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Address          string     `json:"address,omitempty"`
	LoyaltyPoints    int        `json:"loyalty_points"`
	TotalSpentCents  int64      `json:"total_spent_cents"`
	LastVisit        *time.Time `json:"last_visit,omitempty"`
	IsB2B            bool       `json:"is_b2b"`
	CompanyName      string     `json:"company_name,omitempty"`
	TaxID            string     `json:"tax_id,omitempty"`
	CreditLimitCents int64      `json:"credit_limit_cents,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CustomerRequest struct {
	Name             string `json:"name" validate:"required,max=120"`
	Email            string `json:"email" validate:"omitempty,email"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	IsB2B            bool   `json:"is_b2b"`
	CompanyName      string `json:"company_name"`
	TaxID            string `json:"tax_id"`
	CreditLimitCents int64  `json:"credit_limit_cents" validate:"gte=0"`
}

const (
	EstimationActive    = "active"
	EstimationConverted = "converted"
	EstimationExpired   = "expired"
)

type Estimation struct {
	ID            string     `json:"id"`
	Items         []LineItem `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	DiscountCode  string     `json:"discount_code,omitempty"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Status        string     `json:"status"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

type EstimationRequest struct {
	Lines        []CartLineRequest `json:"lines" validate:"required,min=1,dive"`
	DiscountCode string            `json:"discount_code,omitempty"`
	CustomerID   string            `json:"customer_id,omitempty"`
	Notes        string            `json:"notes"`
}

type EstimationRecall struct {
	Estimation Estimation        `json:"estimation"`
	Lines      []CartLineRequest `json:"lines"`
	Quote      Totals            `json:"quote"`
	Dropped    []string          `json:"dropped,omitempty"`
}

// CheckoutCommit carries everything a completed sale changes. The repository
// applies it in one unit of work.
type CheckoutCommit struct {
	Transaction   Transaction
	Posting       StockPosting
	DiscountID    string
	LoyaltyPoints int
	EstimationIDs []string
}

const (
	ShiftStatusActive = "active"
	ShiftStatusClosed = "closed"
)

type Shift struct {
	ID                string     `json:"id"`
	TerminalID        string     `json:"terminal_id"`
	CashierName       string     `json:"cashier_name"`
	StartingCashCents int64      `json:"starting_cash_cents"`
	EndingCashCents   int64      `json:"ending_cash_cents,omitempty"`
	TotalSalesCents   int64      `json:"total_sales_cents"`
	TotalTransactions int        `json:"total_transactions"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	TerminalID        string `json:"terminal_id" validate:"required"`
	CashierName       string `json:"cashier_name" validate:"required"`
	StartingCashCents int64  `json:"starting_cash_cents" validate:"gte=0"`
}

type ShiftCloseRequest struct {
	TerminalID      string `json:"terminal_id" validate:"required"`
	EndingCashCents int64  `json:"ending_cash_cents" validate:"gte=0"`
	Notes           string `json:"notes"`
}

type Expense struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	ApprovedBy  string    `json:"approved_by,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseRequest struct {
	Description string `json:"description" validate:"required,max=200"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Category    string `json:"category" validate:"required"`
	Date        string `json:"date"`
	ApprovedBy  string `json:"approved_by"`
	Notes       string `json:"notes"`
}

type DailyReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Transactions  int64  `json:"transactions"`
	TotalCents    int64  `json:"total_cents"`
}

type DailyReportProduct struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	TotalCents  int64  `json:"total_cents"`
}

type DailyReport struct {
	Date            string               `json:"date"`
	Transactions    int64                `json:"transactions"`
	GrossSalesCents int64                `json:"gross_sales_cents"`
	DiscountCents   int64                `json:"discount_cents"`
	TaxCents        int64                `json:"tax_cents"`
	NetSalesCents   int64                `json:"net_sales_cents"`
	ExpensesCents   int64                `json:"expenses_cents"`
	ByPayment       []DailyReportPayment `json:"by_payment"`
	TopProducts     []DailyReportProduct `json:"top_products"`
}

type ReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	PreviewText   string `json:"preview_text"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
