package domain

import "time"

type Variant struct {
	ID             string  `json:"id"`
	SKU            string  `json:"sku"`
	Name           string  `json:"name"`
	PriceCents     int64   `json:"price_cents"`
	CostCents      int64   `json:"cost_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	Active         bool    `json:"active"`
}

type VariantCreateRequest struct {
	StoreID        string  `json:"store_id"`
	SKU            string  `json:"sku"`
	Name           string  `json:"name"`
	PriceCents     int64   `json:"price_cents"`
	CostCents      int64   `json:"cost_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	InitialStock   int     `json:"initial_stock"`
}

type Customer struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	GroupMultiplier float64   `json:"group_multiplier"`
	LoyaltyPoints   int64     `json:"loyalty_points"`
	PurchaseCount   int64     `json:"purchase_count"`
	TotalSpentCents int64     `json:"total_spent_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name            string  `json:"name"`
	GroupMultiplier float64 `json:"group_multiplier"`
}

// StockLevel is the shared mutable row owned by the ledger.
// OnHand == Available + Reserved holds at every commit point.
type StockLevel struct {
	VariantID string    `json:"variant_id"`
	StoreID   string    `json:"store_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	OnHand    int       `json:"on_hand"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StockAdjustRequest struct {
	StoreID string `json:"store_id"`
	SKU     string `json:"sku"`
	Delta   int    `json:"delta"`
	Reason  string `json:"reason"`
}

// StockChange is one ledger mutation against a (variant, store) key.
// Qty is strictly positive for reserve/release/consume and a signed
// delta for adjust.
type StockChange struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

const (
	OrderStatusDraft     = "draft"
	OrderStatusOnHold    = "on_hold"
	OrderStatusCompleted = "completed"
	OrderStatusVoided    = "voided"
	OrderStatusReturned  = "returned"
)

const (
	OrderTypeSale     = "sale"
	OrderTypeReturn   = "return"
	OrderTypeExchange = "exchange"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

const PaymentMethodCash = "cash"

type OrderLine struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	VariantID      string  `json:"variant_id"`
	SKU            string  `json:"sku"`
	Qty            int     `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	DiscountCents  int64   `json:"discount_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	LineTotalCents int64   `json:"line_total_cents"`
}

type Payment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	MethodID    string    `json:"method_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type Order struct {
	ID              string      `json:"id"`
	Number          string      `json:"number"`
	StoreID         string      `json:"store_id"`
	CustomerID      string      `json:"customer_id,omitempty"`
	CashierID       string      `json:"cashier_id"`
	ShiftID         string      `json:"shift_id,omitempty"`
	Status          string      `json:"status"`
	Type            string      `json:"type"`
	SubtotalCents   int64       `json:"subtotal_cents"`
	TaxCents        int64       `json:"tax_cents"`
	DiscountCents   int64       `json:"discount_cents"`
	TotalCents      int64       `json:"total_cents"`
	OriginalOrderID string      `json:"original_order_id,omitempty"`
	VoidReason      string      `json:"void_reason,omitempty"`
	ReturnReason    string      `json:"return_reason,omitempty"`
	Lines           []OrderLine `json:"lines"`
	Payments        []Payment   `json:"payments"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	VoidedAt        *time.Time  `json:"voided_at,omitempty"`
}

type OrderLineRequest struct {
	SKU           string `json:"sku"`
	Qty           int    `json:"qty"`
	DiscountCents int64  `json:"discount_cents"`
}

type OrderCreateRequest struct {
	StoreID    string             `json:"store_id"`
	CustomerID string             `json:"customer_id,omitempty"`
	Lines      []OrderLineRequest `json:"lines"`
}

type PaymentRequest struct {
	OrderID     string `json:"order_id"`
	MethodID    string `json:"method_id"`
	AmountCents int64  `json:"amount_cents"`
}

type VoidOrderRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type ReturnItemRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type ReturnRequest struct {
	OriginalOrderID string              `json:"original_order_id"`
	Reason          string              `json:"reason"`
	Items           []ReturnItemRequest `json:"items"`
}

type Commission struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	CashierID   string    `json:"cashier_id"`
	RatePercent float64   `json:"rate_percent"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const CommissionStatusPending = "pending"

const (
	GoodsStatusDraft     = "draft"
	GoodsStatusCompleted = "completed"
	GoodsStatusCancelled = "cancelled"
)

const (
	IssueTypeIssue      = "issue"
	IssueTypeTransfer   = "transfer"
	IssueTypeAdjustment = "adjustment"
)

const (
	VarianceTagSurplus  = "surplus"
	VarianceTagShortage = "shortage"
)

type GoodsLine struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	VariantID     string `json:"variant_id"`
	SKU           string `json:"sku"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	Tag           string `json:"tag,omitempty"`
}

type GoodsReceipt struct {
	ID          string      `json:"id"`
	Number      string      `json:"number"`
	StoreID     string      `json:"store_id"`
	SupplierRef string      `json:"supplier_ref,omitempty"`
	Status      string      `json:"status"`
	Notes       string      `json:"notes,omitempty"`
	CreatedBy   string      `json:"created_by"`
	Lines       []GoodsLine `json:"lines"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

type GoodsIssue struct {
	ID          string      `json:"id"`
	Number      string      `json:"number"`
	StoreID     string      `json:"store_id"`
	Type        string      `json:"type"`
	DestStoreID string      `json:"dest_store_id,omitempty"`
	Status      string      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	SourceRef   string      `json:"source_ref,omitempty"`
	CreatedBy   string      `json:"created_by"`
	Lines       []GoodsLine `json:"lines"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

type GoodsLineRequest struct {
	SKU           string `json:"sku"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type GoodsReceiptCreateRequest struct {
	StoreID     string             `json:"store_id"`
	SupplierRef string             `json:"supplier_ref"`
	Notes       string             `json:"notes"`
	Lines       []GoodsLineRequest `json:"lines"`
}

type GoodsIssueCreateRequest struct {
	StoreID     string             `json:"store_id"`
	Type        string             `json:"type"`
	DestStoreID string             `json:"dest_store_id"`
	Reason      string             `json:"reason"`
	Lines       []GoodsLineRequest `json:"lines"`
}

const (
	StocktakeStatusScheduled  = "scheduled"
	StocktakeStatusInProgress = "in_progress"
	StocktakeStatusCompleted  = "completed"
	StocktakeStatusCancelled  = "cancelled"
)

type StocktakeItem struct {
	VariantID  string `json:"variant_id"`
	SKU        string `json:"sku"`
	SystemQty  int    `json:"system_qty"`
	CountedQty int    `json:"counted_qty"`
	Counted    bool   `json:"counted"`
	Variance   int    `json:"variance"`
}

type Stocktake struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	StoreID     string          `json:"store_id"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   string          `json:"created_by"`
	Items       []StocktakeItem `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type StocktakeCreateRequest struct {
	StoreID string   `json:"store_id"`
	SKUs    []string `json:"skus"`
	Notes   string   `json:"notes"`
}

type StocktakeCount struct {
	SKU        string `json:"sku"`
	CountedQty int    `json:"counted_qty"`
}

type StocktakeCountRequest struct {
	Counts []StocktakeCount `json:"counts"`
}

type StocktakeSummary struct {
	StocktakeID             string   `json:"stocktake_id"`
	ItemCount               int      `json:"item_count"`
	VarianceCount           int      `json:"variance_count"`
	TotalVarianceValueCents int64    `json:"total_variance_value_cents"`
	AdjustmentIssueID       string   `json:"adjustment_issue_id,omitempty"`
	Warnings                []string `json:"warnings,omitempty"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

type Shift struct {
	ID                  string     `json:"id"`
	Number              string     `json:"number"`
	CashierID           string     `json:"cashier_id"`
	StoreID             string     `json:"store_id"`
	Status              string     `json:"status"`
	OpeningCashCents    int64      `json:"opening_cash_cents"`
	ClosingCashCents    int64      `json:"closing_cash_cents"`
	ExpectedCashCents   int64      `json:"expected_cash_cents"`
	CashDifferenceCents int64      `json:"cash_difference_cents"`
	TotalSalesCents     int64      `json:"total_sales_cents"`
	TotalTransactions   int64      `json:"total_transactions"`
	Notes               string     `json:"notes,omitempty"`
	OpenedAt            time.Time  `json:"opened_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
}

type ShiftStartRequest struct {
	StoreID          string `json:"store_id"`
	OpeningCashCents int64  `json:"opening_cash_cents"`
}

type ShiftCloseRequest struct {
	ClosingCashCents int64  `json:"closing_cash_cents"`
	Notes            string `json:"notes"`
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

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username              string
	Password              string
	Role                  string
	CommissionRatePercent float64
	Active                bool
	CreatedAt             time.Time
}

// CashierUser is the credential-free view of an account returned to admins.
type CashierUser struct {
	Username              string    `json:"username"`
	Role                  string    `json:"role"`
	CommissionRatePercent float64   `json:"commission_rate_percent"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username              string  `json:"username"`
	Password              string  `json:"password"`
	CommissionRatePercent float64 `json:"commission_rate_percent"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
