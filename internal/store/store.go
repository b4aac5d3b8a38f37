package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lumapos/backend/internal/domain"
)

// Failure kinds. Business-rule violations are always one of these sentinels
// (possibly wrapped with detail); anything else crossing the repository
// boundary is an infrastructure fault.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidState            = errors.New("invalid state")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInsufficientReservation = errors.New("insufficient reservation")
	ErrInsufficientPayment     = errors.New("insufficient payment")
	ErrValidation              = errors.New("validation failed")
	ErrConflict                = errors.New("concurrency conflict")
)

// Document number prefixes, scoped per (prefix, store, UTC day).
const (
	PrefixOrder     = "ORD"
	PrefixReturn    = "RET"
	PrefixReceipt   = "GR"
	PrefixIssue     = "GI"
	PrefixStocktake = "STK"
	PrefixShift     = "SHF"
)

// FormatDocumentNumber renders the human-readable number for the seq-th
// document of a store-day. Allocation of seq must be atomic with the insert
// that uses it.
func FormatDocumentNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format("20060102"), seq)
}

// Repository is the durable store contract. Every method that mutates more
// than one row applies its changes in a single atomic commit; a context
// cancellation accepted before that commit leaves no partial mutation.
type Repository interface {
	// Catalog.
	CreateVariant(ctx context.Context, v domain.Variant, storeID string, initialStock int) (*domain.Variant, error)
	GetVariantBySKU(ctx context.Context, sku string) (*domain.Variant, error)
	GetVariantsBySKUs(ctx context.Context, skus []string) (map[string]domain.Variant, error)
	ListVariants(ctx context.Context) ([]domain.Variant, error)

	// Customers.
	CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)

	// Stock ledger primitives. Each call is atomic across all of its
	// changes and linearizable per (variant, store) key.
	GetStockLevel(ctx context.Context, storeID string, variantID string) (*domain.StockLevel, error)
	ListStockLevels(ctx context.Context, storeID string) ([]domain.StockLevel, error)
	ReserveStock(ctx context.Context, storeID string, changes []domain.StockChange) error
	ReleaseStock(ctx context.Context, storeID string, changes []domain.StockChange) error
	ConsumeReservedStock(ctx context.Context, storeID string, changes []domain.StockChange) error
	AdjustStock(ctx context.Context, storeID string, changes []domain.StockChange, reason string) error
	SetCountedStock(ctx context.Context, storeID string, variantID string, countedQty int) (*domain.StockLevel, error)

	// Orders.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error)
	HoldOrder(ctx context.Context, id string) (*domain.Order, error)
	CompleteOrder(ctx context.Context, id string, at time.Time) (*domain.Order, error)
	VoidOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.Order, error)
	CreateReturnOrder(ctx context.Context, ret domain.Order) (*domain.Order, error)
	GetReturnedQtyByOrder(ctx context.Context, originalOrderID string) (map[string]int, error)
	AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	GetCommissionByOrder(ctx context.Context, orderID string) (*domain.Commission, error)

	// Goods movement.
	CreateGoodsReceipt(ctx context.Context, r domain.GoodsReceipt) (*domain.GoodsReceipt, error)
	GetGoodsReceiptByID(ctx context.Context, id string) (*domain.GoodsReceipt, error)
	ListGoodsReceipts(ctx context.Context, storeID string, limit int) ([]domain.GoodsReceipt, error)
	CompleteGoodsReceipt(ctx context.Context, id string, at time.Time) (*domain.GoodsReceipt, error)
	CancelGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error)
	CreateGoodsIssue(ctx context.Context, i domain.GoodsIssue) (*domain.GoodsIssue, error)
	GetGoodsIssueByID(ctx context.Context, id string) (*domain.GoodsIssue, error)
	ListGoodsIssues(ctx context.Context, storeID string, limit int) ([]domain.GoodsIssue, error)
	CompleteGoodsIssue(ctx context.Context, id string, at time.Time) (*domain.GoodsIssue, error)
	CancelGoodsIssue(ctx context.Context, id string) (*domain.GoodsIssue, error)

	// Stocktakes.
	CreateStocktake(ctx context.Context, st domain.Stocktake) (*domain.Stocktake, error)
	GetStocktakeByID(ctx context.Context, id string) (*domain.Stocktake, error)
	ListStocktakes(ctx context.Context, storeID string, limit int) ([]domain.Stocktake, error)
	StartStocktake(ctx context.Context, id string, at time.Time) (*domain.Stocktake, error)
	RecordStocktakeCounts(ctx context.Context, id string, counts []domain.StocktakeCount) (*domain.Stocktake, error)
	FinalizeStocktake(ctx context.Context, id string, at time.Time) (*domain.StocktakeSummary, error)
	CancelStocktake(ctx context.Context, id string) (*domain.Stocktake, error)

	// Shifts.
	StartShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CloseShift(ctx context.Context, id string, closingCashCents int64, notes string, at time.Time) (*domain.Shift, error)
	GetShiftByID(ctx context.Context, id string) (*domain.Shift, error)
	GetActiveShiftByCashier(ctx context.Context, cashierID string) (*domain.Shift, error)

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Users.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
