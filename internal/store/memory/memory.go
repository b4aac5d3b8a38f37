package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/ledger"
	"lumapos/backend/internal/pricing"
	"lumapos/backend/internal/store"
	"lumapos/backend/internal/xid"
)

// Store is the in-memory repository. A single mutex serializes every
// mutating operation, which makes each ledger primitive trivially
// linearizable and each multi-row operation atomic.
type Store struct {
	mu                   sync.RWMutex
	variantsByID         map[string]domain.Variant
	variantIDBySKU       map[string]string
	customersByID        map[string]domain.Customer
	stock                map[string]map[string]domain.StockLevel
	ordersByID           map[string]domain.Order
	orderIDByNumber      map[string]string
	commissionsByOrder   map[string]domain.Commission
	receiptsByID         map[string]domain.GoodsReceipt
	issuesByID           map[string]domain.GoodsIssue
	stocktakesByID       map[string]domain.Stocktake
	shiftsByID           map[string]domain.Shift
	activeShiftByCashier map[string]string
	docSeq               map[string]int
	auditLogs            []domain.AuditLog
	usersByUsername      map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		rate     float64
	}{
		{"admin", adminPwd, "admin", 0},
		{"cashier", cashierPwd, "cashier", 5},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:              u.username,
			Password:              string(hash),
			Role:                  u.role,
			CommissionRatePercent: u.rate,
			Active:                true,
			CreatedAt:             now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	variants := []domain.Variant{
		{ID: "var-espresso", SKU: "SKU-ESPRESSO", Name: "Espresso Beans 1kg", PriceCents: 18500, CostCents: 11000, TaxRatePercent: 10, Active: true},
		{ID: "var-oatmilk", SKU: "SKU-OATMILK", Name: "Oat Milk 1L", PriceCents: 4200, CostCents: 2600, TaxRatePercent: 10, Active: true},
		{ID: "var-butter", SKU: "SKU-BUTTER", Name: "Butter 250g", PriceCents: 5600, CostCents: 3900, TaxRatePercent: 10, Active: true},
		{ID: "var-flour", SKU: "SKU-FLOUR", Name: "Bread Flour 1kg", PriceCents: 3100, CostCents: 1900, TaxRatePercent: 0, Active: true},
		{ID: "var-honey", SKU: "SKU-HONEY", Name: "Wildflower Honey 500g", PriceCents: 9800, CostCents: 6400, TaxRatePercent: 10, Active: true},
		{ID: "var-tea", SKU: "SKU-TEA", Name: "Loose Leaf Tea 100g", PriceCents: 7200, CostCents: 4300, TaxRatePercent: 10, Active: true},
	}

	variantMap := make(map[string]domain.Variant, len(variants))
	skuIndex := make(map[string]string, len(variants))
	levels := make(map[string]domain.StockLevel, len(variants))
	now := time.Now().UTC()
	for _, v := range variants {
		variantMap[v.ID] = v
		skuIndex[v.SKU] = v.ID
		levels[v.ID] = domain.StockLevel{
			VariantID: v.ID,
			StoreID:   "main-store",
			Available: 100,
			Reserved:  0,
			OnHand:    100,
			UpdatedAt: now,
		}
	}

	customers := map[string]domain.Customer{
		"cust-walkin": {ID: "cust-walkin", Name: "Walk-in Regular", GroupMultiplier: 1, CreatedAt: now},
		"cust-gold":   {ID: "cust-gold", Name: "Gold Member", GroupMultiplier: 2, CreatedAt: now},
	}

	return &Store{
		variantsByID:         variantMap,
		variantIDBySKU:       skuIndex,
		customersByID:        customers,
		stock:                map[string]map[string]domain.StockLevel{"main-store": levels},
		ordersByID:           make(map[string]domain.Order),
		orderIDByNumber:      make(map[string]string),
		commissionsByOrder:   make(map[string]domain.Commission),
		receiptsByID:         make(map[string]domain.GoodsReceipt),
		issuesByID:           make(map[string]domain.GoodsIssue),
		stocktakesByID:       make(map[string]domain.Stocktake),
		shiftsByID:           make(map[string]domain.Shift),
		activeShiftByCashier: make(map[string]string),
		docSeq:               make(map[string]int),
		auditLogs:            make([]domain.AuditLog, 0, 128),
		usersByUsername:      seedUsers(),
	}
}

// nextNumber allocates the next document number for a (prefix, store, day)
// scope. Callers hold s.mu, so allocation is atomic with the insert.
func (s *Store) nextNumber(prefix string, storeID string, day time.Time) string {
	key := prefix + "|" + storeID + "|" + day.UTC().Format("20060102")
	s.docSeq[key]++
	return store.FormatDocumentNumber(prefix, day, s.docSeq[key])
}

func (s *Store) CreateVariant(ctx context.Context, v domain.Variant, storeID string, initialStock int) (*domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.SKU == "" || v.Name == "" || v.PriceCents < 1 || v.CostCents < 0 || initialStock < 0 {
		return nil, fmt.Errorf("%w: invalid variant", store.ErrValidation)
	}
	if v.TaxRatePercent < 0 || v.TaxRatePercent > 100 {
		return nil, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variantIDBySKU[v.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrValidation, v.SKU)
	}
	if v.ID == "" {
		v.ID = xid.New("var")
	}
	v.Active = true
	s.variantsByID[v.ID] = v
	s.variantIDBySKU[v.SKU] = v.ID

	if storeID != "" {
		if _, ok := s.stock[storeID]; !ok {
			s.stock[storeID] = make(map[string]domain.StockLevel)
		}
		s.stock[storeID][v.ID] = domain.StockLevel{
			VariantID: v.ID,
			StoreID:   storeID,
			Available: initialStock,
			OnHand:    initialStock,
			UpdatedAt: time.Now().UTC(),
		}
	}

	created := v
	return &created, nil
}

func (s *Store) GetVariantBySKU(_ context.Context, sku string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.variantIDBySKU[sku]
	if !ok {
		return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, sku)
	}
	v := s.variantsByID[id]
	return &v, nil
}

func (s *Store) GetVariantsBySKUs(_ context.Context, skus []string) (map[string]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Variant, len(skus))
	for _, sku := range skus {
		if id, ok := s.variantIDBySKU[sku]; ok {
			if v := s.variantsByID[id]; v.Active {
				result[sku] = v
			}
		}
	}
	return result, nil
}

func (s *Store) ListVariants(_ context.Context) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, len(s.variantsByID))
	for _, v := range s.variantsByID {
		if !v.Active {
			continue
		}
		variants = append(variants, v)
	}
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		return strings.Compare(a.SKU, b.SKU)
	})
	return variants, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Name == "" || c.GroupMultiplier < 0 {
		return nil, fmt.Errorf("%w: invalid customer", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = xid.New("cust")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.customersByID[c.ID] = c
	created := c
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	return &c, nil
}

func (s *Store) GetStockLevel(_ context.Context, storeID string, variantID string) (*domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level, ok := s.stock[storeID][variantID]
	if !ok {
		return nil, fmt.Errorf("%w: stock level for variant %s at store %s", store.ErrNotFound, variantID, storeID)
	}
	return &level, nil
}

func (s *Store) ListStockLevels(_ context.Context, storeID string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]domain.StockLevel, 0, len(s.stock[storeID]))
	for _, level := range s.stock[storeID] {
		levels = append(levels, level)
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		return strings.Compare(a.VariantID, b.VariantID)
	})
	return levels, nil
}

// applyChanges validates every change against a scratch view and commits all
// of them only if every one succeeds, so a failing line leaves nothing
// applied.
func (s *Store) applyChanges(storeID string, changes []domain.StockChange, createMissing bool,
	apply func(domain.StockLevel, int, time.Time) (domain.StockLevel, error)) error {

	if len(changes) == 0 {
		return fmt.Errorf("%w: no stock changes", store.ErrValidation)
	}

	now := time.Now().UTC()
	scratch := make(map[string]domain.StockLevel, len(changes))

	for _, ch := range changes {
		level, seen := scratch[ch.VariantID]
		if !seen {
			existing, ok := s.stock[storeID][ch.VariantID]
			if ok {
				level = existing
			} else {
				if !createMissing {
					return fmt.Errorf("%w: stock level for variant %s at store %s", store.ErrNotFound, ch.VariantID, storeID)
				}
				if _, known := s.variantsByID[ch.VariantID]; !known {
					return fmt.Errorf("%w: variant %s", store.ErrNotFound, ch.VariantID)
				}
				level = domain.StockLevel{VariantID: ch.VariantID, StoreID: storeID}
			}
		}
		next, err := apply(level, ch.Qty, now)
		if err != nil {
			return err
		}
		scratch[ch.VariantID] = next
	}

	if _, ok := s.stock[storeID]; !ok {
		s.stock[storeID] = make(map[string]domain.StockLevel)
	}
	for variantID, level := range scratch {
		s.stock[storeID][variantID] = level
	}
	return nil
}

func (s *Store) ReserveStock(ctx context.Context, storeID string, changes []domain.StockChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyChanges(storeID, changes, false, ledger.Reserve)
}

func (s *Store) ReleaseStock(ctx context.Context, storeID string, changes []domain.StockChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyChanges(storeID, changes, false, ledger.Release)
}

func (s *Store) ConsumeReservedStock(ctx context.Context, storeID string, changes []domain.StockChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyChanges(storeID, changes, false, ledger.ConsumeReserved)
}

func (s *Store) AdjustStock(ctx context.Context, storeID string, changes []domain.StockChange, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyChanges(storeID, changes, true, ledger.Adjust)
}

func (s *Store) SetCountedStock(ctx context.Context, storeID string, variantID string, countedQty int) (*domain.StockLevel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCountedLocked(storeID, variantID, countedQty)
}

func (s *Store) setCountedLocked(storeID string, variantID string, countedQty int) (*domain.StockLevel, error) {
	level, ok := s.stock[storeID][variantID]
	if !ok {
		if _, known := s.variantsByID[variantID]; !known {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
		level = domain.StockLevel{VariantID: variantID, StoreID: storeID}
	}
	next, err := ledger.SetCounted(level, countedQty, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if _, ok := s.stock[storeID]; !ok {
		s.stock[storeID] = make(map[string]domain.StockLevel)
	}
	s.stock[storeID][variantID] = next
	updated := next
	return &updated, nil
}

func cloneOrder(o domain.Order) domain.Order {
	clone := o
	clone.Lines = slices.Clone(o.Lines)
	clone.Payments = slices.Clone(o.Payments)
	return clone
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("%w: order requires at least one line", store.ErrValidation)
	}
	for _, line := range order.Lines {
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: sale line qty must be positive", store.ErrValidation)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changes := make([]domain.StockChange, 0, len(order.Lines))
	for _, line := range order.Lines {
		changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
	}
	if err := s.applyChanges(order.StoreID, changes, false, ledger.Reserve); err != nil {
		return nil, err
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusDraft
	if order.Type == "" {
		order.Type = domain.OrderTypeSale
	}
	order.Number = s.nextNumber(store.PrefixOrder, order.StoreID, order.CreatedAt)
	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
		order.Lines[i] = pricing.ComputeLine(order.Lines[i])
	}
	order.SubtotalCents, order.TaxCents, order.DiscountCents, order.TotalCents = pricing.ComputeTotals(order.Lines)
	order.Payments = make([]domain.Payment, 0, 2)

	s.ordersByID[order.ID] = cloneOrder(order)
	s.orderIDByNumber[order.Number] = order.ID

	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	clone := cloneOrder(order)
	return &clone, nil
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.orderIDByNumber[number]
	if !ok {
		return nil, fmt.Errorf("%w: order number %s", store.ErrNotFound, number)
	}
	clone := cloneOrder(s.ordersByID[id])
	return &clone, nil
}

func (s *Store) ListOrders(_ context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	orders := make([]domain.Order, 0, limit)
	for _, order := range s.ordersByID {
		if storeID != "" && order.StoreID != storeID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) HoldOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	if order.Status != domain.OrderStatusDraft {
		return nil, fmt.Errorf("%w: cannot hold order in status %s", store.ErrInvalidState, order.Status)
	}
	order.Status = domain.OrderStatusOnHold
	s.ordersByID[id] = order

	clone := cloneOrder(order)
	return &clone, nil
}

func (s *Store) CompleteOrder(ctx context.Context, id string, at time.Time) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	if !domain.OrderCanTransition(order.Status, domain.OrderStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete order in status %s", store.ErrInvalidState, order.Status)
	}

	paid := int64(0)
	for _, p := range order.Payments {
		if p.Status == domain.PaymentStatusCompleted {
			paid += p.AmountCents
		}
	}
	if paid < order.TotalCents {
		return nil, fmt.Errorf("%w: paid %d of %d", store.ErrInsufficientPayment, paid, order.TotalCents)
	}

	changes := make([]domain.StockChange, 0, len(order.Lines))
	for _, line := range order.Lines {
		changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
	}
	if err := s.applyChanges(order.StoreID, changes, false, ledger.ConsumeReserved); err != nil {
		return nil, err
	}

	if user, ok := s.usersByUsername[order.CashierID]; ok && user.CommissionRatePercent > 0 {
		s.commissionsByOrder[order.ID] = domain.Commission{
			ID:          xid.New("comm"),
			OrderID:     order.ID,
			CashierID:   order.CashierID,
			RatePercent: user.CommissionRatePercent,
			AmountCents: pricing.CommissionCents(order.TotalCents, user.CommissionRatePercent),
			Status:      domain.CommissionStatusPending,
			CreatedAt:   at,
		}
	}

	if order.CustomerID != "" {
		if customer, ok := s.customersByID[order.CustomerID]; ok {
			customer.LoyaltyPoints += pricing.LoyaltyPoints(order.TotalCents, customer.GroupMultiplier)
			customer.PurchaseCount++
			customer.TotalSpentCents += order.TotalCents
			s.customersByID[order.CustomerID] = customer
		}
	}

	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = &at
	s.ordersByID[id] = order

	clone := cloneOrder(order)
	return &clone, nil
}

func (s *Store) VoidOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: void reason required", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	if !domain.OrderCanTransition(order.Status, domain.OrderStatusVoided) {
		return nil, fmt.Errorf("%w: cannot void order in status %s", store.ErrInvalidState, order.Status)
	}

	changes := make([]domain.StockChange, 0, len(order.Lines))
	for _, line := range order.Lines {
		changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
	}
	if err := s.applyChanges(order.StoreID, changes, false, ledger.Release); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusVoided
	order.VoidReason = reason
	order.VoidedAt = &at
	s.ordersByID[id] = order

	clone := cloneOrder(order)
	return &clone, nil
}

func (s *Store) GetReturnedQtyByOrder(_ context.Context, originalOrderID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.returnedQtyLocked(originalOrderID), nil
}

func (s *Store) returnedQtyLocked(originalOrderID string) map[string]int {
	returned := make(map[string]int)
	for _, order := range s.ordersByID {
		if order.Type != domain.OrderTypeReturn || order.OriginalOrderID != originalOrderID {
			continue
		}
		for _, line := range order.Lines {
			returned[line.VariantID] += -line.Qty
		}
	}
	return returned
}

func (s *Store) CreateReturnOrder(ctx context.Context, ret domain.Order) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ret.OriginalOrderID == "" || len(ret.Lines) == 0 {
		return nil, fmt.Errorf("%w: return requires original order and items", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.ordersByID[ret.OriginalOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, ret.OriginalOrderID)
	}
	if original.Status != domain.OrderStatusCompleted && original.Status != domain.OrderStatusReturned {
		return nil, fmt.Errorf("%w: cannot return order in status %s", store.ErrInvalidState, original.Status)
	}

	soldByVariant := make(map[string]int, len(original.Lines))
	for _, line := range original.Lines {
		soldByVariant[line.VariantID] += line.Qty
	}
	alreadyReturned := s.returnedQtyLocked(original.ID)
	for _, line := range ret.Lines {
		if line.Qty >= 0 {
			return nil, fmt.Errorf("%w: return line qty must be negative", store.ErrValidation)
		}
		qty := -line.Qty
		if alreadyReturned[line.VariantID]+qty > soldByVariant[line.VariantID] {
			return nil, fmt.Errorf("%w: return qty for variant %s exceeds sold qty", store.ErrValidation, line.VariantID)
		}
	}

	// Restock immediately as available; returned goods were never reserved.
	changes := make([]domain.StockChange, 0, len(ret.Lines))
	for _, line := range ret.Lines {
		changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: -line.Qty})
	}
	if err := s.applyChanges(ret.StoreID, changes, true, ledger.Adjust); err != nil {
		return nil, err
	}

	if ret.ID == "" {
		ret.ID = xid.New("ord")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	at := ret.CreatedAt
	ret.Type = domain.OrderTypeReturn
	ret.Status = domain.OrderStatusCompleted
	ret.CompletedAt = &at
	ret.Number = s.nextNumber(store.PrefixReturn, ret.StoreID, ret.CreatedAt)
	for i := range ret.Lines {
		if ret.Lines[i].ID == "" {
			ret.Lines[i].ID = xid.New("line")
		}
		ret.Lines[i].OrderID = ret.ID
		ret.Lines[i] = pricing.ComputeLine(ret.Lines[i])
	}
	ret.SubtotalCents, ret.TaxCents, ret.DiscountCents, ret.TotalCents = pricing.ComputeTotals(ret.Lines)

	// Refund goes back through the method that funded the original order.
	refundMethod := domain.PaymentMethodCash
	for _, p := range original.Payments {
		if p.Status == domain.PaymentStatusCompleted {
			refundMethod = p.MethodID
			break
		}
	}
	ret.Payments = []domain.Payment{{
		ID:          xid.New("pay"),
		OrderID:     ret.ID,
		MethodID:    refundMethod,
		AmountCents: ret.TotalCents,
		Status:      domain.PaymentStatusRefunded,
		CreatedAt:   at,
	}}

	original.Status = domain.OrderStatusReturned
	s.ordersByID[original.ID] = original

	s.ordersByID[ret.ID] = cloneOrder(ret)
	s.orderIDByNumber[ret.Number] = ret.ID

	created := cloneOrder(ret)
	return &created, nil
}

func (s *Store) AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if payment.OrderID == "" || payment.MethodID == "" || payment.AmountCents < 1 {
		return nil, fmt.Errorf("%w: invalid payment", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[payment.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, payment.OrderID)
	}
	if !domain.OrderIsOpen(order.Status) {
		return nil, fmt.Errorf("%w: cannot add payment to order in status %s", store.ErrInvalidState, order.Status)
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusCompleted
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	order.Payments = append(order.Payments, payment)
	s.ordersByID[order.ID] = order

	created := payment
	return &created, nil
}

func (s *Store) GetCommissionByOrder(_ context.Context, orderID string) (*domain.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commission, ok := s.commissionsByOrder[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: commission for order %s", store.ErrNotFound, orderID)
	}
	return &commission, nil
}

func cloneReceipt(r domain.GoodsReceipt) domain.GoodsReceipt {
	clone := r
	clone.Lines = slices.Clone(r.Lines)
	return clone
}

func (s *Store) CreateGoodsReceipt(ctx context.Context, r domain.GoodsReceipt) (*domain.GoodsReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.StoreID == "" || len(r.Lines) == 0 {
		return nil, fmt.Errorf("%w: receipt requires store and lines", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range r.Lines {
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: receipt line qty must be positive", store.ErrValidation)
		}
		if _, ok := s.variantsByID[line.VariantID]; !ok {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
		}
	}

	if r.ID == "" {
		r.ID = xid.New("gr")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = domain.GoodsStatusDraft
	r.Number = s.nextNumber(store.PrefixReceipt, r.StoreID, r.CreatedAt)
	for i := range r.Lines {
		if r.Lines[i].ID == "" {
			r.Lines[i].ID = xid.New("gln")
		}
		r.Lines[i].DocumentID = r.ID
	}
	s.receiptsByID[r.ID] = cloneReceipt(r)

	created := cloneReceipt(r)
	return &created, nil
}

func (s *Store) GetGoodsReceiptByID(_ context.Context, id string) (*domain.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receiptsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: goods receipt %s", store.ErrNotFound, id)
	}
	clone := cloneReceipt(r)
	return &clone, nil
}

func (s *Store) ListGoodsReceipts(_ context.Context, storeID string, limit int) ([]domain.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	receipts := make([]domain.GoodsReceipt, 0, limit)
	for _, r := range s.receiptsByID {
		if storeID != "" && r.StoreID != storeID {
			continue
		}
		receipts = append(receipts, cloneReceipt(r))
	}
	slices.SortFunc(receipts, func(a, b domain.GoodsReceipt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(receipts) > limit {
		receipts = receipts[:limit]
	}
	return receipts, nil
}

func (s *Store) CompleteGoodsReceipt(ctx context.Context, id string, at time.Time) (*domain.GoodsReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receiptsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: goods receipt %s", store.ErrNotFound, id)
	}
	if !domain.GoodsCanTransition(r.Status, domain.GoodsStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete receipt in status %s", store.ErrInvalidState, r.Status)
	}

	changes := make([]domain.StockChange, 0, len(r.Lines))
	for _, line := range r.Lines {
		changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
	}
	if err := s.applyChanges(r.StoreID, changes, true, ledger.Adjust); err != nil {
		return nil, err
	}

	r.Status = domain.GoodsStatusCompleted
	r.CompletedAt = &at
	s.receiptsByID[id] = r

	clone := cloneReceipt(r)
	return &clone, nil
}

func (s *Store) CancelGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receiptsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: goods receipt %s", store.ErrNotFound, id)
	}
	if !domain.GoodsCanTransition(r.Status, domain.GoodsStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel receipt in status %s", store.ErrInvalidState, r.Status)
	}
	r.Status = domain.GoodsStatusCancelled
	s.receiptsByID[id] = r

	clone := cloneReceipt(r)
	return &clone, nil
}

func cloneIssue(i domain.GoodsIssue) domain.GoodsIssue {
	clone := i
	clone.Lines = slices.Clone(i.Lines)
	return clone
}

func (s *Store) CreateGoodsIssue(ctx context.Context, issue domain.GoodsIssue) (*domain.GoodsIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if issue.StoreID == "" || len(issue.Lines) == 0 {
		return nil, fmt.Errorf("%w: issue requires store and lines", store.ErrValidation)
	}
	if issue.Type != domain.IssueTypeIssue && issue.Type != domain.IssueTypeTransfer {
		return nil, fmt.Errorf("%w: unsupported issue type %s", store.ErrValidation, issue.Type)
	}
	if issue.Type == domain.IssueTypeTransfer && (issue.DestStoreID == "" || issue.DestStoreID == issue.StoreID) {
		return nil, fmt.Errorf("%w: transfer requires a distinct destination store", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range issue.Lines {
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: issue line qty must be positive", store.ErrValidation)
		}
		if _, ok := s.variantsByID[line.VariantID]; !ok {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
		}
	}

	if issue.ID == "" {
		issue.ID = xid.New("gi")
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	issue.Status = domain.GoodsStatusDraft
	issue.Number = s.nextNumber(store.PrefixIssue, issue.StoreID, issue.CreatedAt)
	for i := range issue.Lines {
		if issue.Lines[i].ID == "" {
			issue.Lines[i].ID = xid.New("gln")
		}
		issue.Lines[i].DocumentID = issue.ID
	}
	s.issuesByID[issue.ID] = cloneIssue(issue)

	created := cloneIssue(issue)
	return &created, nil
}

func (s *Store) GetGoodsIssueByID(_ context.Context, id string) (*domain.GoodsIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issuesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: goods issue %s", store.ErrNotFound, id)
	}
	clone := cloneIssue(issue)
	return &clone, nil
}

func (s *Store) ListGoodsIssues(_ context.Context, storeID string, limit int) ([]domain.GoodsIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	issues := make([]domain.GoodsIssue, 0, limit)
	for _, issue := range s.issuesByID {
		if storeID != "" && issue.StoreID != storeID {
			continue
		}
		issues = append(issues, cloneIssue(issue))
	}
	slices.SortFunc(issues, func(a, b domain.GoodsIssue) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

func (s *Store) CompleteGoodsIssue(ctx context.Context, id string, at time.Time) (*domain.GoodsIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issuesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: goods issue %s", store.ErrNotFound, id)
	}
	if !domain.GoodsCanTransition(issue.Status, domain.GoodsStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete issue in status %s", store.ErrInvalidState, issue.Status)
	}

	outbound := make([]domain.StockChange, 0, len(issue.Lines))
	for _, line := range issue.Lines {
		outbound = append(outbound, domain.StockChange{VariantID: line.VariantID, Qty: -line.Qty})
	}
	if err := s.applyChanges(issue.StoreID, outbound, false, ledger.Adjust); err != nil {
		return nil, err
	}

	if issue.Type == domain.IssueTypeTransfer {
		inbound := make([]domain.StockChange, 0, len(issue.Lines))
		for _, line := range issue.Lines {
			inbound = append(inbound, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
		}
		if err := s.applyChanges(issue.DestStoreID, inbound, true, ledger.Adjust); err != nil {
			// Undo the source leg so the transfer is all-or-nothing.
			undo := make([]domain.StockChange, 0, len(issue.Lines))
			for _, line := range issue.Lines {
				undo = append(undo, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
			}
			if undoErr := s.applyChanges(issue.StoreID, undo, false, ledger.Adjust); undoErr != nil {
				return nil, fmt.Errorf("undo source leg after failed transfer (%v): %w", err, undoErr)
			}
			return nil, err
		}
	}

	issue.Status = domain.GoodsStatusCompleted
	issue.CompletedAt = &at
	s.issuesByID[id] = issue

	clone := cloneIssue(issue)
	return &clone, nil
}

func (s *Store) CancelGoodsIssue(ctx context.Context, id string) (*domain.GoodsIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issuesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: goods issue %s", store.ErrNotFound, id)
	}
	if !domain.GoodsCanTransition(issue.Status, domain.GoodsStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel issue in status %s", store.ErrInvalidState, issue.Status)
	}
	issue.Status = domain.GoodsStatusCancelled
	s.issuesByID[id] = issue

	clone := cloneIssue(issue)
	return &clone, nil
}

func cloneStocktake(st domain.Stocktake) domain.Stocktake {
	clone := st
	clone.Items = slices.Clone(st.Items)
	return clone
}

func (s *Store) CreateStocktake(ctx context.Context, st domain.Stocktake) (*domain.Stocktake, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st.StoreID == "" || len(st.Items) == 0 {
		return nil, fmt.Errorf("%w: stocktake requires store and items", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range st.Items {
		variantID := st.Items[i].VariantID
		if _, ok := s.variantsByID[variantID]; !ok {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
		st.Items[i].SystemQty = s.stock[st.StoreID][variantID].OnHand
		st.Items[i].CountedQty = 0
		st.Items[i].Counted = false
		st.Items[i].Variance = 0
	}

	if st.ID == "" {
		st.ID = xid.New("stk")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	st.Status = domain.StocktakeStatusScheduled
	st.Number = s.nextNumber(store.PrefixStocktake, st.StoreID, st.CreatedAt)
	s.stocktakesByID[st.ID] = cloneStocktake(st)

	created := cloneStocktake(st)
	return &created, nil
}

func (s *Store) GetStocktakeByID(_ context.Context, id string) (*domain.Stocktake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stocktakesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
	}
	clone := cloneStocktake(st)
	return &clone, nil
}

func (s *Store) ListStocktakes(_ context.Context, storeID string, limit int) ([]domain.Stocktake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	stocktakes := make([]domain.Stocktake, 0, limit)
	for _, st := range s.stocktakesByID {
		if storeID != "" && st.StoreID != storeID {
			continue
		}
		stocktakes = append(stocktakes, cloneStocktake(st))
	}
	slices.SortFunc(stocktakes, func(a, b domain.Stocktake) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(stocktakes) > limit {
		stocktakes = stocktakes[:limit]
	}
	return stocktakes, nil
}

func (s *Store) StartStocktake(ctx context.Context, id string, at time.Time) (*domain.Stocktake, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stocktakesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
	}
	if !domain.StocktakeCanTransition(st.Status, domain.StocktakeStatusInProgress) {
		return nil, fmt.Errorf("%w: cannot start stocktake in status %s", store.ErrInvalidState, st.Status)
	}
	st.Status = domain.StocktakeStatusInProgress
	st.StartedAt = &at
	s.stocktakesByID[id] = st

	clone := cloneStocktake(st)
	return &clone, nil
}

func (s *Store) RecordStocktakeCounts(ctx context.Context, id string, counts []domain.StocktakeCount) (*domain.Stocktake, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: no counts", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stocktakesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
	}
	if st.Status != domain.StocktakeStatusInProgress {
		return nil, fmt.Errorf("%w: stocktake is not in progress", store.ErrInvalidState)
	}

	st = cloneStocktake(st)
	itemBySKU := make(map[string]int, len(st.Items))
	for i, item := range st.Items {
		itemBySKU[item.SKU] = i
	}
	for _, count := range counts {
		if count.CountedQty < 0 {
			return nil, fmt.Errorf("%w: counted qty must not be negative", store.ErrValidation)
		}
		i, ok := itemBySKU[count.SKU]
		if !ok {
			return nil, fmt.Errorf("%w: sku %s is not part of this stocktake", store.ErrValidation, count.SKU)
		}
		st.Items[i].CountedQty = count.CountedQty
		st.Items[i].Counted = true
		st.Items[i].Variance = count.CountedQty - st.Items[i].SystemQty
	}
	s.stocktakesByID[id] = cloneStocktake(st)

	return &st, nil
}

func (s *Store) FinalizeStocktake(ctx context.Context, id string, at time.Time) (*domain.StocktakeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stocktakesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
	}
	if !domain.StocktakeCanTransition(st.Status, domain.StocktakeStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot finalize stocktake in status %s", store.ErrInvalidState, st.Status)
	}
	for _, item := range st.Items {
		if !item.Counted {
			return nil, fmt.Errorf("%w: sku %s has no recorded count", store.ErrValidation, item.SKU)
		}
	}

	summary := domain.StocktakeSummary{
		StocktakeID: st.ID,
		ItemCount:   len(st.Items),
	}
	adjustmentLines := make([]domain.GoodsLine, 0, len(st.Items))

	for _, item := range st.Items {
		if item.Variance == 0 {
			continue
		}
		summary.VarianceCount++
		summary.TotalVarianceValueCents += pricing.VarianceValueCents(item.Variance, s.variantsByID[item.VariantID].CostCents)

		tag := domain.VarianceTagSurplus
		qty := item.Variance
		if item.Variance < 0 {
			tag = domain.VarianceTagShortage
			qty = -item.Variance
		}
		adjustmentLines = append(adjustmentLines, domain.GoodsLine{
			ID:            xid.New("gln"),
			VariantID:     item.VariantID,
			SKU:           item.SKU,
			Qty:           qty,
			UnitCostCents: s.variantsByID[item.VariantID].CostCents,
			Tag:           tag,
		})

		level, err := s.setCountedLocked(st.StoreID, item.VariantID, item.CountedQty)
		if err != nil {
			return nil, err
		}
		if level.Available < 0 {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf(
				"variant %s: counted %d is below reserved %d, available is now %d",
				item.SKU, item.CountedQty, level.Reserved, level.Available))
		}
	}

	if len(adjustmentLines) > 0 {
		issue := domain.GoodsIssue{
			ID:          xid.New("gi"),
			StoreID:     st.StoreID,
			Type:        domain.IssueTypeAdjustment,
			Status:      domain.GoodsStatusCompleted,
			Reason:      "stocktake variance",
			SourceRef:   st.ID,
			CreatedBy:   st.CreatedBy,
			Lines:       adjustmentLines,
			CreatedAt:   at,
			CompletedAt: &at,
		}
		issue.Number = s.nextNumber(store.PrefixIssue, st.StoreID, at)
		for i := range issue.Lines {
			issue.Lines[i].DocumentID = issue.ID
		}
		s.issuesByID[issue.ID] = issue
		summary.AdjustmentIssueID = issue.ID
	}

	st.Status = domain.StocktakeStatusCompleted
	st.CompletedAt = &at
	s.stocktakesByID[id] = st

	return &summary, nil
}

func (s *Store) CancelStocktake(ctx context.Context, id string) (*domain.Stocktake, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stocktakesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
	}
	if !domain.StocktakeCanTransition(st.Status, domain.StocktakeStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel stocktake in status %s", store.ErrInvalidState, st.Status)
	}
	st.Status = domain.StocktakeStatusCancelled
	s.stocktakesByID[id] = st

	clone := cloneStocktake(st)
	return &clone, nil
}

func (s *Store) StartShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if shift.CashierID == "" || shift.StoreID == "" || shift.OpeningCashCents < 0 {
		return nil, fmt.Errorf("%w: invalid shift", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.activeShiftByCashier[shift.CashierID]; open {
		return nil, fmt.Errorf("%w: cashier %s already has an open shift", store.ErrInvalidState, shift.CashierID)
	}

	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.Number = s.nextNumber(store.PrefixShift, shift.StoreID, shift.OpenedAt)
	s.shiftsByID[shift.ID] = shift
	s.activeShiftByCashier[shift.CashierID] = shift.ID

	created := shift
	return &created, nil
}

func (s *Store) CloseShift(ctx context.Context, id string, closingCashCents int64, notes string, at time.Time) (*domain.Shift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if closingCashCents < 0 {
		return nil, fmt.Errorf("%w: closing cash must not be negative", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, id)
	}
	if !domain.ShiftCanTransition(shift.Status, domain.ShiftStatusClosed) {
		return nil, fmt.Errorf("%w: cannot close shift in status %s", store.ErrInvalidState, shift.Status)
	}

	cash := int64(0)
	for _, order := range s.ordersByID {
		if order.ShiftID != shift.ID || order.Status != domain.OrderStatusCompleted {
			continue
		}
		shift.TotalSalesCents += order.TotalCents
		shift.TotalTransactions++
		for _, p := range order.Payments {
			if p.Status == domain.PaymentStatusCompleted && p.MethodID == domain.PaymentMethodCash {
				cash += p.AmountCents
			}
		}
	}

	shift.ExpectedCashCents = shift.OpeningCashCents + cash
	shift.ClosingCashCents = closingCashCents
	shift.CashDifferenceCents = closingCashCents - shift.ExpectedCashCents
	shift.Notes = notes
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &at
	s.shiftsByID[id] = shift
	delete(s.activeShiftByCashier, shift.CashierID)

	closed := shift
	return &closed, nil
}

func (s *Store) GetShiftByID(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, id)
	}
	return &shift, nil
}

func (s *Store) GetActiveShiftByCashier(_ context.Context, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeShiftByCashier[cashierID]
	if !ok {
		return nil, fmt.Errorf("%w: no open shift for cashier %s", store.ErrNotFound, cashierID)
	}
	shift := s.shiftsByID[id]
	return &shift, nil
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

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username %s taken", store.ErrValidation, user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	if password == "" {
		return fmt.Errorf("%w: password required", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
