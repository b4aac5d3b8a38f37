package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/ledger"
	"lumapos/backend/internal/pricing"
	"lumapos/backend/internal/store"
	"lumapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const maxTxAttempts = 3

// runSerializable executes fn in a serializable transaction, retrying a
// bounded number of times on serialization failures and deadlocks. A
// transaction that still cannot commit surfaces store.ErrConflict.
func (s *Store) runSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.attemptTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		if attempt == maxTxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 20 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, err)
}

func (s *Store) attemptTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// nextNumberTx allocates the next document number for a (prefix, store, day)
// scope inside the caller's transaction, so the number is never burned by a
// rollback and never duplicated across concurrent commits.
func nextNumberTx(ctx context.Context, tx *sql.Tx, prefix string, storeID string, day time.Time) (string, error) {
	var seq int
	err := tx.QueryRowContext(ctx, `
		INSERT INTO document_counters (prefix, store_id, day, seq)
		VALUES ($1,$2,$3,1)
		ON CONFLICT (prefix, store_id, day)
		DO UPDATE SET seq = document_counters.seq + 1
		RETURNING seq
	`, prefix, storeID, day.UTC().Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return "", err
	}
	return store.FormatDocumentNumber(prefix, day, seq), nil
}

// applyChangesTx locks the touched stock rows in variant order, validates
// every change against an in-transaction view and writes all of them back.
// A failing change aborts before any write, so the batch is all-or-nothing.
func applyChangesTx(ctx context.Context, tx *sql.Tx, storeID string, changes []domain.StockChange, createMissing bool,
	apply func(domain.StockLevel, int, time.Time) (domain.StockLevel, error)) error {

	if len(changes) == 0 {
		return fmt.Errorf("%w: no stock changes", store.ErrValidation)
	}

	seen := make(map[string]struct{}, len(changes))
	ids := make([]string, 0, len(changes))
	for _, ch := range changes {
		if _, ok := seen[ch.VariantID]; ok {
			continue
		}
		seen[ch.VariantID] = struct{}{}
		ids = append(ids, ch.VariantID)
	}
	// Stable lock order keeps concurrent batches from deadlocking.
	sort.Strings(ids)

	rows, err := tx.QueryContext(ctx, `
		SELECT variant_id, available, reserved, on_hand, updated_at
		FROM stock_levels
		WHERE store_id = $1 AND variant_id = ANY($2)
		ORDER BY variant_id
		FOR UPDATE
	`, storeID, ids)
	if err != nil {
		return err
	}
	scratch := make(map[string]domain.StockLevel, len(ids))
	for rows.Next() {
		level := domain.StockLevel{StoreID: storeID}
		if err := rows.Scan(&level.VariantID, &level.Available, &level.Reserved, &level.OnHand, &level.UpdatedAt); err != nil {
			_ = rows.Close()
			return err
		}
		scratch[level.VariantID] = level
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	now := time.Now().UTC()
	for _, ch := range changes {
		level, ok := scratch[ch.VariantID]
		if !ok {
			if !createMissing {
				return fmt.Errorf("%w: stock level for variant %s at store %s", store.ErrNotFound, ch.VariantID, storeID)
			}
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, ch.VariantID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: variant %s", store.ErrNotFound, ch.VariantID)
			}
			level = domain.StockLevel{VariantID: ch.VariantID, StoreID: storeID}
		}
		next, err := apply(level, ch.Qty, now)
		if err != nil {
			return err
		}
		scratch[ch.VariantID] = next
	}

	for _, id := range ids {
		level := scratch[id]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_levels (store_id, variant_id, available, reserved, on_hand, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (store_id, variant_id)
			DO UPDATE SET available = EXCLUDED.available, reserved = EXCLUDED.reserved,
				on_hand = EXCLUDED.on_hand, updated_at = EXCLUDED.updated_at
		`, storeID, id, level.Available, level.Reserved, level.OnHand, level.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func setCountedTx(ctx context.Context, tx *sql.Tx, storeID string, variantID string, countedQty int) (*domain.StockLevel, error) {
	level := domain.StockLevel{VariantID: variantID, StoreID: storeID}
	err := tx.QueryRowContext(ctx, `
		SELECT available, reserved, on_hand, updated_at
		FROM stock_levels
		WHERE store_id = $1 AND variant_id = $2
		FOR UPDATE
	`, storeID, variantID).Scan(&level.Available, &level.Reserved, &level.OnHand, &level.UpdatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, variantID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
	}

	next, err := ledger.SetCounted(level, countedQty, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_levels (store_id, variant_id, available, reserved, on_hand, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (store_id, variant_id)
		DO UPDATE SET available = EXCLUDED.available, reserved = EXCLUDED.reserved,
			on_hand = EXCLUDED.on_hand, updated_at = EXCLUDED.updated_at
	`, storeID, variantID, next.Available, next.Reserved, next.OnHand, next.UpdatedAt)
	if err != nil {
		return nil, err
	}
	updated := next
	return &updated, nil
}

func (s *Store) CreateVariant(ctx context.Context, v domain.Variant, storeID string, initialStock int) (*domain.Variant, error) {
	if v.SKU == "" || v.Name == "" || v.PriceCents < 1 || v.CostCents < 0 || initialStock < 0 {
		return nil, fmt.Errorf("%w: invalid variant", store.ErrValidation)
	}
	if v.TaxRatePercent < 0 || v.TaxRatePercent > 100 {
		return nil, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}
	if v.ID == "" {
		v.ID = xid.New("var")
	}
	v.Active = true

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO variants (id, sku, name, price_cents, cost_cents, tax_rate_percent, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		`, v.ID, v.SKU, v.Name, v.PriceCents, v.CostCents, v.TaxRatePercent, v.Active)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: sku %s already exists", store.ErrValidation, v.SKU)
			}
			return err
		}
		if storeID == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_levels (store_id, variant_id, available, reserved, on_hand, updated_at)
			VALUES ($1,$2,$3,0,$3,now())
		`, storeID, v.ID, initialStock)
		return err
	})
	if err != nil {
		return nil, err
	}

	created := v
	return &created, nil
}

func (s *Store) GetVariantBySKU(ctx context.Context, sku string) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, price_cents, cost_cents, tax_rate_percent, active
		FROM variants
		WHERE sku = $1
	`, sku).Scan(&v.ID, &v.SKU, &v.Name, &v.PriceCents, &v.CostCents, &v.TaxRatePercent, &v.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, sku)
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetVariantsBySKUs(ctx context.Context, skus []string) (map[string]domain.Variant, error) {
	result := make(map[string]domain.Variant, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, price_cents, cost_cents, tax_rate_percent, active
		FROM variants
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.SKU, &v.Name, &v.PriceCents, &v.CostCents, &v.TaxRatePercent, &v.Active); err != nil {
			return nil, err
		}
		result[v.SKU] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, price_cents, cost_cents, tax_rate_percent, active
		FROM variants
		WHERE active = true
		ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 128)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.SKU, &v.Name, &v.PriceCents, &v.CostCents, &v.TaxRatePercent, &v.Active); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	if c.Name == "" || c.GroupMultiplier < 0 {
		return nil, fmt.Errorf("%w: invalid customer", store.ErrValidation)
	}
	if c.ID == "" {
		c.ID = xid.New("cust")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, group_multiplier, loyalty_points, purchase_count, total_spent_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.Name, c.GroupMultiplier, c.LoyaltyPoints, c.PurchaseCount, c.TotalSpentCents, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := c
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, group_multiplier, loyalty_points, purchase_count, total_spent_cents, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.GroupMultiplier, &c.LoyaltyPoints, &c.PurchaseCount, &c.TotalSpentCents, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) GetStockLevel(ctx context.Context, storeID string, variantID string) (*domain.StockLevel, error) {
	level := domain.StockLevel{VariantID: variantID, StoreID: storeID}
	err := s.db.QueryRowContext(ctx, `
		SELECT available, reserved, on_hand, updated_at
		FROM stock_levels
		WHERE store_id = $1 AND variant_id = $2
	`, storeID, variantID).Scan(&level.Available, &level.Reserved, &level.OnHand, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: stock level for variant %s at store %s", store.ErrNotFound, variantID, storeID)
		}
		return nil, err
	}
	level.UpdatedAt = level.UpdatedAt.UTC()
	return &level, nil
}

func (s *Store) ListStockLevels(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, available, reserved, on_hand, updated_at
		FROM stock_levels
		WHERE store_id = $1
		ORDER BY variant_id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.StockLevel, 0, 128)
	for rows.Next() {
		level := domain.StockLevel{StoreID: storeID}
		if err := rows.Scan(&level.VariantID, &level.Available, &level.Reserved, &level.OnHand, &level.UpdatedAt); err != nil {
			return nil, err
		}
		level.UpdatedAt = level.UpdatedAt.UTC()
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

func (s *Store) ReserveStock(ctx context.Context, storeID string, changes []domain.StockChange) error {
	return s.runSerializable(ctx, func(tx *sql.Tx) error {
		return applyChangesTx(ctx, tx, storeID, changes, false, ledger.Reserve)
	})
}

func (s *Store) ReleaseStock(ctx context.Context, storeID string, changes []domain.StockChange) error {
	return s.runSerializable(ctx, func(tx *sql.Tx) error {
		return applyChangesTx(ctx, tx, storeID, changes, false, ledger.Release)
	})
}

func (s *Store) ConsumeReservedStock(ctx context.Context, storeID string, changes []domain.StockChange) error {
	return s.runSerializable(ctx, func(tx *sql.Tx) error {
		return applyChangesTx(ctx, tx, storeID, changes, false, ledger.ConsumeReserved)
	})
}

func (s *Store) AdjustStock(ctx context.Context, storeID string, changes []domain.StockChange, _ string) error {
	return s.runSerializable(ctx, func(tx *sql.Tx) error {
		return applyChangesTx(ctx, tx, storeID, changes, true, ledger.Adjust)
	})
}

func (s *Store) SetCountedStock(ctx context.Context, storeID string, variantID string, countedQty int) (*domain.StockLevel, error) {
	var level *domain.StockLevel
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var err error
		level, err = setCountedTx(ctx, tx, storeID, variantID, countedQty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("%w: order requires at least one line", store.ErrValidation)
	}
	for _, line := range order.Lines {
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: sale line qty must be positive", store.ErrValidation)
		}
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
	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
		order.Lines[i] = pricing.ComputeLine(order.Lines[i])
	}
	order.SubtotalCents, order.TaxCents, order.DiscountCents, order.TotalCents = pricing.ComputeTotals(order.Lines)
	order.Payments = make([]domain.Payment, 0, 2)

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		changes := make([]domain.StockChange, 0, len(order.Lines))
		for _, line := range order.Lines {
			changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
		}
		if err := applyChangesTx(ctx, tx, order.StoreID, changes, false, ledger.Reserve); err != nil {
			return err
		}

		number, err := nextNumberTx(ctx, tx, store.PrefixOrder, order.StoreID, order.CreatedAt)
		if err != nil {
			return err
		}
		order.Number = number

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, number, store_id, customer_id, cashier_id, shift_id, status, type,
				subtotal_cents, tax_cents, discount_cents, total_cents,
				original_order_id, void_reason, return_reason, created_at, completed_at, voided_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NULL,NULL)
		`, order.ID, order.Number, order.StoreID, nullIfEmpty(order.CustomerID), order.CashierID,
			nullIfEmpty(order.ShiftID), order.Status, order.Type,
			order.SubtotalCents, order.TaxCents, order.DiscountCents, order.TotalCents,
			nullIfEmpty(order.OriginalOrderID), nullIfEmpty(order.VoidReason), nullIfEmpty(order.ReturnReason), order.CreatedAt)
		if err != nil {
			return err
		}

		return insertOrderLines(ctx, tx, order.Lines)
	})
	if err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func insertOrderLines(ctx context.Context, tx *sql.Tx, lines []domain.OrderLine) error {
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, variant_id, sku, qty, unit_price_cents, discount_cents, tax_rate_percent, line_total_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, line.ID, line.OrderID, line.VariantID, line.SKU, line.Qty, line.UnitPriceCents, line.DiscountCents, line.TaxRatePercent, line.LineTotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, "id", id)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.findOrder(ctx, "number", number)
}

func (s *Store) findOrder(ctx context.Context, column string, value string) (*domain.Order, error) {
	if column != "id" && column != "number" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var order domain.Order
	var customerID, shiftID, originalOrderID, voidReason, returnReason sql.NullString
	var completedAt, voidedAt sql.NullTime

	query := fmt.Sprintf(`
		SELECT id, number, store_id, customer_id, cashier_id, shift_id, status, type,
			subtotal_cents, tax_cents, discount_cents, total_cents,
			original_order_id, void_reason, return_reason, created_at, completed_at, voided_at
		FROM orders
		WHERE %s = $1
	`, column)

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&order.ID, &order.Number, &order.StoreID, &customerID, &order.CashierID, &shiftID,
		&order.Status, &order.Type,
		&order.SubtotalCents, &order.TaxCents, &order.DiscountCents, &order.TotalCents,
		&originalOrderID, &voidReason, &returnReason, &order.CreatedAt, &completedAt, &voidedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, value)
		}
		return nil, err
	}
	order.CustomerID = customerID.String
	order.ShiftID = shiftID.String
	order.OriginalOrderID = originalOrderID.String
	order.VoidReason = voidReason.String
	order.ReturnReason = returnReason.String
	order.CreatedAt = order.CreatedAt.UTC()
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		order.CompletedAt = &at
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		order.VoidedAt = &at
	}

	if err := s.loadOrderChildren(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) loadOrderChildren(ctx context.Context, order *domain.Order) error {
	lineRows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, variant_id, sku, qty, unit_price_cents, discount_cents, tax_rate_percent, line_total_cents
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return err
	}
	lines := make([]domain.OrderLine, 0, 8)
	for lineRows.Next() {
		var line domain.OrderLine
		if err := lineRows.Scan(&line.ID, &line.OrderID, &line.VariantID, &line.SKU, &line.Qty,
			&line.UnitPriceCents, &line.DiscountCents, &line.TaxRatePercent, &line.LineTotalCents); err != nil {
			_ = lineRows.Close()
			return err
		}
		lines = append(lines, line)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return err
	}
	_ = lineRows.Close()
	order.Lines = lines

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, method_id, amount_cents, status, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id
	`, order.ID)
	if err != nil {
		return err
	}
	payments := make([]domain.Payment, 0, 2)
	for paymentRows.Next() {
		var p domain.Payment
		if err := paymentRows.Scan(&p.ID, &p.OrderID, &p.MethodID, &p.AmountCents, &p.Status, &p.CreatedAt); err != nil {
			_ = paymentRows.Close()
			return err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return err
	}
	_ = paymentRows.Close()
	order.Payments = payments

	return nil
}

func (s *Store) ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := s.findOrder(ctx, "id", id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func (s *Store) HoldOrder(ctx context.Context, id string) (*domain.Order, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
			}
			return err
		}
		if status != domain.OrderStatusDraft {
			return fmt.Errorf("%w: cannot hold order in status %s", store.ErrInvalidState, status)
		}
		_, err = tx.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, domain.OrderStatusOnHold)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.findOrder(ctx, "id", id)
}

func (s *Store) CompleteOrder(ctx context.Context, id string, at time.Time) (*domain.Order, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var storeID, cashierID, status string
		var customerID sql.NullString
		var totalCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT store_id, customer_id, cashier_id, status, total_cents
			FROM orders
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&storeID, &customerID, &cashierID, &status, &totalCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.OrderCanTransition(status, domain.OrderStatusCompleted) {
			return fmt.Errorf("%w: cannot complete order in status %s", store.ErrInvalidState, status)
		}

		var paid int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(amount_cents),0)::bigint
			FROM payments
			WHERE order_id = $1 AND status = $2
		`, id, domain.PaymentStatusCompleted).Scan(&paid)
		if err != nil {
			return err
		}
		if paid < totalCents {
			return fmt.Errorf("%w: paid %d of %d", store.ErrInsufficientPayment, paid, totalCents)
		}

		changes, err := orderLineChanges(ctx, tx, id, 1)
		if err != nil {
			return err
		}
		if err := applyChangesTx(ctx, tx, storeID, changes, false, ledger.ConsumeReserved); err != nil {
			return err
		}

		var rate float64
		err = tx.QueryRowContext(ctx, `
			SELECT commission_rate_percent FROM app_users WHERE username = $1
		`, cashierID).Scan(&rate)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if rate > 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO commissions (id, order_id, cashier_id, rate_percent, amount_cents, status, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, xid.New("comm"), id, cashierID, rate, pricing.CommissionCents(totalCents, rate), domain.CommissionStatusPending, at)
			if err != nil {
				return err
			}
		}

		if customerID.Valid && customerID.String != "" {
			var multiplier float64
			err = tx.QueryRowContext(ctx, `
				SELECT group_multiplier FROM customers WHERE id = $1 FOR UPDATE
			`, customerID.String).Scan(&multiplier)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if err == nil {
				_, err = tx.ExecContext(ctx, `
					UPDATE customers
					SET loyalty_points = loyalty_points + $2,
						purchase_count = purchase_count + 1,
						total_spent_cents = total_spent_cents + $3
					WHERE id = $1
				`, customerID.String, pricing.LoyaltyPoints(totalCents, multiplier), totalCents)
				if err != nil {
					return err
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $2, completed_at = $3 WHERE id = $1
		`, id, domain.OrderStatusCompleted, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.findOrder(ctx, "id", id)
}

func orderLineChanges(ctx context.Context, tx *sql.Tx, orderID string, sign int) ([]domain.StockChange, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT variant_id, qty FROM order_lines WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]domain.StockChange, 0, 8)
	for rows.Next() {
		var ch domain.StockChange
		if err := rows.Scan(&ch.VariantID, &ch.Qty); err != nil {
			return nil, err
		}
		ch.Qty *= sign
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *Store) VoidOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.Order, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: void reason required", store.ErrValidation)
	}

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var storeID, status string
		err := tx.QueryRowContext(ctx, `
			SELECT store_id, status FROM orders WHERE id = $1 FOR UPDATE
		`, id).Scan(&storeID, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.OrderCanTransition(status, domain.OrderStatusVoided) {
			return fmt.Errorf("%w: cannot void order in status %s", store.ErrInvalidState, status)
		}

		changes, err := orderLineChanges(ctx, tx, id, 1)
		if err != nil {
			return err
		}
		if err := applyChangesTx(ctx, tx, storeID, changes, false, ledger.Release); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $2, void_reason = $3, voided_at = $4 WHERE id = $1
		`, id, domain.OrderStatusVoided, reason, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.findOrder(ctx, "id", id)
}

func (s *Store) GetReturnedQtyByOrder(ctx context.Context, originalOrderID string) (map[string]int, error) {
	result := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.variant_id, COALESCE(SUM(-l.qty),0)::int
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		WHERE o.original_order_id = $1 AND o.type = $2
		GROUP BY l.variant_id
	`, originalOrderID, domain.OrderTypeReturn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var variantID string
		var qty int
		if err := rows.Scan(&variantID, &qty); err != nil {
			return nil, err
		}
		result[variantID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateReturnOrder(ctx context.Context, ret domain.Order) (*domain.Order, error) {
	if ret.OriginalOrderID == "" || len(ret.Lines) == 0 {
		return nil, fmt.Errorf("%w: return requires original order and items", store.ErrValidation)
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
	for i := range ret.Lines {
		if ret.Lines[i].ID == "" {
			ret.Lines[i].ID = xid.New("line")
		}
		ret.Lines[i].OrderID = ret.ID
		ret.Lines[i] = pricing.ComputeLine(ret.Lines[i])
	}
	ret.SubtotalCents, ret.TaxCents, ret.DiscountCents, ret.TotalCents = pricing.ComputeTotals(ret.Lines)

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var originalStatus string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM orders WHERE id = $1 FOR UPDATE
		`, ret.OriginalOrderID).Scan(&originalStatus)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: order %s", store.ErrNotFound, ret.OriginalOrderID)
			}
			return err
		}
		if originalStatus != domain.OrderStatusCompleted && originalStatus != domain.OrderStatusReturned {
			return fmt.Errorf("%w: cannot return order in status %s", store.ErrInvalidState, originalStatus)
		}

		soldByVariant := make(map[string]int, 8)
		soldChanges, err := orderLineChanges(ctx, tx, ret.OriginalOrderID, 1)
		if err != nil {
			return err
		}
		for _, ch := range soldChanges {
			soldByVariant[ch.VariantID] += ch.Qty
		}

		alreadyReturned := make(map[string]int, 8)
		returnedRows, err := tx.QueryContext(ctx, `
			SELECT l.variant_id, COALESCE(SUM(-l.qty),0)::int
			FROM orders o
			JOIN order_lines l ON l.order_id = o.id
			WHERE o.original_order_id = $1 AND o.type = $2
			GROUP BY l.variant_id
		`, ret.OriginalOrderID, domain.OrderTypeReturn)
		if err != nil {
			return err
		}
		for returnedRows.Next() {
			var variantID string
			var qty int
			if err := returnedRows.Scan(&variantID, &qty); err != nil {
				_ = returnedRows.Close()
				return err
			}
			alreadyReturned[variantID] = qty
		}
		if err := returnedRows.Err(); err != nil {
			_ = returnedRows.Close()
			return err
		}
		_ = returnedRows.Close()

		for _, line := range ret.Lines {
			if line.Qty >= 0 {
				return fmt.Errorf("%w: return line qty must be negative", store.ErrValidation)
			}
			qty := -line.Qty
			if alreadyReturned[line.VariantID]+qty > soldByVariant[line.VariantID] {
				return fmt.Errorf("%w: return qty for variant %s exceeds sold qty", store.ErrValidation, line.VariantID)
			}
		}

		changes := make([]domain.StockChange, 0, len(ret.Lines))
		for _, line := range ret.Lines {
			changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: -line.Qty})
		}
		if err := applyChangesTx(ctx, tx, ret.StoreID, changes, true, ledger.Adjust); err != nil {
			return err
		}

		number, err := nextNumberTx(ctx, tx, store.PrefixReturn, ret.StoreID, ret.CreatedAt)
		if err != nil {
			return err
		}
		ret.Number = number

		refundMethod := domain.PaymentMethodCash
		err = tx.QueryRowContext(ctx, `
			SELECT method_id
			FROM payments
			WHERE order_id = $1 AND status = $2
			ORDER BY created_at, id
			LIMIT 1
		`, ret.OriginalOrderID, domain.PaymentStatusCompleted).Scan(&refundMethod)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		ret.Payments = []domain.Payment{{
			ID:          xid.New("pay"),
			OrderID:     ret.ID,
			MethodID:    refundMethod,
			AmountCents: ret.TotalCents,
			Status:      domain.PaymentStatusRefunded,
			CreatedAt:   at,
		}}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, number, store_id, customer_id, cashier_id, shift_id, status, type,
				subtotal_cents, tax_cents, discount_cents, total_cents,
				original_order_id, void_reason, return_reason, created_at, completed_at, voided_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULL,$14,$15,$16,NULL)
		`, ret.ID, ret.Number, ret.StoreID, nullIfEmpty(ret.CustomerID), ret.CashierID,
			nullIfEmpty(ret.ShiftID), ret.Status, ret.Type,
			ret.SubtotalCents, ret.TaxCents, ret.DiscountCents, ret.TotalCents,
			ret.OriginalOrderID, nullIfEmpty(ret.ReturnReason), ret.CreatedAt, at)
		if err != nil {
			return err
		}
		if err := insertOrderLines(ctx, tx, ret.Lines); err != nil {
			return err
		}
		for _, p := range ret.Payments {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO payments (id, order_id, method_id, amount_cents, status, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, p.ID, p.OrderID, p.MethodID, p.AmountCents, p.Status, p.CreatedAt)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $2 WHERE id = $1
		`, ret.OriginalOrderID, domain.OrderStatusReturned)
		return err
	})
	if err != nil {
		return nil, err
	}

	created := ret
	return &created, nil
}

func (s *Store) AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.OrderID == "" || payment.MethodID == "" || payment.AmountCents < 1 {
		return nil, fmt.Errorf("%w: invalid payment", store.ErrValidation)
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

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, payment.OrderID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: order %s", store.ErrNotFound, payment.OrderID)
			}
			return err
		}
		if !domain.OrderIsOpen(status) {
			return fmt.Errorf("%w: cannot add payment to order in status %s", store.ErrInvalidState, status)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, method_id, amount_cents, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, payment.ID, payment.OrderID, payment.MethodID, payment.AmountCents, payment.Status, payment.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) GetCommissionByOrder(ctx context.Context, orderID string) (*domain.Commission, error) {
	var c domain.Commission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, cashier_id, rate_percent, amount_cents, status, created_at
		FROM commissions
		WHERE order_id = $1
	`, orderID).Scan(&c.ID, &c.OrderID, &c.CashierID, &c.RatePercent, &c.AmountCents, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: commission for order %s", store.ErrNotFound, orderID)
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func insertGoodsLines(ctx context.Context, tx *sql.Tx, lines []domain.GoodsLine) error {
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO goods_lines (id, document_id, variant_id, sku, qty, unit_cost_cents, tag)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, line.ID, line.DocumentID, line.VariantID, line.SKU, line.Qty, line.UnitCostCents, nullIfEmpty(line.Tag))
		if err != nil {
			return err
		}
	}
	return nil
}

func loadGoodsLines(ctx context.Context, q rowQueryer, documentID string) ([]domain.GoodsLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, document_id, variant_id, sku, qty, unit_cost_cents, COALESCE(tag,'')
		FROM goods_lines
		WHERE document_id = $1
		ORDER BY id
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.GoodsLine, 0, 8)
	for rows.Next() {
		var line domain.GoodsLine
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.VariantID, &line.SKU, &line.Qty, &line.UnitCostCents, &line.Tag); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

type rowQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func validateGoodsLinesTx(ctx context.Context, tx *sql.Tx, lines []domain.GoodsLine) error {
	for _, line := range lines {
		if line.Qty < 1 {
			return fmt.Errorf("%w: goods line qty must be positive", store.ErrValidation)
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, line.VariantID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
		}
	}
	return nil
}

func (s *Store) CreateGoodsReceipt(ctx context.Context, r domain.GoodsReceipt) (*domain.GoodsReceipt, error) {
	if r.StoreID == "" || len(r.Lines) == 0 {
		return nil, fmt.Errorf("%w: receipt requires store and lines", store.ErrValidation)
	}
	if r.ID == "" {
		r.ID = xid.New("gr")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = domain.GoodsStatusDraft
	for i := range r.Lines {
		if r.Lines[i].ID == "" {
			r.Lines[i].ID = xid.New("gln")
		}
		r.Lines[i].DocumentID = r.ID
	}

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		if err := validateGoodsLinesTx(ctx, tx, r.Lines); err != nil {
			return err
		}
		number, err := nextNumberTx(ctx, tx, store.PrefixReceipt, r.StoreID, r.CreatedAt)
		if err != nil {
			return err
		}
		r.Number = number
		_, err = tx.ExecContext(ctx, `
			INSERT INTO goods_receipts (id, number, store_id, supplier_ref, status, notes, created_by, created_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL)
		`, r.ID, r.Number, r.StoreID, nullIfEmpty(r.SupplierRef), r.Status, nullIfEmpty(r.Notes), r.CreatedBy, r.CreatedAt)
		if err != nil {
			return err
		}
		return insertGoodsLines(ctx, tx, r.Lines)
	})
	if err != nil {
		return nil, err
	}

	created := r
	return &created, nil
}

func (s *Store) GetGoodsReceiptByID(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	var r domain.GoodsReceipt
	var supplierRef, notes sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, store_id, supplier_ref, status, notes, created_by, created_at, completed_at
		FROM goods_receipts
		WHERE id = $1
	`, id).Scan(&r.ID, &r.Number, &r.StoreID, &supplierRef, &r.Status, &notes, &r.CreatedBy, &r.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: goods receipt %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	r.SupplierRef = supplierRef.String
	r.Notes = notes.String
	r.CreatedAt = r.CreatedAt.UTC()
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		r.CompletedAt = &at
	}

	lines, err := loadGoodsLines(ctx, s.db, r.ID)
	if err != nil {
		return nil, err
	}
	r.Lines = lines
	return &r, nil
}

func (s *Store) ListGoodsReceipts(ctx context.Context, storeID string, limit int) ([]domain.GoodsReceipt, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM goods_receipts
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	receipts := make([]domain.GoodsReceipt, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetGoodsReceiptByID(ctx, id)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *r)
	}
	return receipts, nil
}

func (s *Store) CompleteGoodsReceipt(ctx context.Context, id string, at time.Time) (*domain.GoodsReceipt, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var storeID, status string
		err := tx.QueryRowContext(ctx, `
			SELECT store_id, status FROM goods_receipts WHERE id = $1 FOR UPDATE
		`, id).Scan(&storeID, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: goods receipt %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.GoodsCanTransition(status, domain.GoodsStatusCompleted) {
			return fmt.Errorf("%w: cannot complete receipt in status %s", store.ErrInvalidState, status)
		}

		lines, err := loadGoodsLines(ctx, tx, id)
		if err != nil {
			return err
		}
		changes := make([]domain.StockChange, 0, len(lines))
		for _, line := range lines {
			changes = append(changes, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
		}
		if err := applyChangesTx(ctx, tx, storeID, changes, true, ledger.Adjust); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE goods_receipts SET status = $2, completed_at = $3 WHERE id = $1
		`, id, domain.GoodsStatusCompleted, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetGoodsReceiptByID(ctx, id)
}

func (s *Store) CancelGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM goods_receipts WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: goods receipt %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.GoodsCanTransition(status, domain.GoodsStatusCancelled) {
			return fmt.Errorf("%w: cannot cancel receipt in status %s", store.ErrInvalidState, status)
		}
		_, err = tx.ExecContext(ctx, `UPDATE goods_receipts SET status = $2 WHERE id = $1`, id, domain.GoodsStatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetGoodsReceiptByID(ctx, id)
}

func (s *Store) CreateGoodsIssue(ctx context.Context, issue domain.GoodsIssue) (*domain.GoodsIssue, error) {
	if issue.StoreID == "" || len(issue.Lines) == 0 {
		return nil, fmt.Errorf("%w: issue requires store and lines", store.ErrValidation)
	}
	if issue.Type != domain.IssueTypeIssue && issue.Type != domain.IssueTypeTransfer {
		return nil, fmt.Errorf("%w: unsupported issue type %s", store.ErrValidation, issue.Type)
	}
	if issue.Type == domain.IssueTypeTransfer && (issue.DestStoreID == "" || issue.DestStoreID == issue.StoreID) {
		return nil, fmt.Errorf("%w: transfer requires a distinct destination store", store.ErrValidation)
	}
	if issue.ID == "" {
		issue.ID = xid.New("gi")
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	issue.Status = domain.GoodsStatusDraft
	for i := range issue.Lines {
		if issue.Lines[i].ID == "" {
			issue.Lines[i].ID = xid.New("gln")
		}
		issue.Lines[i].DocumentID = issue.ID
	}

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		if err := validateGoodsLinesTx(ctx, tx, issue.Lines); err != nil {
			return err
		}
		number, err := nextNumberTx(ctx, tx, store.PrefixIssue, issue.StoreID, issue.CreatedAt)
		if err != nil {
			return err
		}
		issue.Number = number
		_, err = tx.ExecContext(ctx, `
			INSERT INTO goods_issues (id, number, store_id, type, dest_store_id, status, reason, source_ref, created_by, created_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL)
		`, issue.ID, issue.Number, issue.StoreID, issue.Type, nullIfEmpty(issue.DestStoreID), issue.Status,
			nullIfEmpty(issue.Reason), nullIfEmpty(issue.SourceRef), issue.CreatedBy, issue.CreatedAt)
		if err != nil {
			return err
		}
		return insertGoodsLines(ctx, tx, issue.Lines)
	})
	if err != nil {
		return nil, err
	}

	created := issue
	return &created, nil
}

func (s *Store) GetGoodsIssueByID(ctx context.Context, id string) (*domain.GoodsIssue, error) {
	var issue domain.GoodsIssue
	var destStoreID, reason, sourceRef sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, store_id, type, dest_store_id, status, reason, source_ref, created_by, created_at, completed_at
		FROM goods_issues
		WHERE id = $1
	`, id).Scan(&issue.ID, &issue.Number, &issue.StoreID, &issue.Type, &destStoreID, &issue.Status,
		&reason, &sourceRef, &issue.CreatedBy, &issue.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: goods issue %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	issue.DestStoreID = destStoreID.String
	issue.Reason = reason.String
	issue.SourceRef = sourceRef.String
	issue.CreatedAt = issue.CreatedAt.UTC()
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		issue.CompletedAt = &at
	}

	lines, err := loadGoodsLines(ctx, s.db, issue.ID)
	if err != nil {
		return nil, err
	}
	issue.Lines = lines
	return &issue, nil
}

func (s *Store) ListGoodsIssues(ctx context.Context, storeID string, limit int) ([]domain.GoodsIssue, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM goods_issues
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	issues := make([]domain.GoodsIssue, 0, len(ids))
	for _, id := range ids {
		issue, err := s.GetGoodsIssueByID(ctx, id)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, nil
}

func (s *Store) CompleteGoodsIssue(ctx context.Context, id string, at time.Time) (*domain.GoodsIssue, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var storeID, issueType, status string
		var destStoreID sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT store_id, type, dest_store_id, status FROM goods_issues WHERE id = $1 FOR UPDATE
		`, id).Scan(&storeID, &issueType, &destStoreID, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: goods issue %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.GoodsCanTransition(status, domain.GoodsStatusCompleted) {
			return fmt.Errorf("%w: cannot complete issue in status %s", store.ErrInvalidState, status)
		}

		lines, err := loadGoodsLines(ctx, tx, id)
		if err != nil {
			return err
		}

		outbound := make([]domain.StockChange, 0, len(lines))
		for _, line := range lines {
			outbound = append(outbound, domain.StockChange{VariantID: line.VariantID, Qty: -line.Qty})
		}
		if err := applyChangesTx(ctx, tx, storeID, outbound, false, ledger.Adjust); err != nil {
			return err
		}

		// Both legs of a transfer commit together or not at all.
		if issueType == domain.IssueTypeTransfer {
			inbound := make([]domain.StockChange, 0, len(lines))
			for _, line := range lines {
				inbound = append(inbound, domain.StockChange{VariantID: line.VariantID, Qty: line.Qty})
			}
			if err := applyChangesTx(ctx, tx, destStoreID.String, inbound, true, ledger.Adjust); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE goods_issues SET status = $2, completed_at = $3 WHERE id = $1
		`, id, domain.GoodsStatusCompleted, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetGoodsIssueByID(ctx, id)
}

func (s *Store) CancelGoodsIssue(ctx context.Context, id string) (*domain.GoodsIssue, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM goods_issues WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: goods issue %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.GoodsCanTransition(status, domain.GoodsStatusCancelled) {
			return fmt.Errorf("%w: cannot cancel issue in status %s", store.ErrInvalidState, status)
		}
		_, err = tx.ExecContext(ctx, `UPDATE goods_issues SET status = $2 WHERE id = $1`, id, domain.GoodsStatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetGoodsIssueByID(ctx, id)
}

func (s *Store) CreateStocktake(ctx context.Context, st domain.Stocktake) (*domain.Stocktake, error) {
	if st.StoreID == "" || len(st.Items) == 0 {
		return nil, fmt.Errorf("%w: stocktake requires store and items", store.ErrValidation)
	}
	if st.ID == "" {
		st.ID = xid.New("stk")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	st.Status = domain.StocktakeStatusScheduled

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		for i := range st.Items {
			variantID := st.Items[i].VariantID
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, variantID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
			}
			var onHand int
			err := tx.QueryRowContext(ctx, `
				SELECT on_hand FROM stock_levels WHERE store_id = $1 AND variant_id = $2
			`, st.StoreID, variantID).Scan(&onHand)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			st.Items[i].SystemQty = onHand
			st.Items[i].CountedQty = 0
			st.Items[i].Counted = false
			st.Items[i].Variance = 0
		}

		number, err := nextNumberTx(ctx, tx, store.PrefixStocktake, st.StoreID, st.CreatedAt)
		if err != nil {
			return err
		}
		st.Number = number

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stocktakes (id, number, store_id, status, notes, created_by, created_at, started_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,NULL)
		`, st.ID, st.Number, st.StoreID, st.Status, nullIfEmpty(st.Notes), st.CreatedBy, st.CreatedAt)
		if err != nil {
			return err
		}
		for _, item := range st.Items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO stocktake_items (stocktake_id, variant_id, sku, system_qty, counted_qty, counted, variance)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, st.ID, item.VariantID, item.SKU, item.SystemQty, item.CountedQty, item.Counted, item.Variance)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := st
	return &created, nil
}

func (s *Store) GetStocktakeByID(ctx context.Context, id string) (*domain.Stocktake, error) {
	var st domain.Stocktake
	var notes sql.NullString
	var startedAt, completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, store_id, status, notes, created_by, created_at, started_at, completed_at
		FROM stocktakes
		WHERE id = $1
	`, id).Scan(&st.ID, &st.Number, &st.StoreID, &st.Status, &notes, &st.CreatedBy, &st.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	st.Notes = notes.String
	st.CreatedAt = st.CreatedAt.UTC()
	if startedAt.Valid {
		at := startedAt.Time.UTC()
		st.StartedAt = &at
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		st.CompletedAt = &at
	}

	items, err := loadStocktakeItems(ctx, s.db, st.ID)
	if err != nil {
		return nil, err
	}
	st.Items = items
	return &st, nil
}

func loadStocktakeItems(ctx context.Context, q rowQueryer, stocktakeID string) ([]domain.StocktakeItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT variant_id, sku, system_qty, counted_qty, counted, variance
		FROM stocktake_items
		WHERE stocktake_id = $1
		ORDER BY sku
	`, stocktakeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StocktakeItem, 0, 16)
	for rows.Next() {
		var item domain.StocktakeItem
		if err := rows.Scan(&item.VariantID, &item.SKU, &item.SystemQty, &item.CountedQty, &item.Counted, &item.Variance); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStocktakes(ctx context.Context, storeID string, limit int) ([]domain.Stocktake, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM stocktakes
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stocktakes := make([]domain.Stocktake, 0, len(ids))
	for _, id := range ids {
		st, err := s.GetStocktakeByID(ctx, id)
		if err != nil {
			return nil, err
		}
		stocktakes = append(stocktakes, *st)
	}
	return stocktakes, nil
}

func (s *Store) StartStocktake(ctx context.Context, id string, at time.Time) (*domain.Stocktake, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM stocktakes WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.StocktakeCanTransition(status, domain.StocktakeStatusInProgress) {
			return fmt.Errorf("%w: cannot start stocktake in status %s", store.ErrInvalidState, status)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE stocktakes SET status = $2, started_at = $3 WHERE id = $1
		`, id, domain.StocktakeStatusInProgress, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetStocktakeByID(ctx, id)
}

func (s *Store) RecordStocktakeCounts(ctx context.Context, id string, counts []domain.StocktakeCount) (*domain.Stocktake, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: no counts", store.ErrValidation)
	}

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM stocktakes WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
			}
			return err
		}
		if status != domain.StocktakeStatusInProgress {
			return fmt.Errorf("%w: stocktake is not in progress", store.ErrInvalidState)
		}

		for _, count := range counts {
			if count.CountedQty < 0 {
				return fmt.Errorf("%w: counted qty must not be negative", store.ErrValidation)
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE stocktake_items
				SET counted_qty = $3, counted = true, variance = $3 - system_qty
				WHERE stocktake_id = $1 AND sku = $2
			`, id, count.SKU, count.CountedQty)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: sku %s is not part of this stocktake", store.ErrValidation, count.SKU)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetStocktakeByID(ctx, id)
}

func (s *Store) FinalizeStocktake(ctx context.Context, id string, at time.Time) (*domain.StocktakeSummary, error) {
	var summary domain.StocktakeSummary
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		summary = domain.StocktakeSummary{StocktakeID: id}

		var storeID, status, createdBy string
		err := tx.QueryRowContext(ctx, `
			SELECT store_id, status, created_by FROM stocktakes WHERE id = $1 FOR UPDATE
		`, id).Scan(&storeID, &status, &createdBy)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.StocktakeCanTransition(status, domain.StocktakeStatusCompleted) {
			return fmt.Errorf("%w: cannot finalize stocktake in status %s", store.ErrInvalidState, status)
		}

		items, err := loadStocktakeItems(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !item.Counted {
				return fmt.Errorf("%w: sku %s has no recorded count", store.ErrValidation, item.SKU)
			}
		}
		summary.ItemCount = len(items)

		adjustmentLines := make([]domain.GoodsLine, 0, len(items))
		for _, item := range items {
			if item.Variance == 0 {
				continue
			}
			summary.VarianceCount++

			var costCents int64
			err := tx.QueryRowContext(ctx, `SELECT cost_cents FROM variants WHERE id = $1`, item.VariantID).Scan(&costCents)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			summary.TotalVarianceValueCents += pricing.VarianceValueCents(item.Variance, costCents)

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
				UnitCostCents: costCents,
				Tag:           tag,
			})

			level, err := setCountedTx(ctx, tx, storeID, item.VariantID, item.CountedQty)
			if err != nil {
				return err
			}
			if level.Available < 0 {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf(
					"variant %s: counted %d is below reserved %d, available is now %d",
					item.SKU, item.CountedQty, level.Reserved, level.Available))
			}
		}

		if len(adjustmentLines) > 0 {
			issueID := xid.New("gi")
			number, err := nextNumberTx(ctx, tx, store.PrefixIssue, storeID, at)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO goods_issues (id, number, store_id, type, dest_store_id, status, reason, source_ref, created_by, created_at, completed_at)
				VALUES ($1,$2,$3,$4,NULL,$5,$6,$7,$8,$9,$10)
			`, issueID, number, storeID, domain.IssueTypeAdjustment, domain.GoodsStatusCompleted,
				"stocktake variance", id, createdBy, at, at)
			if err != nil {
				return err
			}
			for i := range adjustmentLines {
				adjustmentLines[i].DocumentID = issueID
			}
			if err := insertGoodsLines(ctx, tx, adjustmentLines); err != nil {
				return err
			}
			summary.AdjustmentIssueID = issueID
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE stocktakes SET status = $2, completed_at = $3 WHERE id = $1
		`, id, domain.StocktakeStatusCompleted, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) CancelStocktake(ctx context.Context, id string) (*domain.Stocktake, error) {
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM stocktakes WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: stocktake %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.StocktakeCanTransition(status, domain.StocktakeStatusCancelled) {
			return fmt.Errorf("%w: cannot cancel stocktake in status %s", store.ErrInvalidState, status)
		}
		_, err = tx.ExecContext(ctx, `UPDATE stocktakes SET status = $2 WHERE id = $1`, id, domain.StocktakeStatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetStocktakeByID(ctx, id)
}

func (s *Store) StartShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.CashierID == "" || shift.StoreID == "" || shift.OpeningCashCents < 0 {
		return nil, fmt.Errorf("%w: invalid shift", store.ErrValidation)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var openID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM shifts WHERE cashier_id = $1 AND status = $2 FOR UPDATE
		`, shift.CashierID, domain.ShiftStatusOpen).Scan(&openID)
		if err == nil {
			return fmt.Errorf("%w: cashier %s already has an open shift", store.ErrInvalidState, shift.CashierID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		number, err := nextNumberTx(ctx, tx, store.PrefixShift, shift.StoreID, shift.OpenedAt)
		if err != nil {
			return err
		}
		shift.Number = number

		_, err = tx.ExecContext(ctx, `
			INSERT INTO shifts (
				id, number, cashier_id, store_id, status, opening_cash_cents,
				closing_cash_cents, expected_cash_cents, cash_difference_cents,
				total_sales_cents, total_transactions, notes, opened_at, closed_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,0,0,0,0,0,NULL,$7,NULL)
		`, shift.ID, shift.Number, shift.CashierID, shift.StoreID, shift.Status, shift.OpeningCashCents, shift.OpenedAt)
		if err != nil {
			// A partial unique index on (cashier_id) WHERE status = 'open'
			// backstops the check above under concurrency.
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: cashier %s already has an open shift", store.ErrInvalidState, shift.CashierID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := shift
	return &created, nil
}

func (s *Store) CloseShift(ctx context.Context, id string, closingCashCents int64, notes string, at time.Time) (*domain.Shift, error) {
	if closingCashCents < 0 {
		return nil, fmt.Errorf("%w: closing cash must not be negative", store.ErrValidation)
	}

	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		var status string
		var openingCashCents int64
		err := tx.QueryRowContext(ctx, `
			SELECT status, opening_cash_cents FROM shifts WHERE id = $1 FOR UPDATE
		`, id).Scan(&status, &openingCashCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: shift %s", store.ErrNotFound, id)
			}
			return err
		}
		if !domain.ShiftCanTransition(status, domain.ShiftStatusClosed) {
			return fmt.Errorf("%w: cannot close shift in status %s", store.ErrInvalidState, status)
		}

		var totalSalesCents int64
		var totalTransactions int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_cents),0)::bigint, COUNT(*)::bigint
			FROM orders
			WHERE shift_id = $1 AND status = $2
		`, id, domain.OrderStatusCompleted).Scan(&totalSalesCents, &totalTransactions)
		if err != nil {
			return err
		}

		var cash int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(p.amount_cents),0)::bigint
			FROM payments p
			JOIN orders o ON o.id = p.order_id
			WHERE o.shift_id = $1 AND o.status = $2 AND p.status = $3 AND p.method_id = $4
		`, id, domain.OrderStatusCompleted, domain.PaymentStatusCompleted, domain.PaymentMethodCash).Scan(&cash)
		if err != nil {
			return err
		}

		expected := openingCashCents + cash
		_, err = tx.ExecContext(ctx, `
			UPDATE shifts
			SET status = $2, closing_cash_cents = $3, expected_cash_cents = $4,
				cash_difference_cents = $5, total_sales_cents = $6, total_transactions = $7,
				notes = $8, closed_at = $9
			WHERE id = $1
		`, id, domain.ShiftStatusClosed, closingCashCents, expected,
			closingCashCents-expected, totalSalesCents, totalTransactions, nullIfEmpty(notes), at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetShiftByID(ctx, id)
}

func scanShift(row *sql.Row) (*domain.Shift, error) {
	var shift domain.Shift
	var notes sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.Number, &shift.CashierID, &shift.StoreID, &shift.Status,
		&shift.OpeningCashCents, &shift.ClosingCashCents, &shift.ExpectedCashCents,
		&shift.CashDifferenceCents, &shift.TotalSalesCents, &shift.TotalTransactions,
		&notes, &shift.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	shift.Notes = notes.String
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	return &shift, nil
}

func (s *Store) GetShiftByID(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, number, cashier_id, store_id, status, opening_cash_cents,
			closing_cash_cents, expected_cash_cents, cash_difference_cents,
			total_sales_cents, total_transactions, notes, opened_at, closed_at
		FROM shifts
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) GetActiveShiftByCashier(ctx context.Context, cashierID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, number, cashier_id, store_id, status, opening_cash_cents,
			closing_cash_cents, expected_cash_cents, cash_difference_cents,
			total_sales_cents, total_transactions, notes, opened_at, closed_at
		FROM shifts
		WHERE cashier_id = $1 AND status = $2
		ORDER BY opened_at DESC
		LIMIT 1
	`, cashierID, domain.ShiftStatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no open shift for cashier %s", store.ErrNotFound, cashierID)
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, commission_rate_percent, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.CommissionRatePercent, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %s taken", store.ErrValidation, user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, commission_rate_percent, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.CommissionRatePercent, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, commission_rate_percent, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.CommissionRatePercent, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if password == "" {
		return fmt.Errorf("%w: password required", store.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
