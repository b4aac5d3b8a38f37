package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/events"
	"lumapos/backend/internal/store"
)

// CreateOrder opens a draft order and reserves stock for every line in one
// atomic step. The cashier must have an open shift.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order requires at least one line", store.ErrValidation)
	}

	shift, err := s.repo.GetActiveShiftByCashier(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: open shift required", store.ErrInvalidState)
		}
		return domain.Order{}, err
	}

	skus := make([]string, 0, len(req.Lines))
	for i := range req.Lines {
		req.Lines[i].SKU = strings.ToUpper(strings.TrimSpace(req.Lines[i].SKU))
		if req.Lines[i].SKU == "" {
			return domain.Order{}, fmt.Errorf("%w: line sku required", store.ErrValidation)
		}
		if req.Lines[i].Qty < 1 {
			return domain.Order{}, fmt.Errorf("%w: line qty must be positive", store.ErrValidation)
		}
		if req.Lines[i].DiscountCents < 0 {
			return domain.Order{}, fmt.Errorf("%w: line discount must not be negative", store.ErrValidation)
		}
		skus = append(skus, req.Lines[i].SKU)
	}

	variants, err := s.repo.GetVariantsBySKUs(ctx, skus)
	if err != nil {
		return domain.Order{}, err
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, lr := range req.Lines {
		variant, ok := variants[lr.SKU]
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: variant %s", store.ErrNotFound, lr.SKU)
		}
		if lr.DiscountCents > variant.PriceCents*int64(lr.Qty) {
			return domain.Order{}, fmt.Errorf("%w: discount exceeds line subtotal for %s", store.ErrValidation, lr.SKU)
		}
		lines = append(lines, domain.OrderLine{
			VariantID:      variant.ID,
			SKU:            variant.SKU,
			Qty:            lr.Qty,
			UnitPriceCents: variant.PriceCents,
			DiscountCents:  lr.DiscountCents,
			TaxRatePercent: variant.TaxRatePercent,
		})
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err != nil {
			return domain.Order{}, err
		}
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		StoreID:    req.StoreID,
		CustomerID: req.CustomerID,
		CashierID:  actor.Username,
		ShiftID:    shift.ID,
		Type:       domain.OrderTypeSale,
		Lines:      lines,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidateStock(ctx, req.StoreID)
	s.logAudit(ctx, req.StoreID, "order_create", "order", created.ID,
		fmt.Sprintf("number=%s,total=%d,lines=%d", created.Number, created.TotalCents, len(created.Lines)))

	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: order id required", store.ErrValidation)
	}
	return s.repo.GetOrderByID(ctx, id)
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: order number required", store.ErrValidation)
	}
	return s.repo.GetOrderByNumber(ctx, number)
}

func (s *Service) ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, storeID, status, limit)
}

// HoldOrder parks a draft order so its reservations survive while the
// customer steps away.
func (s *Service) HoldOrder(ctx context.Context, id string) (domain.Order, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.Order{}, err
	}

	held, err := s.repo.HoldOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	s.logAudit(ctx, held.StoreID, "order_hold", "order", held.ID, held.Number)
	return *held, nil
}

func (s *Service) AddPayment(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.Payment{}, err
	}

	req.MethodID = strings.ToLower(strings.TrimSpace(req.MethodID))
	if req.OrderID == "" || req.MethodID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id and payment method required", store.ErrValidation)
	}
	if req.AmountCents < 1 {
		return domain.Payment{}, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}

	payment, err := s.repo.AddPayment(ctx, domain.Payment{
		OrderID:     req.OrderID,
		MethodID:    req.MethodID,
		AmountCents: req.AmountCents,
		Status:      domain.PaymentStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logAudit(ctx, "", "payment_add", "order", req.OrderID,
		fmt.Sprintf("method=%s,amount=%d", req.MethodID, req.AmountCents))
	return *payment, nil
}

// CompleteOrder turns reservations into consumption, awards loyalty points
// and accrues the cashier's commission, all in one commit.
func (s *Service) CompleteOrder(ctx context.Context, id string) (domain.Order, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.Order{}, err
	}

	completed, err := s.repo.CompleteOrder(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidateStock(ctx, completed.StoreID)
	s.publisher.Publish(ctx, events.OrderCompleted{
		OrderID:    completed.ID,
		TotalCents: completed.TotalCents,
		CustomerID: completed.CustomerID,
		At:         *completed.CompletedAt,
	})
	s.logAudit(ctx, completed.StoreID, "order_complete", "order", completed.ID,
		fmt.Sprintf("number=%s,total=%d", completed.Number, completed.TotalCents))

	return *completed, nil
}

// VoidOrder cancels an open order and releases its reservations back to
// available stock.
func (s *Service) VoidOrder(ctx context.Context, req domain.VoidOrderRequest) (domain.Order, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.OrderID == "" || req.Reason == "" {
		return domain.Order{}, fmt.Errorf("%w: order id and reason required", store.ErrValidation)
	}

	voided, err := s.repo.VoidOrder(ctx, req.OrderID, req.Reason, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidateStock(ctx, voided.StoreID)
	s.logAudit(ctx, voided.StoreID, "order_void", "order", voided.ID,
		fmt.Sprintf("number=%s,reason=%s", voided.Number, req.Reason))

	return *voided, nil
}

// ReturnOrder records a post-completion return: a counter-order with negative
// lines, an immediate restock and a refund through the original tender.
func (s *Service) ReturnOrder(ctx context.Context, req domain.ReturnRequest) (domain.Order, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.OriginalOrderID == "" || req.Reason == "" {
		return domain.Order{}, fmt.Errorf("%w: original order id and reason required", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: return requires at least one item", store.ErrValidation)
	}

	original, err := s.repo.GetOrderByID(ctx, req.OriginalOrderID)
	if err != nil {
		return domain.Order{}, err
	}

	lineBySKU := make(map[string]domain.OrderLine, len(original.Lines))
	for _, line := range original.Lines {
		lineBySKU[line.SKU] = line
	}

	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.Qty < 1 {
			return domain.Order{}, fmt.Errorf("%w: return qty must be positive", store.ErrValidation)
		}
		originalLine, ok := lineBySKU[sku]
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: sku %s was not sold on order %s", store.ErrValidation, sku, original.Number)
		}
		lines = append(lines, domain.OrderLine{
			VariantID:      originalLine.VariantID,
			SKU:            originalLine.SKU,
			Qty:            -item.Qty,
			UnitPriceCents: originalLine.UnitPriceCents,
			TaxRatePercent: originalLine.TaxRatePercent,
		})
	}

	// The cashier's open shift is attached when present so refunds show up
	// in that shift's history; returns are allowed without one.
	shiftID := ""
	if shift, err := s.repo.GetActiveShiftByCashier(ctx, actor.Username); err == nil {
		shiftID = shift.ID
	}

	created, err := s.repo.CreateReturnOrder(ctx, domain.Order{
		StoreID:         original.StoreID,
		CustomerID:      original.CustomerID,
		CashierID:       actor.Username,
		ShiftID:         shiftID,
		Type:            domain.OrderTypeReturn,
		OriginalOrderID: original.ID,
		ReturnReason:    req.Reason,
		Lines:           lines,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidateStock(ctx, created.StoreID)
	s.logAudit(ctx, created.StoreID, "order_return", "order", created.ID,
		fmt.Sprintf("number=%s,original=%s,refund=%d", created.Number, original.Number, created.TotalCents))

	return *created, nil
}

func (s *Service) GetCommissionByOrder(ctx context.Context, orderID string) (*domain.Commission, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id required", store.ErrValidation)
	}
	return s.repo.GetCommissionByOrder(ctx, orderID)
}
