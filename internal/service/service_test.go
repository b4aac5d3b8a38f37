package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/store"
	"lumapos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, nil, nil, "main-store", 0)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func openShift(t *testing.T, svc *Service, ctx context.Context) domain.Shift {
	t.Helper()
	shift, err := svc.StartShift(ctx, domain.ShiftStartRequest{OpeningCashCents: 20000})
	if err != nil {
		t.Fatalf("start shift: %v", err)
	}
	return shift
}

func TestRequireActorRejectsAnonymous(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateOrder(context.Background(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-TEA", Qty: 1}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAdminOnlyOperationsRejectCashier(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.CreateVariant(ctx, domain.VariantCreateRequest{SKU: "SKU-X", Name: "X", PriceCents: 100}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("create variant: expected forbidden, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "", "SKU-TEA", -1, "breakage"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("adjust stock: expected forbidden, got %v", err)
	}
	if _, err := svc.VoidOrder(ctx, domain.VoidOrderRequest{OrderID: "x", Reason: "y"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("void order: expected forbidden, got %v", err)
	}
	if _, err := svc.FinalizeStocktake(ctx, "x"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("finalize stocktake: expected forbidden, got %v", err)
	}
	if err := svc.CreateCashier(ctx, domain.CashierCreateRequest{Username: "new", Password: "longenough"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("create cashier: expected forbidden, got %v", err)
	}
	if _, err := svc.ListAuditLogs(ctx, "", time.Time{}, time.Time{}, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("audit logs: expected forbidden, got %v", err)
	}
}

func TestCreateOrderRequiresOpenShift(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateOrder(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-TEA", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state without a shift, got %v", err)
	}
}

func TestOrderFlowNormalizesSKUAndPrices(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openShift(t, svc, ctx)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{
			{SKU: "  sku-espresso ", Qty: 2, DiscountCents: 500},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Lines[0].SKU != "SKU-ESPRESSO" {
		t.Fatalf("sku not normalized: %s", order.Lines[0].SKU)
	}
	if order.Lines[0].UnitPriceCents != 18500 {
		t.Fatalf("price must come from the catalog, got %d", order.Lines[0].UnitPriceCents)
	}
	// subtotal 37000 + tax 3700 - discount 500
	if order.TotalCents != 40200 {
		t.Fatalf("expected total 40200, got %d", order.TotalCents)
	}

	if _, err := svc.AddPayment(ctx, domain.PaymentRequest{
		OrderID: order.ID, MethodID: "CASH ", AmountCents: order.TotalCents,
	}); err != nil {
		t.Fatalf("add payment: %v", err)
	}

	completed, err := svc.CompleteOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("complete order: %v", err)
	}
	if completed.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	level, err := svc.GetStockLevel(ctx, "", "SKU-ESPRESSO")
	if err != nil {
		t.Fatalf("get stock level: %v", err)
	}
	if level.OnHand != 98 || level.Reserved != 0 {
		t.Fatalf("unexpected level after sale: %+v", level)
	}
}

func TestCreateOrderRejectsExcessiveDiscount(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openShift(t, svc, ctx)

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{
			{SKU: "SKU-FLOUR", Qty: 1, DiscountCents: 99999},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrderUnknownSKU(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openShift(t, svc, ctx)

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-NOPE", Qty: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVoidOrderRestoresAvailability(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	admin := adminCtx()
	openShift(t, svc, cashier)

	order, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-OATMILK", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := svc.VoidOrder(admin, domain.VoidOrderRequest{OrderID: order.ID, Reason: "test void"}); err != nil {
		t.Fatalf("void order: %v", err)
	}

	level, err := svc.GetStockLevel(admin, "", "SKU-OATMILK")
	if err != nil {
		t.Fatalf("get stock level: %v", err)
	}
	if level.Available != 100 || level.Reserved != 0 {
		t.Fatalf("void did not release: %+v", level)
	}
}

func TestVoidOrderRequiresReason(t *testing.T) {
	svc := newTestService()
	if _, err := svc.VoidOrder(adminCtx(), domain.VoidOrderRequest{OrderID: "x", Reason: "  "}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReturnOrderRejectsUnsoldSKU(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	admin := adminCtx()
	openShift(t, svc, cashier)

	order, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-HONEY", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.AddPayment(cashier, domain.PaymentRequest{
		OrderID: order.ID, MethodID: "cash", AmountCents: order.TotalCents,
	}); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if _, err := svc.CompleteOrder(cashier, order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err = svc.ReturnOrder(admin, domain.ReturnRequest{
		OriginalOrderID: order.ID,
		Reason:          "wrong item",
		Items:           []domain.ReturnItemRequest{{SKU: "SKU-TEA", Qty: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReturnOrderRefundsAndRestocks(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	admin := adminCtx()
	openShift(t, svc, cashier)

	order, err := svc.CreateOrder(cashier, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-HONEY", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.AddPayment(cashier, domain.PaymentRequest{
		OrderID: order.ID, MethodID: "card", AmountCents: order.TotalCents,
	}); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if _, err := svc.CompleteOrder(cashier, order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	ret, err := svc.ReturnOrder(admin, domain.ReturnRequest{
		OriginalOrderID: order.ID,
		Reason:          "damaged",
		Items:           []domain.ReturnItemRequest{{SKU: "sku-honey", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("return order: %v", err)
	}
	if ret.Type != domain.OrderTypeReturn || ret.TotalCents >= 0 {
		t.Fatalf("unexpected return order: %+v", ret)
	}
	if len(ret.Payments) != 1 || ret.Payments[0].MethodID != "card" {
		t.Fatalf("refund must reuse the original tender: %+v", ret.Payments)
	}

	level, err := svc.GetStockLevel(admin, "", "SKU-HONEY")
	if err != nil {
		t.Fatalf("get stock level: %v", err)
	}
	if level.OnHand != 99 {
		t.Fatalf("return not restocked: %+v", level)
	}
}

func TestAdjustStockValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.AdjustStock(ctx, "", "SKU-TEA", 0, "reason"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("zero delta: expected validation error, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "", "SKU-TEA", 5, "  "); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("blank reason: expected validation error, got %v", err)
	}

	level, err := svc.AdjustStock(ctx, "", "SKU-TEA", -10, "breakage")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if level.Available != 90 || level.OnHand != 90 {
		t.Fatalf("unexpected level after adjust: %+v", level)
	}
}

func TestGoodsIssueRejectsAdjustmentType(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateGoodsIssue(adminCtx(), domain.GoodsIssueCreateRequest{
		Type:  "adjustment",
		Lines: []domain.GoodsLineRequest{{SKU: "SKU-TEA", Qty: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransferRequiresDistinctDestination(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateGoodsIssue(adminCtx(), domain.GoodsIssueCreateRequest{
		Type:        "transfer",
		DestStoreID: "main-store",
		Lines:       []domain.GoodsLineRequest{{SKU: "SKU-TEA", Qty: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStocktakeEndToEnd(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	st, err := svc.CreateStocktake(ctx, domain.StocktakeCreateRequest{
		SKUs: []string{"sku-tea", "SKU-TEA", "SKU-FLOUR"},
	})
	if err != nil {
		t.Fatalf("create stocktake: %v", err)
	}
	// Duplicate SKUs collapse.
	if len(st.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(st.Items))
	}

	if _, err := svc.StartStocktake(ctx, st.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.RecordStocktakeCounts(cashierCtx(), st.ID, domain.StocktakeCountRequest{
		Counts: []domain.StocktakeCount{
			{SKU: "SKU-TEA", CountedQty: 95},
			{SKU: "SKU-FLOUR", CountedQty: 100},
		},
	}); err != nil {
		t.Fatalf("record counts: %v", err)
	}

	summary, err := svc.FinalizeStocktake(ctx, st.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if summary.VarianceCount != 1 {
		t.Fatalf("expected one variance, got %d", summary.VarianceCount)
	}
	if summary.TotalVarianceValueCents != -21500 {
		t.Fatalf("expected -21500, got %d", summary.TotalVarianceValueCents)
	}
}

func TestCloseShiftBelongsToCashier(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	shift := openShift(t, svc, cashier)

	other := WithActor(context.Background(), domain.Actor{Username: "other-cashier", Role: "cashier"})
	if _, err := svc.CloseShift(other, shift.ID, domain.ShiftCloseRequest{ClosingCashCents: 20000}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for another cashier, got %v", err)
	}

	// Admins may close any shift.
	closed, err := svc.CloseShift(adminCtx(), shift.ID, domain.ShiftCloseRequest{ClosingCashCents: 20000})
	if err != nil {
		t.Fatalf("admin close: %v", err)
	}
	if closed.Status != domain.ShiftStatusClosed || closed.CashDifferenceCents != 0 {
		t.Fatalf("unexpected closed shift: %+v", closed)
	}
}

func TestCreateCashierValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if err := svc.CreateCashier(ctx, domain.CashierCreateRequest{Username: "new", Password: "short"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("short password: expected validation error, got %v", err)
	}
	if err := svc.CreateCashier(ctx, domain.CashierCreateRequest{Username: "new", Password: "longenough", CommissionRatePercent: 150}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("commission out of range: expected validation error, got %v", err)
	}

	if err := svc.CreateCashier(ctx, domain.CashierCreateRequest{Username: " NewKid ", Password: "longenough", CommissionRatePercent: 3}); err != nil {
		t.Fatalf("create cashier: %v", err)
	}

	cashiers, err := svc.ListCashiers(ctx)
	if err != nil {
		t.Fatalf("list cashiers: %v", err)
	}
	found := false
	for _, c := range cashiers {
		if c.Username == "newkid" {
			found = true
			if c.CommissionRatePercent != 3 {
				t.Fatalf("unexpected commission rate: %+v", c)
			}
		}
	}
	if !found {
		t.Fatalf("newkid not listed: %+v", cashiers)
	}
}

func TestAuditLogsRecordedForMutations(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.AdjustStock(ctx, "", "SKU-TEA", -1, "sample"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "", time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected at least one audit entry")
	}
	if logs[0].ActorUsername != "admin" || logs[0].Action == "" {
		t.Fatalf("unexpected audit entry: %+v", logs[0])
	}
}
