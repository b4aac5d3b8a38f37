package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/store"
)

func mustLevel(t *testing.T, s *Store, storeID, variantID string) domain.StockLevel {
	t.Helper()
	level, err := s.GetStockLevel(context.Background(), storeID, variantID)
	if err != nil {
		t.Fatalf("get stock level: %v", err)
	}
	return *level
}

func draftOrder(t *testing.T, s *Store, lines []domain.OrderLine) *domain.Order {
	t.Helper()
	order, err := s.CreateOrder(context.Background(), domain.Order{
		StoreID:   "main-store",
		CashierID: "cashier",
		Lines:     lines,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func payInFull(t *testing.T, s *Store, order *domain.Order) {
	t.Helper()
	_, err := s.AddPayment(context.Background(), domain.Payment{
		OrderID:     order.ID,
		MethodID:    domain.PaymentMethodCash,
		AmountCents: order.TotalCents,
		Status:      domain.PaymentStatusCompleted,
	})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}
}

func TestCreateOrderReservesStock(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-espresso", SKU: "SKU-ESPRESSO", Qty: 2, UnitPriceCents: 18500, TaxRatePercent: 10},
	})

	if order.Status != domain.OrderStatusDraft {
		t.Fatalf("expected draft status, got %s", order.Status)
	}
	if !strings.HasPrefix(order.Number, "ORD-") {
		t.Fatalf("expected ORD- number, got %s", order.Number)
	}
	if order.TotalCents != 40700 {
		t.Fatalf("expected total 40700, got %d", order.TotalCents)
	}

	level := mustLevel(t, s, "main-store", "var-espresso")
	if level.Available != 98 || level.Reserved != 2 || level.OnHand != 100 {
		t.Fatalf("unexpected level after reserve: %+v", level)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.ReserveStock(ctx, "main-store", []domain.StockChange{
				{VariantID: "var-tea", Qty: 10},
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d", succeeded)
	}

	level := mustLevel(t, s, "main-store", "var-tea")
	if level.Available != 0 || level.Reserved != 100 || level.OnHand != 100 {
		t.Fatalf("unexpected final level: %+v", level)
	}
}

func TestBatchReservationAllOrNothing(t *testing.T) {
	s := NewSeeded()
	err := s.ReserveStock(context.Background(), "main-store", []domain.StockChange{
		{VariantID: "var-espresso", Qty: 50},
		{VariantID: "var-oatmilk", Qty: 1000},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// The first change must not have been applied.
	level := mustLevel(t, s, "main-store", "var-espresso")
	if level.Available != 100 || level.Reserved != 0 {
		t.Fatalf("partial batch leaked into the ledger: %+v", level)
	}
}

func TestBatchWithDuplicateVariantSums(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Two changes for the same variant exceed availability only in sum.
	err := s.ReserveStock(ctx, "main-store", []domain.StockChange{
		{VariantID: "var-honey", Qty: 60},
		{VariantID: "var-honey", Qty: 60},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on summed batch, got %v", err)
	}

	if err := s.ReserveStock(ctx, "main-store", []domain.StockChange{
		{VariantID: "var-honey", Qty: 60},
		{VariantID: "var-honey", Qty: 40},
	}); err != nil {
		t.Fatalf("summed batch within availability failed: %v", err)
	}
	level := mustLevel(t, s, "main-store", "var-honey")
	if level.Available != 0 || level.Reserved != 100 {
		t.Fatalf("unexpected level: %+v", level)
	}
}

func TestCompleteOrderRequiresFullPayment(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-butter", SKU: "SKU-BUTTER", Qty: 1, UnitPriceCents: 5600, TaxRatePercent: 10},
	})

	_, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC())
	if !errors.Is(err, store.ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment, got %v", err)
	}

	_, err = s.AddPayment(context.Background(), domain.Payment{
		OrderID:     order.ID,
		MethodID:    domain.PaymentMethodCash,
		AmountCents: order.TotalCents - 1,
		Status:      domain.PaymentStatusCompleted,
	})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if _, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC()); !errors.Is(err, store.ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment at total-1, got %v", err)
	}
}

func TestCompleteOrderConsumesReservationAndAccrues(t *testing.T) {
	s := NewSeeded()
	order, err := s.CreateOrder(context.Background(), domain.Order{
		StoreID:    "main-store",
		CashierID:  "cashier",
		CustomerID: "cust-gold",
		Lines: []domain.OrderLine{
			{VariantID: "var-espresso", SKU: "SKU-ESPRESSO", Qty: 2, UnitPriceCents: 18500, TaxRatePercent: 10},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	payInFull(t, s, order)

	completed, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete order: %v", err)
	}
	if completed.Status != domain.OrderStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("unexpected completed order: %+v", completed)
	}

	level := mustLevel(t, s, "main-store", "var-espresso")
	if level.Available != 98 || level.Reserved != 0 || level.OnHand != 98 {
		t.Fatalf("unexpected level after completion: %+v", level)
	}

	// Seeded cashier carries a 5% commission rate.
	commission, err := s.GetCommissionByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get commission: %v", err)
	}
	if commission.AmountCents != 2035 {
		t.Fatalf("expected commission 2035 on total %d, got %d", completed.TotalCents, commission.AmountCents)
	}

	customer, err := s.GetCustomerByID(context.Background(), "cust-gold")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.PurchaseCount != 1 || customer.TotalSpentCents != completed.TotalCents {
		t.Fatalf("customer stats not updated: %+v", customer)
	}
	if customer.LoyaltyPoints != 814 {
		t.Fatalf("expected 814 loyalty points at 2x multiplier, got %d", customer.LoyaltyPoints)
	}
}

func TestCompleteOrderTwiceFails(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-flour", SKU: "SKU-FLOUR", Qty: 1, UnitPriceCents: 3100},
	})
	payInFull(t, s, order)

	if _, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC()); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if _, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on re-complete, got %v", err)
	}
}

func TestVoidReleasesReservation(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-oatmilk", SKU: "SKU-OATMILK", Qty: 5, UnitPriceCents: 4200, TaxRatePercent: 10},
	})

	voided, err := s.VoidOrder(context.Background(), order.ID, "customer walked out", time.Now().UTC())
	if err != nil {
		t.Fatalf("void order: %v", err)
	}
	if voided.Status != domain.OrderStatusVoided {
		t.Fatalf("expected voided status, got %s", voided.Status)
	}

	level := mustLevel(t, s, "main-store", "var-oatmilk")
	if level.Available != 100 || level.Reserved != 0 {
		t.Fatalf("reservation not released: %+v", level)
	}
}

func TestVoidCompletedOrderFails(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-flour", SKU: "SKU-FLOUR", Qty: 1, UnitPriceCents: 3100},
	})
	payInFull(t, s, order)
	if _, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := s.VoidOrder(context.Background(), order.ID, "too late", time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestHoldThenCompleteKeepsReservation(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-tea", SKU: "SKU-TEA", Qty: 3, UnitPriceCents: 7200, TaxRatePercent: 10},
	})

	held, err := s.HoldOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("hold order: %v", err)
	}
	if held.Status != domain.OrderStatusOnHold {
		t.Fatalf("expected on_hold, got %s", held.Status)
	}
	level := mustLevel(t, s, "main-store", "var-tea")
	if level.Reserved != 3 {
		t.Fatalf("hold must keep the reservation: %+v", level)
	}

	payInFull(t, s, held)
	if _, err := s.CompleteOrder(context.Background(), order.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete held order: %v", err)
	}
}

func TestReturnRestocksAndGuardsCumulativeQty(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-honey", SKU: "SKU-HONEY", Qty: 2, UnitPriceCents: 9800, TaxRatePercent: 10},
	})
	payInFull(t, s, order)
	if _, err := s.CompleteOrder(ctx, order.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	ret, err := s.CreateReturnOrder(ctx, domain.Order{
		StoreID:         "main-store",
		CashierID:       "admin",
		OriginalOrderID: order.ID,
		ReturnReason:    "damaged jar",
		Lines: []domain.OrderLine{
			{VariantID: "var-honey", SKU: "SKU-HONEY", Qty: -1, UnitPriceCents: 9800, TaxRatePercent: 10},
		},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if !strings.HasPrefix(ret.Number, "RET-") {
		t.Fatalf("expected RET- number, got %s", ret.Number)
	}
	if ret.TotalCents != -10780 {
		t.Fatalf("expected refund total -10780, got %d", ret.TotalCents)
	}
	if len(ret.Payments) != 1 || ret.Payments[0].Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected one refunded payment, got %+v", ret.Payments)
	}
	if ret.Payments[0].MethodID != domain.PaymentMethodCash {
		t.Fatalf("refund must use the original tender, got %s", ret.Payments[0].MethodID)
	}

	level := mustLevel(t, s, "main-store", "var-honey")
	if level.Available != 99 || level.OnHand != 99 {
		t.Fatalf("return not restocked: %+v", level)
	}

	original, err := s.GetOrderByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if original.Status != domain.OrderStatusReturned {
		t.Fatalf("original must be marked returned, got %s", original.Status)
	}

	// Second partial return of the remaining unit is fine.
	if _, err := s.CreateReturnOrder(ctx, domain.Order{
		StoreID:         "main-store",
		CashierID:       "admin",
		OriginalOrderID: order.ID,
		ReturnReason:    "changed mind",
		Lines: []domain.OrderLine{
			{VariantID: "var-honey", SKU: "SKU-HONEY", Qty: -1, UnitPriceCents: 9800, TaxRatePercent: 10},
		},
	}); err != nil {
		t.Fatalf("second return: %v", err)
	}

	// A third return would exceed the sold quantity.
	_, err = s.CreateReturnOrder(ctx, domain.Order{
		StoreID:         "main-store",
		CashierID:       "admin",
		OriginalOrderID: order.ID,
		ReturnReason:    "greedy",
		Lines: []domain.OrderLine{
			{VariantID: "var-honey", SKU: "SKU-HONEY", Qty: -1, UnitPriceCents: 9800, TaxRatePercent: 10},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error on over-return, got %v", err)
	}
}

func TestReturnRequiresCompletedOriginal(t *testing.T) {
	s := NewSeeded()
	order := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-tea", SKU: "SKU-TEA", Qty: 1, UnitPriceCents: 7200, TaxRatePercent: 10},
	})

	_, err := s.CreateReturnOrder(context.Background(), domain.Order{
		StoreID:         "main-store",
		OriginalOrderID: order.ID,
		Lines: []domain.OrderLine{
			{VariantID: "var-tea", SKU: "SKU-TEA", Qty: -1, UnitPriceCents: 7200, TaxRatePercent: 10},
		},
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state for draft original, got %v", err)
	}
}

func TestDocumentNumbersAreSequentialPerDay(t *testing.T) {
	s := NewSeeded()
	first := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-flour", SKU: "SKU-FLOUR", Qty: 1, UnitPriceCents: 3100},
	})
	second := draftOrder(t, s, []domain.OrderLine{
		{VariantID: "var-flour", SKU: "SKU-FLOUR", Qty: 1, UnitPriceCents: 3100},
	})

	day := time.Now().UTC().Format("20060102")
	if first.Number != fmt.Sprintf("ORD-%s-0001", day) {
		t.Fatalf("unexpected first number %s", first.Number)
	}
	if second.Number != fmt.Sprintf("ORD-%s-0002", day) {
		t.Fatalf("unexpected second number %s", second.Number)
	}
}

func TestGoodsReceiptLifecycle(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	receipt, err := s.CreateGoodsReceipt(ctx, domain.GoodsReceipt{
		StoreID:     "main-store",
		SupplierRef: "PO-778",
		CreatedBy:   "admin",
		Lines: []domain.GoodsLine{
			{VariantID: "var-espresso", SKU: "SKU-ESPRESSO", Qty: 25, UnitCostCents: 11000},
		},
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if receipt.Status != domain.GoodsStatusDraft || !strings.HasPrefix(receipt.Number, "GR-") {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	// Draft receipts must not touch the ledger.
	level := mustLevel(t, s, "main-store", "var-espresso")
	if level.Available != 100 {
		t.Fatalf("draft receipt posted stock: %+v", level)
	}

	completed, err := s.CompleteGoodsReceipt(ctx, receipt.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete receipt: %v", err)
	}
	if completed.Status != domain.GoodsStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	level = mustLevel(t, s, "main-store", "var-espresso")
	if level.Available != 125 || level.OnHand != 125 {
		t.Fatalf("receipt not posted: %+v", level)
	}

	if _, err := s.CompleteGoodsReceipt(ctx, receipt.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on re-complete, got %v", err)
	}
}

func TestTransferMovesStockBetweenStores(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	issue, err := s.CreateGoodsIssue(ctx, domain.GoodsIssue{
		StoreID:     "main-store",
		Type:        domain.IssueTypeTransfer,
		DestStoreID: "branch-2",
		Reason:      "rebalance",
		CreatedBy:   "admin",
		Lines: []domain.GoodsLine{
			{VariantID: "var-butter", SKU: "SKU-BUTTER", Qty: 30, UnitCostCents: 3900},
		},
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	if _, err := s.CompleteGoodsIssue(ctx, issue.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete transfer: %v", err)
	}

	source := mustLevel(t, s, "main-store", "var-butter")
	if source.Available != 70 || source.OnHand != 70 {
		t.Fatalf("source leg not applied: %+v", source)
	}
	dest := mustLevel(t, s, "branch-2", "var-butter")
	if dest.Available != 30 || dest.OnHand != 30 {
		t.Fatalf("destination leg not applied: %+v", dest)
	}
}

func TestOversizedTransferLeavesSourceUntouched(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	issue, err := s.CreateGoodsIssue(ctx, domain.GoodsIssue{
		StoreID:     "main-store",
		Type:        domain.IssueTypeTransfer,
		DestStoreID: "branch-2",
		Reason:      "rebalance",
		CreatedBy:   "admin",
		Lines: []domain.GoodsLine{
			{VariantID: "var-butter", SKU: "SKU-BUTTER", Qty: 500, UnitCostCents: 3900},
		},
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	if _, err := s.CompleteGoodsIssue(ctx, issue.ID, time.Now().UTC()); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	source := mustLevel(t, s, "main-store", "var-butter")
	if source.Available != 100 || source.OnHand != 100 {
		t.Fatalf("failed transfer mutated source: %+v", source)
	}
	if _, err := s.GetStockLevel(ctx, "branch-2", "var-butter"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed transfer created destination level: %v", err)
	}
}

func TestFailedTransferDestinationLegRestoresSource(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// A stock level with no catalog variant makes the source leg succeed and
	// the destination leg fail, which is the only way to reach the undo.
	s.mu.Lock()
	s.stock["main-store"]["var-ghost"] = domain.StockLevel{
		VariantID: "var-ghost",
		StoreID:   "main-store",
		Available: 40,
		OnHand:    40,
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Unlock()

	issue, err := s.CreateGoodsIssue(ctx, domain.GoodsIssue{
		StoreID:     "main-store",
		Type:        domain.IssueTypeTransfer,
		DestStoreID: "branch-2",
		Reason:      "rebalance",
		CreatedBy:   "admin",
		Lines: []domain.GoodsLine{
			{VariantID: "var-ghost", SKU: "SKU-GHOST", Qty: 5, UnitCostCents: 100},
		},
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	if _, err := s.CompleteGoodsIssue(ctx, issue.ID, time.Now().UTC()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found from destination leg, got %v", err)
	}

	source := mustLevel(t, s, "main-store", "var-ghost")
	if source.Available != 40 || source.OnHand != 40 || source.Reserved != 0 {
		t.Fatalf("undo did not restore source leg: %+v", source)
	}

	fetched, err := s.GetGoodsIssueByID(ctx, issue.ID)
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if fetched.Status != domain.GoodsStatusDraft {
		t.Fatalf("failed transfer must stay draft, got %s", fetched.Status)
	}
}

func TestStocktakeReconciliation(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Reserve 5 units so a short count can drive available negative.
	if err := s.ReserveStock(ctx, "main-store", []domain.StockChange{
		{VariantID: "var-tea", Qty: 5},
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	st, err := s.CreateStocktake(ctx, domain.Stocktake{
		StoreID:   "main-store",
		CreatedBy: "admin",
		Items: []domain.StocktakeItem{
			{VariantID: "var-tea", SKU: "SKU-TEA"},
			{VariantID: "var-flour", SKU: "SKU-FLOUR"},
		},
	})
	if err != nil {
		t.Fatalf("create stocktake: %v", err)
	}
	if st.Status != domain.StocktakeStatusScheduled || !strings.HasPrefix(st.Number, "STK-") {
		t.Fatalf("unexpected stocktake: %+v", st)
	}
	if st.Items[0].SystemQty != 100 {
		t.Fatalf("system qty must snapshot on-hand, got %d", st.Items[0].SystemQty)
	}

	if _, err := s.StartStocktake(ctx, st.ID, time.Now().UTC()); err != nil {
		t.Fatalf("start stocktake: %v", err)
	}

	// Finalizing before every item is counted is rejected.
	if _, err := s.FinalizeStocktake(ctx, st.ID, time.Now().UTC()); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error on uncounted items, got %v", err)
	}

	if _, err := s.RecordStocktakeCounts(ctx, st.ID, []domain.StocktakeCount{
		{SKU: "SKU-TEA", CountedQty: 3},
		{SKU: "SKU-FLOUR", CountedQty: 102},
	}); err != nil {
		t.Fatalf("record counts: %v", err)
	}

	summary, err := s.FinalizeStocktake(ctx, st.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if summary.ItemCount != 2 || summary.VarianceCount != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	// tea shortage 97 * 4300 = -417100, flour surplus 2 * 1900 = 3800
	if summary.TotalVarianceValueCents != -413300 {
		t.Fatalf("expected variance value -413300, got %d", summary.TotalVarianceValueCents)
	}
	if len(summary.Warnings) != 1 {
		t.Fatalf("expected one negative-available warning, got %v", summary.Warnings)
	}
	if summary.AdjustmentIssueID == "" {
		t.Fatalf("expected an adjustment issue to be recorded")
	}

	issue, err := s.GetGoodsIssueByID(ctx, summary.AdjustmentIssueID)
	if err != nil {
		t.Fatalf("get adjustment issue: %v", err)
	}
	if issue.Type != domain.IssueTypeAdjustment || issue.Status != domain.GoodsStatusCompleted {
		t.Fatalf("unexpected adjustment issue: %+v", issue)
	}
	if issue.SourceRef != st.ID {
		t.Fatalf("adjustment issue must reference the stocktake, got %s", issue.SourceRef)
	}

	tea := mustLevel(t, s, "main-store", "var-tea")
	if tea.OnHand != 3 || tea.Reserved != 5 || tea.Available != -2 {
		t.Fatalf("tea level not pinned to count: %+v", tea)
	}
	flour := mustLevel(t, s, "main-store", "var-flour")
	if flour.OnHand != 102 || flour.Available != 102 {
		t.Fatalf("flour level not pinned to count: %+v", flour)
	}
}

func TestShiftLifecycle(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	shift, err := s.StartShift(ctx, domain.Shift{
		CashierID:        "cashier",
		StoreID:          "main-store",
		OpeningCashCents: 50000,
	})
	if err != nil {
		t.Fatalf("start shift: %v", err)
	}
	if !strings.HasPrefix(shift.Number, "SHF-") {
		t.Fatalf("expected SHF- number, got %s", shift.Number)
	}

	// Second shift for the same cashier is rejected while one is open.
	if _, err := s.StartShift(ctx, domain.Shift{
		CashierID:        "cashier",
		StoreID:          "main-store",
		OpeningCashCents: 0,
	}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	order, err := s.CreateOrder(ctx, domain.Order{
		StoreID:   "main-store",
		CashierID: "cashier",
		ShiftID:   shift.ID,
		Lines: []domain.OrderLine{
			{VariantID: "var-oatmilk", SKU: "SKU-OATMILK", Qty: 2, UnitPriceCents: 4200, TaxRatePercent: 10},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	payInFull(t, s, order)
	if _, err := s.CompleteOrder(ctx, order.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete order: %v", err)
	}

	// A voided order on the same shift must not count toward totals.
	leftover, err := s.CreateOrder(ctx, domain.Order{
		StoreID:   "main-store",
		CashierID: "cashier",
		ShiftID:   shift.ID,
		Lines: []domain.OrderLine{
			{VariantID: "var-flour", SKU: "SKU-FLOUR", Qty: 1, UnitPriceCents: 3100},
		},
	})
	if err != nil {
		t.Fatalf("create second order: %v", err)
	}
	if _, err := s.VoidOrder(ctx, leftover.ID, "abandoned", time.Now().UTC()); err != nil {
		t.Fatalf("void: %v", err)
	}

	expected := int64(50000) + order.TotalCents
	closed, err := s.CloseShift(ctx, shift.ID, expected-500, "drawer short", time.Now().UTC())
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.ExpectedCashCents != expected {
		t.Fatalf("expected cash %d, got %d", expected, closed.ExpectedCashCents)
	}
	if closed.CashDifferenceCents != -500 {
		t.Fatalf("expected difference -500, got %d", closed.CashDifferenceCents)
	}
	if closed.TotalSalesCents != order.TotalCents || closed.TotalTransactions != 1 {
		t.Fatalf("unexpected shift totals: %+v", closed)
	}

	if _, err := s.CloseShift(ctx, shift.ID, expected, "", time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on double close, got %v", err)
	}

	// Closing frees the cashier for the next shift.
	if _, err := s.StartShift(ctx, domain.Shift{
		CashierID:        "cashier",
		StoreID:          "main-store",
		OpeningCashCents: 10000,
	}); err != nil {
		t.Fatalf("start after close: %v", err)
	}
}

func TestAdjustStockCannotDriveAvailableNegative(t *testing.T) {
	s := NewSeeded()
	err := s.AdjustStock(context.Background(), "main-store", []domain.StockChange{
		{VariantID: "var-flour", Qty: -101},
	}, "breakage")
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCreateVariantWithInitialStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateVariant(ctx, domain.Variant{
		SKU:        "SKU-COCOA",
		Name:       "Cocoa Powder 200g",
		PriceCents: 6100,
		CostCents:  3700,
		Active:     true,
	}, "main-store", 40)
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	level := mustLevel(t, s, "main-store", created.ID)
	if level.Available != 40 || level.OnHand != 40 {
		t.Fatalf("initial stock not posted: %+v", level)
	}

	// Duplicate SKU is rejected.
	if _, err := s.CreateVariant(ctx, domain.Variant{
		SKU:        "SKU-COCOA",
		Name:       "Duplicate",
		PriceCents: 100,
	}, "main-store", 0); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error on duplicate sku, got %v", err)
	}
}
