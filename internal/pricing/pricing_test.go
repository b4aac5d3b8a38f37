package pricing

import (
	"testing"

	"lumapos/backend/internal/domain"
)

func TestComputeLineAddsTaxAndSubtractsDiscount(t *testing.T) {
	line := ComputeLine(domain.OrderLine{
		Qty:            2,
		UnitPriceCents: 18500,
		TaxRatePercent: 10,
		DiscountCents:  1000,
	})
	// subtotal 37000, tax 3700, discount 1000
	if line.LineTotalCents != 39700 {
		t.Fatalf("expected 39700, got %d", line.LineTotalCents)
	}
}

func TestComputeLineNegativeQtyForReturns(t *testing.T) {
	line := ComputeLine(domain.OrderLine{
		Qty:            -1,
		UnitPriceCents: 4200,
		TaxRatePercent: 10,
	})
	if line.LineTotalCents != -4620 {
		t.Fatalf("expected -4620, got %d", line.LineTotalCents)
	}
}

func TestComputeTotals(t *testing.T) {
	subtotal, tax, discount, total := ComputeTotals([]domain.OrderLine{
		{Qty: 2, UnitPriceCents: 18500, TaxRatePercent: 10, DiscountCents: 1000},
		{Qty: 1, UnitPriceCents: 3100, TaxRatePercent: 0},
	})
	if subtotal != 40100 {
		t.Fatalf("expected subtotal 40100, got %d", subtotal)
	}
	if tax != 3700 {
		t.Fatalf("expected tax 3700, got %d", tax)
	}
	if discount != 1000 {
		t.Fatalf("expected discount 1000, got %d", discount)
	}
	if total != 42800 {
		t.Fatalf("expected total 42800, got %d", total)
	}
}

func TestLoyaltyPointsFloorsWithMultiplier(t *testing.T) {
	if got := LoyaltyPoints(42800, 1); got != 428 {
		t.Fatalf("expected 428 points, got %d", got)
	}
	if got := LoyaltyPoints(42800, 2); got != 856 {
		t.Fatalf("expected 856 points, got %d", got)
	}
	if got := LoyaltyPoints(199, 1); got != 1 {
		t.Fatalf("expected floor to 1 point, got %d", got)
	}
	if got := LoyaltyPoints(-500, 1); got != 0 {
		t.Fatalf("negative totals must award no points, got %d", got)
	}
}

func TestCommissionCents(t *testing.T) {
	if got := CommissionCents(1000000, 5); got != 50000 {
		t.Fatalf("expected 50000, got %d", got)
	}
	if got := CommissionCents(1000000, 0); got != 0 {
		t.Fatalf("zero rate must yield zero, got %d", got)
	}
	// 333 * 2.5% = 8.325 rounds to 8
	if got := CommissionCents(333, 2.5); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
}

func TestVarianceValueCents(t *testing.T) {
	if got := VarianceValueCents(-3, 11000); got != -33000 {
		t.Fatalf("expected -33000, got %d", got)
	}
	if got := VarianceValueCents(2, 2600); got != 5200 {
		t.Fatalf("expected 5200, got %d", got)
	}
}
