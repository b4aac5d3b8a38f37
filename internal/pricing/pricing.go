// Package pricing centralizes money math so both repository implementations
// and the service compute identical amounts. Stored amounts are int64 minor
// units; decimals are used for intermediate ratio math only.
package pricing

import (
	"github.com/shopspring/decimal"

	"lumapos/backend/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// LineTax is line subtotal (qty x unit price) times rate/100, rounded half
// away from zero. Tax is computed on the undiscounted subtotal.
func LineTax(lineSubtotalCents int64, taxRatePercent float64) int64 {
	return decimal.NewFromInt(lineSubtotalCents).
		Mul(decimal.NewFromFloat(taxRatePercent)).
		Div(oneHundred).
		Round(0).
		IntPart()
}

// ComputeLine fills the derived amount on one line: qty x unit price, plus
// tax, minus discount. Works symmetrically for negative return quantities.
func ComputeLine(line domain.OrderLine) domain.OrderLine {
	subtotal := int64(line.Qty) * line.UnitPriceCents
	line.LineTotalCents = subtotal + LineTax(subtotal, line.TaxRatePercent) - line.DiscountCents
	return line
}

// ComputeTotals recomputes the order header amounts from its lines:
// total = subtotal + tax - discount.
func ComputeTotals(lines []domain.OrderLine) (subtotal, tax, discount, total int64) {
	for _, line := range lines {
		lineSubtotal := int64(line.Qty) * line.UnitPriceCents
		subtotal += lineSubtotal
		tax += LineTax(lineSubtotal, line.TaxRatePercent)
		discount += line.DiscountCents
	}
	total = subtotal + tax - discount
	return subtotal, tax, discount, total
}

// LoyaltyPoints is floor(total x 0.01 x groupMultiplier).
func LoyaltyPoints(totalCents int64, groupMultiplier float64) int64 {
	if totalCents <= 0 || groupMultiplier <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromFloat(0.01)).
		Mul(decimal.NewFromFloat(groupMultiplier)).
		Floor().
		IntPart()
}

// CommissionCents is total x rate/100, rounded half away from zero.
func CommissionCents(totalCents int64, ratePercent float64) int64 {
	if totalCents <= 0 || ratePercent <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromFloat(ratePercent)).
		Div(oneHundred).
		Round(0).
		IntPart()
}

// VarianceValueCents is the signed value of a stocktake variance at unit
// cost.
func VarianceValueCents(variance int, unitCostCents int64) int64 {
	return int64(variance) * unitCostCents
}
