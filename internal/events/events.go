// Package events carries the outward facts the engine emits for
// notification and reporting collaborators. Delivery transport is out of
// scope; collaborators plug in via Publisher.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type OrderCompleted struct {
	OrderID    string    `json:"order_id"`
	TotalCents int64     `json:"total_cents"`
	CustomerID string    `json:"customer_id,omitempty"`
	At         time.Time `json:"at"`
}

type StockAdjusted struct {
	VariantID string    `json:"variant_id"`
	StoreID   string    `json:"store_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

type ShiftClosed struct {
	ShiftID             string    `json:"shift_id"`
	CashDifferenceCents int64     `json:"cash_difference_cents"`
	At                  time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event any)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ any) {}

// LogPublisher writes each fact to the structured log. It stands in for the
// real notification transport in dev and in tests.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event any) {
	switch e := event.(type) {
	case OrderCompleted:
		p.logger.Info("order completed",
			zap.String("order_id", e.OrderID),
			zap.Int64("total_cents", e.TotalCents),
			zap.String("customer_id", e.CustomerID))
	case StockAdjusted:
		p.logger.Info("stock adjusted",
			zap.String("variant_id", e.VariantID),
			zap.String("store_id", e.StoreID),
			zap.Int("delta", e.Delta),
			zap.String("reason", e.Reason))
	case ShiftClosed:
		p.logger.Info("shift closed",
			zap.String("shift_id", e.ShiftID),
			zap.Int64("cash_difference_cents", e.CashDifferenceCents))
	default:
		p.logger.Info("event", zap.Any("event", event))
	}
}
