package cache

import (
	"context"
	"time"

	"lumapos/backend/internal/domain"
)

// StockCache is a read-through cache for per-store stock snapshots. Every
// ledger mutation invalidates the store's entry, so a hit is at most TTL
// stale and never survives a write.
type StockCache interface {
	Get(ctx context.Context, storeID string) ([]domain.StockLevel, bool, error)
	Set(ctx context.Context, storeID string, levels []domain.StockLevel, ttl time.Duration) error
	Invalidate(ctx context.Context, storeID string) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ string) ([]domain.StockLevel, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ string, _ []domain.StockLevel, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
