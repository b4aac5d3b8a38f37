package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/store"
)

func (s *Service) CreateStocktake(ctx context.Context, req domain.StocktakeCreateRequest) (domain.Stocktake, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Stocktake{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if len(req.SKUs) == 0 {
		return domain.Stocktake{}, fmt.Errorf("%w: at least one sku required", store.ErrValidation)
	}

	skus := make([]string, 0, len(req.SKUs))
	seen := make(map[string]struct{}, len(req.SKUs))
	for _, sku := range req.SKUs {
		sku = strings.ToUpper(strings.TrimSpace(sku))
		if sku == "" {
			return domain.Stocktake{}, fmt.Errorf("%w: blank sku", store.ErrValidation)
		}
		if _, dup := seen[sku]; dup {
			continue
		}
		seen[sku] = struct{}{}
		skus = append(skus, sku)
	}

	variants, err := s.repo.GetVariantsBySKUs(ctx, skus)
	if err != nil {
		return domain.Stocktake{}, err
	}

	items := make([]domain.StocktakeItem, 0, len(skus))
	for _, sku := range skus {
		variant, ok := variants[sku]
		if !ok {
			return domain.Stocktake{}, fmt.Errorf("%w: variant %s", store.ErrNotFound, sku)
		}
		items = append(items, domain.StocktakeItem{VariantID: variant.ID, SKU: variant.SKU})
	}

	created, err := s.repo.CreateStocktake(ctx, domain.Stocktake{
		StoreID:   req.StoreID,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedBy: actor.Username,
		Items:     items,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Stocktake{}, err
	}

	s.logAudit(ctx, req.StoreID, "stocktake_create", "stocktake", created.ID,
		fmt.Sprintf("number=%s,items=%d", created.Number, len(created.Items)))
	return *created, nil
}

func (s *Service) GetStocktake(ctx context.Context, id string) (*domain.Stocktake, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: stocktake id required", store.ErrValidation)
	}
	return s.repo.GetStocktakeByID(ctx, id)
}

func (s *Service) ListStocktakes(ctx context.Context, storeID string, limit int) ([]domain.Stocktake, error) {
	return s.repo.ListStocktakes(ctx, storeID, limit)
}

func (s *Service) StartStocktake(ctx context.Context, id string) (domain.Stocktake, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Stocktake{}, err
	}

	started, err := s.repo.StartStocktake(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Stocktake{}, err
	}
	s.logAudit(ctx, started.StoreID, "stocktake_start", "stocktake", started.ID, started.Number)
	return *started, nil
}

func (s *Service) RecordStocktakeCounts(ctx context.Context, id string, req domain.StocktakeCountRequest) (domain.Stocktake, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.Stocktake{}, err
	}
	if len(req.Counts) == 0 {
		return domain.Stocktake{}, fmt.Errorf("%w: at least one count required", store.ErrValidation)
	}
	for i := range req.Counts {
		req.Counts[i].SKU = strings.ToUpper(strings.TrimSpace(req.Counts[i].SKU))
		if req.Counts[i].SKU == "" {
			return domain.Stocktake{}, fmt.Errorf("%w: count sku required", store.ErrValidation)
		}
		if req.Counts[i].CountedQty < 0 {
			return domain.Stocktake{}, fmt.Errorf("%w: counted qty must not be negative", store.ErrValidation)
		}
	}

	updated, err := s.repo.RecordStocktakeCounts(ctx, id, req.Counts)
	if err != nil {
		return domain.Stocktake{}, err
	}
	s.logAudit(ctx, updated.StoreID, "stocktake_count", "stocktake", updated.ID,
		fmt.Sprintf("counts=%d", len(req.Counts)))
	return *updated, nil
}

// FinalizeStocktake reconciles the counted quantities against the ledger:
// every variance is pinned via a counted write-through and collected into a
// single completed adjustment issue. Counted quantities below the reserved
// amount leave available negative; that is surfaced as a warning, not
// silently clamped.
func (s *Service) FinalizeStocktake(ctx context.Context, id string) (domain.StocktakeSummary, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.StocktakeSummary{}, err
	}

	summary, err := s.repo.FinalizeStocktake(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.StocktakeSummary{}, err
	}

	st, err := s.repo.GetStocktakeByID(ctx, id)
	if err != nil {
		return domain.StocktakeSummary{}, err
	}

	s.invalidateStock(ctx, st.StoreID)
	for _, warning := range summary.Warnings {
		s.logger.Warn("stocktake reconciliation warning",
			zap.String("stocktake_id", id),
			zap.String("warning", warning))
	}
	s.logAudit(ctx, st.StoreID, "stocktake_finalize", "stocktake", id,
		fmt.Sprintf("variances=%d,value=%d,warnings=%d", summary.VarianceCount, summary.TotalVarianceValueCents, len(summary.Warnings)))

	return *summary, nil
}

func (s *Service) CancelStocktake(ctx context.Context, id string) (domain.Stocktake, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Stocktake{}, err
	}

	cancelled, err := s.repo.CancelStocktake(ctx, id)
	if err != nil {
		return domain.Stocktake{}, err
	}
	s.logAudit(ctx, cancelled.StoreID, "stocktake_cancel", "stocktake", cancelled.ID, cancelled.Number)
	return *cancelled, nil
}
