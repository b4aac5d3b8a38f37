package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/events"
	"lumapos/backend/internal/store"
)

func (s *Service) buildGoodsLines(ctx context.Context, reqLines []domain.GoodsLineRequest) ([]domain.GoodsLine, error) {
	if len(reqLines) == 0 {
		return nil, fmt.Errorf("%w: at least one line required", store.ErrValidation)
	}

	skus := make([]string, 0, len(reqLines))
	for i := range reqLines {
		reqLines[i].SKU = strings.ToUpper(strings.TrimSpace(reqLines[i].SKU))
		if reqLines[i].SKU == "" {
			return nil, fmt.Errorf("%w: line sku required", store.ErrValidation)
		}
		if reqLines[i].Qty < 1 {
			return nil, fmt.Errorf("%w: line qty must be positive", store.ErrValidation)
		}
		if reqLines[i].UnitCostCents < 0 {
			return nil, fmt.Errorf("%w: line cost must not be negative", store.ErrValidation)
		}
		skus = append(skus, reqLines[i].SKU)
	}

	variants, err := s.repo.GetVariantsBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.GoodsLine, 0, len(reqLines))
	for _, lr := range reqLines {
		variant, ok := variants[lr.SKU]
		if !ok {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, lr.SKU)
		}
		cost := lr.UnitCostCents
		if cost == 0 {
			cost = variant.CostCents
		}
		lines = append(lines, domain.GoodsLine{
			VariantID:     variant.ID,
			SKU:           variant.SKU,
			Qty:           lr.Qty,
			UnitCostCents: cost,
		})
	}
	return lines, nil
}

func (s *Service) CreateGoodsReceipt(ctx context.Context, req domain.GoodsReceiptCreateRequest) (domain.GoodsReceipt, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	lines, err := s.buildGoodsLines(ctx, req.Lines)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	created, err := s.repo.CreateGoodsReceipt(ctx, domain.GoodsReceipt{
		StoreID:     req.StoreID,
		SupplierRef: strings.TrimSpace(req.SupplierRef),
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   actor.Username,
		Lines:       lines,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.logAudit(ctx, req.StoreID, "goods_receipt_create", "goods_receipt", created.ID,
		fmt.Sprintf("number=%s,lines=%d", created.Number, len(created.Lines)))
	return *created, nil
}

func (s *Service) GetGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: receipt id required", store.ErrValidation)
	}
	return s.repo.GetGoodsReceiptByID(ctx, id)
}

func (s *Service) ListGoodsReceipts(ctx context.Context, storeID string, limit int) ([]domain.GoodsReceipt, error) {
	return s.repo.ListGoodsReceipts(ctx, storeID, limit)
}

// CompleteGoodsReceipt posts the received quantities onto the ledger. A
// receipt posts at most once; re-completion is an invalid transition.
func (s *Service) CompleteGoodsReceipt(ctx context.Context, id string) (domain.GoodsReceipt, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.GoodsReceipt{}, err
	}

	completed, err := s.repo.CompleteGoodsReceipt(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.invalidateStock(ctx, completed.StoreID)
	for _, line := range completed.Lines {
		s.publisher.Publish(ctx, events.StockAdjusted{
			VariantID: line.VariantID,
			StoreID:   completed.StoreID,
			Delta:     line.Qty,
			Reason:    "goods_receipt " + completed.Number,
			At:        *completed.CompletedAt,
		})
	}
	s.logAudit(ctx, completed.StoreID, "goods_receipt_complete", "goods_receipt", completed.ID, completed.Number)

	return *completed, nil
}

func (s *Service) CancelGoodsReceipt(ctx context.Context, id string) (domain.GoodsReceipt, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.GoodsReceipt{}, err
	}

	cancelled, err := s.repo.CancelGoodsReceipt(ctx, id)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	s.logAudit(ctx, cancelled.StoreID, "goods_receipt_cancel", "goods_receipt", cancelled.ID, cancelled.Number)
	return *cancelled, nil
}

func (s *Service) CreateGoodsIssue(ctx context.Context, req domain.GoodsIssueCreateRequest) (domain.GoodsIssue, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.GoodsIssue{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if req.Type == "" {
		req.Type = domain.IssueTypeIssue
	}
	// Adjustment issues are only ever emitted by stocktake finalization.
	if req.Type != domain.IssueTypeIssue && req.Type != domain.IssueTypeTransfer {
		return domain.GoodsIssue{}, fmt.Errorf("%w: unsupported issue type %s", store.ErrValidation, req.Type)
	}
	if req.Type == domain.IssueTypeTransfer {
		req.DestStoreID = strings.TrimSpace(req.DestStoreID)
		if req.DestStoreID == "" || req.DestStoreID == req.StoreID {
			return domain.GoodsIssue{}, fmt.Errorf("%w: transfer requires a distinct destination store", store.ErrValidation)
		}
	}

	lines, err := s.buildGoodsLines(ctx, req.Lines)
	if err != nil {
		return domain.GoodsIssue{}, err
	}

	created, err := s.repo.CreateGoodsIssue(ctx, domain.GoodsIssue{
		StoreID:     req.StoreID,
		Type:        req.Type,
		DestStoreID: req.DestStoreID,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedBy:   actor.Username,
		Lines:       lines,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.GoodsIssue{}, err
	}

	s.logAudit(ctx, req.StoreID, "goods_issue_create", "goods_issue", created.ID,
		fmt.Sprintf("number=%s,type=%s,lines=%d", created.Number, created.Type, len(created.Lines)))
	return *created, nil
}

func (s *Service) GetGoodsIssue(ctx context.Context, id string) (*domain.GoodsIssue, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: issue id required", store.ErrValidation)
	}
	return s.repo.GetGoodsIssueByID(ctx, id)
}

func (s *Service) ListGoodsIssues(ctx context.Context, storeID string, limit int) ([]domain.GoodsIssue, error) {
	return s.repo.ListGoodsIssues(ctx, storeID, limit)
}

// CompleteGoodsIssue posts the outbound quantities. For a transfer both the
// source decrement and the destination increment land in one commit.
func (s *Service) CompleteGoodsIssue(ctx context.Context, id string) (domain.GoodsIssue, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.GoodsIssue{}, err
	}

	completed, err := s.repo.CompleteGoodsIssue(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.GoodsIssue{}, err
	}

	s.invalidateStock(ctx, completed.StoreID)
	if completed.Type == domain.IssueTypeTransfer {
		s.invalidateStock(ctx, completed.DestStoreID)
	}
	for _, line := range completed.Lines {
		s.publisher.Publish(ctx, events.StockAdjusted{
			VariantID: line.VariantID,
			StoreID:   completed.StoreID,
			Delta:     -line.Qty,
			Reason:    "goods_issue " + completed.Number,
			At:        *completed.CompletedAt,
		})
	}
	s.logAudit(ctx, completed.StoreID, "goods_issue_complete", "goods_issue", completed.ID, completed.Number)

	return *completed, nil
}

func (s *Service) CancelGoodsIssue(ctx context.Context, id string) (domain.GoodsIssue, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.GoodsIssue{}, err
	}

	cancelled, err := s.repo.CancelGoodsIssue(ctx, id)
	if err != nil {
		return domain.GoodsIssue{}, err
	}
	s.logAudit(ctx, cancelled.StoreID, "goods_issue_cancel", "goods_issue", cancelled.ID, cancelled.Number)
	return *cancelled, nil
}
