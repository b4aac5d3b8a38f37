package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lumapos/backend/internal/cache"
	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/events"
	"lumapos/backend/internal/store"
	"lumapos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ErrForbidden marks an operation rejected for the caller's role.
var ErrForbidden = errors.New("forbidden")

type Service struct {
	repo           store.Repository
	stockCache     cache.StockCache
	publisher      events.Publisher
	logger         *zap.Logger
	defaultStoreID string
	stockCacheTTL  time.Duration
}

func New(repo store.Repository, stockCache cache.StockCache, publisher events.Publisher, logger *zap.Logger, defaultStoreID string, stockCacheTTL time.Duration) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if stockCacheTTL <= 0 {
		stockCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:           repo,
		stockCache:     stockCache,
		publisher:      publisher,
		logger:         logger,
		defaultStoreID: defaultStoreID,
		stockCacheTTL:  stockCacheTTL,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != "admin" {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func (s *Service) invalidateStock(ctx context.Context, storeID string) {
	if err := s.stockCache.Invalidate(ctx, storeID); err != nil {
		s.logger.Warn("failed to invalidate stock cache", zap.String("store_id", storeID), zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx)
}

func (s *Service) GetVariantBySKU(ctx context.Context, sku string) (*domain.Variant, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, fmt.Errorf("%w: sku required", store.ErrValidation)
	}
	return s.repo.GetVariantBySKU(ctx, sku)
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantCreateRequest) (domain.Variant, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return domain.Variant{}, fmt.Errorf("%w: sku and name required", store.ErrValidation)
	}
	if req.PriceCents < 1 || req.CostCents < 0 || req.InitialStock < 0 {
		return domain.Variant{}, fmt.Errorf("%w: invalid price, cost or stock", store.ErrValidation)
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.Variant{}, fmt.Errorf("%w: tax rate out of range", store.ErrValidation)
	}

	created, err := s.repo.CreateVariant(ctx, domain.Variant{
		SKU:            req.SKU,
		Name:           req.Name,
		PriceCents:     req.PriceCents,
		CostCents:      req.CostCents,
		TaxRatePercent: req.TaxRatePercent,
		Active:         true,
	}, req.StoreID, req.InitialStock)
	if err != nil {
		return domain.Variant{}, err
	}

	s.invalidateStock(ctx, req.StoreID)
	s.logAudit(ctx, req.StoreID, "variant_create", "variant", created.SKU,
		fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, req.InitialStock))

	return *created, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name required", store.ErrValidation)
	}
	if req.GroupMultiplier < 0 {
		return domain.Customer{}, fmt.Errorf("%w: group multiplier must not be negative", store.ErrValidation)
	}
	if req.GroupMultiplier == 0 {
		req.GroupMultiplier = 1
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:            req.Name,
		GroupMultiplier: req.GroupMultiplier,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "customer_create", "customer", created.ID, created.Name)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: customer id required", store.ErrValidation)
	}
	return s.repo.GetCustomerByID(ctx, id)
}

// ListStockLevels reads through the per-store cache. A miss falls back to the
// repository and repopulates the cache entry.
func (s *Service) ListStockLevels(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	if levels, hit, err := s.stockCache.Get(ctx, storeID); err == nil && hit {
		return levels, nil
	} else if err != nil {
		s.logger.Warn("stock cache read failed", zap.String("store_id", storeID), zap.Error(err))
	}

	levels, err := s.repo.ListStockLevels(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if err := s.stockCache.Set(ctx, storeID, levels, s.stockCacheTTL); err != nil {
		s.logger.Warn("stock cache write failed", zap.String("store_id", storeID), zap.Error(err))
	}
	return levels, nil
}

func (s *Service) GetStockLevel(ctx context.Context, storeID string, sku string) (*domain.StockLevel, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	variant, err := s.GetVariantBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return s.repo.GetStockLevel(ctx, storeID, variant.ID)
}

// AdjustStock applies a signed on-hand correction outside the document flow,
// e.g. for breakage found on the floor.
func (s *Service) AdjustStock(ctx context.Context, storeID string, sku string, delta int, reason string) (*domain.StockLevel, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	if storeID == "" {
		storeID = s.defaultStoreID
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: adjustment reason required", store.ErrValidation)
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: adjustment delta must not be zero", store.ErrValidation)
	}
	variant, err := s.GetVariantBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	err = s.repo.AdjustStock(ctx, storeID, []domain.StockChange{{VariantID: variant.ID, Qty: delta}}, reason)
	if err != nil {
		return nil, err
	}

	s.invalidateStock(ctx, storeID)
	s.publisher.Publish(ctx, events.StockAdjusted{
		VariantID: variant.ID,
		StoreID:   storeID,
		Delta:     delta,
		Reason:    reason,
		At:        time.Now().UTC(),
	})
	s.logAudit(ctx, storeID, "stock_adjust", "variant", variant.SKU, fmt.Sprintf("delta=%d,reason=%s", delta, reason))

	return s.repo.GetStockLevel(ctx, storeID, variant.ID)
}
