package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/events"
	"lumapos/backend/internal/store"
)

// StartShift opens a cash drawer session for the calling cashier. At most one
// shift per cashier may be open at a time.
func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.Shift, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Shift{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.OpeningCashCents < 0 {
		return domain.Shift{}, fmt.Errorf("%w: opening cash must not be negative", store.ErrValidation)
	}

	opened, err := s.repo.StartShift(ctx, domain.Shift{
		CashierID:        actor.Username,
		StoreID:          req.StoreID,
		OpeningCashCents: req.OpeningCashCents,
		OpenedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, req.StoreID, "shift_start", "shift", opened.ID,
		fmt.Sprintf("number=%s,opening_cash=%d", opened.Number, opened.OpeningCashCents))
	return *opened, nil
}

// CloseShift reconciles the drawer: expected cash is the opening amount plus
// the completed cash payments of this shift's completed orders. Cashiers may
// only close their own shift; admins may close any.
func (s *Service) CloseShift(ctx context.Context, id string, req domain.ShiftCloseRequest) (domain.Shift, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.ClosingCashCents < 0 {
		return domain.Shift{}, fmt.Errorf("%w: closing cash must not be negative", store.ErrValidation)
	}

	shift, err := s.repo.GetShiftByID(ctx, id)
	if err != nil {
		return domain.Shift{}, err
	}
	if shift.CashierID != actor.Username && actor.Role != "admin" {
		return domain.Shift{}, fmt.Errorf("%w: shift belongs to another cashier", ErrForbidden)
	}

	closed, err := s.repo.CloseShift(ctx, id, req.ClosingCashCents, strings.TrimSpace(req.Notes), time.Now().UTC())
	if err != nil {
		return domain.Shift{}, err
	}

	s.publisher.Publish(ctx, events.ShiftClosed{
		ShiftID:             closed.ID,
		CashDifferenceCents: closed.CashDifferenceCents,
		At:                  *closed.ClosedAt,
	})
	s.logAudit(ctx, closed.StoreID, "shift_close", "shift", closed.ID,
		fmt.Sprintf("number=%s,expected=%d,closing=%d,difference=%d",
			closed.Number, closed.ExpectedCashCents, closed.ClosingCashCents, closed.CashDifferenceCents))

	return *closed, nil
}

func (s *Service) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: shift id required", store.ErrValidation)
	}
	return s.repo.GetShiftByID(ctx, id)
}

func (s *Service) GetActiveShift(ctx context.Context) (*domain.Shift, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetActiveShiftByCashier(ctx, actor.Username)
}

// CreateCashier provisions a cashier account with an optional sales
// commission rate.
func (s *Service) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || strings.TrimSpace(req.Password) == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	if len(req.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}
	if req.CommissionRatePercent < 0 || req.CommissionRatePercent > 100 {
		return fmt.Errorf("%w: commission rate out of range", store.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:              req.Username,
		Password:              string(hash),
		Role:                  "cashier",
		CommissionRatePercent: req.CommissionRatePercent,
		Active:                true,
		CreatedAt:             time.Now().UTC(),
	}); err != nil {
		return err
	}

	s.logAudit(ctx, s.defaultStoreID, "cashier_create", "user", req.Username,
		fmt.Sprintf("commission_rate=%.2f", req.CommissionRatePercent))
	return nil
}

// ListCashiers returns the cashier accounts without their password hashes.
func (s *Service) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	cashiers := make([]domain.CashierUser, 0, len(users))
	for _, user := range users {
		if user.Role != "cashier" {
			continue
		}
		cashiers = append(cashiers, domain.CashierUser{
			Username:              user.Username,
			Role:                  user.Role,
			CommissionRatePercent: user.CommissionRatePercent,
			Active:                user.Active,
			CreatedAt:             user.CreatedAt,
		})
	}
	sort.Slice(cashiers, func(i, j int) bool {
		return cashiers[i].Username < cashiers[j].Username
	})
	return cashiers, nil
}
