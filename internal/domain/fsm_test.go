package domain

import "testing"

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusDraft, OrderStatusOnHold, true},
		{OrderStatusDraft, OrderStatusCompleted, true},
		{OrderStatusDraft, OrderStatusVoided, true},
		{OrderStatusOnHold, OrderStatusCompleted, true},
		{OrderStatusOnHold, OrderStatusVoided, true},
		{OrderStatusCompleted, OrderStatusReturned, true},
		{OrderStatusCompleted, OrderStatusVoided, false},
		{OrderStatusCompleted, OrderStatusCompleted, false},
		{OrderStatusVoided, OrderStatusCompleted, false},
		{OrderStatusReturned, OrderStatusDraft, false},
		{OrderStatusOnHold, OrderStatusDraft, false},
	}
	for _, tc := range cases {
		if got := OrderCanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestGoodsTransitions(t *testing.T) {
	if !GoodsCanTransition(GoodsStatusDraft, GoodsStatusCompleted) {
		t.Fatalf("draft goods document must be completable")
	}
	if !GoodsCanTransition(GoodsStatusDraft, GoodsStatusCancelled) {
		t.Fatalf("draft goods document must be cancellable")
	}
	if GoodsCanTransition(GoodsStatusCompleted, GoodsStatusCancelled) {
		t.Fatalf("completed goods document must be immutable")
	}
	if GoodsCanTransition(GoodsStatusCancelled, GoodsStatusCompleted) {
		t.Fatalf("cancelled goods document must be immutable")
	}
}

func TestStocktakeTransitions(t *testing.T) {
	if !StocktakeCanTransition(StocktakeStatusScheduled, StocktakeStatusInProgress) {
		t.Fatalf("scheduled stocktake must be startable")
	}
	if !StocktakeCanTransition(StocktakeStatusInProgress, StocktakeStatusCompleted) {
		t.Fatalf("in-progress stocktake must be finalizable")
	}
	if StocktakeCanTransition(StocktakeStatusScheduled, StocktakeStatusCompleted) {
		t.Fatalf("stocktake must not skip the in-progress state")
	}
	if StocktakeCanTransition(StocktakeStatusCompleted, StocktakeStatusInProgress) {
		t.Fatalf("completed stocktake must be immutable")
	}
}

func TestShiftTransitions(t *testing.T) {
	if !ShiftCanTransition(ShiftStatusOpen, ShiftStatusClosed) {
		t.Fatalf("open shift must be closable")
	}
	if ShiftCanTransition(ShiftStatusClosed, ShiftStatusOpen) {
		t.Fatalf("closed shift must stay closed")
	}
}

func TestOrderIsOpen(t *testing.T) {
	if !OrderIsOpen(OrderStatusDraft) || !OrderIsOpen(OrderStatusOnHold) {
		t.Fatalf("draft and on-hold orders hold reservations")
	}
	for _, status := range []string{OrderStatusCompleted, OrderStatusVoided, OrderStatusReturned} {
		if OrderIsOpen(status) {
			t.Fatalf("%s order must not be open", status)
		}
	}
}
