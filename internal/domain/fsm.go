package domain

// Transition tables for every status-carrying aggregate. Guards live here so
// that each aggregate's lifecycle is reviewable in one place; stores consult
// these before applying side effects.

var orderTransitions = map[string][]string{
	OrderStatusDraft:     {OrderStatusOnHold, OrderStatusCompleted, OrderStatusVoided},
	OrderStatusOnHold:    {OrderStatusCompleted, OrderStatusVoided},
	OrderStatusCompleted: {OrderStatusReturned},
	OrderStatusVoided:    {},
	OrderStatusReturned:  {},
}

var goodsTransitions = map[string][]string{
	GoodsStatusDraft:     {GoodsStatusCompleted, GoodsStatusCancelled},
	GoodsStatusCompleted: {},
	GoodsStatusCancelled: {},
}

var stocktakeTransitions = map[string][]string{
	StocktakeStatusScheduled:  {StocktakeStatusInProgress, StocktakeStatusCancelled},
	StocktakeStatusInProgress: {StocktakeStatusCompleted, StocktakeStatusCancelled},
	StocktakeStatusCompleted:  {},
	StocktakeStatusCancelled:  {},
}

var shiftTransitions = map[string][]string{
	ShiftStatusOpen:   {ShiftStatusClosed},
	ShiftStatusClosed: {},
}

func allowed(table map[string][]string, from string, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func OrderCanTransition(from string, to string) bool {
	return allowed(orderTransitions, from, to)
}

func GoodsCanTransition(from string, to string) bool {
	return allowed(goodsTransitions, from, to)
}

func StocktakeCanTransition(from string, to string) bool {
	return allowed(stocktakeTransitions, from, to)
}

func ShiftCanTransition(from string, to string) bool {
	return allowed(shiftTransitions, from, to)
}

// OrderIsOpen reports whether an order still holds reservations.
func OrderIsOpen(status string) bool {
	return status == OrderStatusDraft || status == OrderStatusOnHold
}
