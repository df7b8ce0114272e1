package domain

import "errors"

const (
	// NotInStockMessage is returned when the inventory answered and at least one SKU is missing.
	NotInStockMessage = "Product is not in stock, please try again later."

	// FallbackMessage is returned when the inventory could not give an answer at all.
	FallbackMessage = "Something went wrong, please retry later."
)

var (
	// ErrPersistence marks a placement that failed while storing the order.
	// It is the "failed" outcome, distinct from a rejection.
	ErrPersistence = errors.New("order persistence failed")

	ErrOrderNotFound = errors.New("order not found")
)

// StockCheck is the outcome of the guarded inventory lookup.
type StockCheck struct {
	AllInStock bool

	// Degraded is set when the answer comes from the fallback path
	// (retries exhausted or circuit open) rather than from the inventory.
	Degraded bool
	Reason   string
}

type DecisionStatus string

const (
	StatusAccepted DecisionStatus = "ACCEPTED"
	StatusRejected DecisionStatus = "REJECTED"
)

// PlacementDecision is either Accepted(Order) or Rejected(Reason).
type PlacementDecision struct {
	Status   DecisionStatus
	Order    *Order
	Reason   string
	Degraded bool

	// NotifyErr is non-nil when the order was stored but the placed event
	// could not be published.
	NotifyErr error
}

func Accepted(order *Order) PlacementDecision {
	return PlacementDecision{Status: StatusAccepted, Order: order}
}

func Rejected(reason string, degraded bool) PlacementDecision {
	return PlacementDecision{Status: StatusRejected, Reason: reason, Degraded: degraded}
}

func (d PlacementDecision) IsAccepted() bool {
	return d.Status == StatusAccepted
}
