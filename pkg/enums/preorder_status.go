package enums

import "fmt"

// PreOrderStatus tracks a customer pre-order.
type PreOrderStatus string

const (
	PreOrderStatusPending   PreOrderStatus = "pending"
	PreOrderStatusConfirmed PreOrderStatus = "confirmed"
	PreOrderStatusCompleted PreOrderStatus = "completed"
	PreOrderStatusCanceled  PreOrderStatus = "canceled"
	PreOrderStatusVoided    PreOrderStatus = "voided"
)

var validPreOrderStatuses = []PreOrderStatus{
	PreOrderStatusPending,
	PreOrderStatusConfirmed,
	PreOrderStatusCompleted,
	PreOrderStatusCanceled,
	PreOrderStatusVoided,
}

// String implements fmt.Stringer.
func (p PreOrderStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PreOrderStatus.
func (p PreOrderStatus) IsValid() bool {
	for _, candidate := range validPreOrderStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePreOrderStatus converts raw input into a PreOrderStatus.
func ParsePreOrderStatus(value string) (PreOrderStatus, error) {
	for _, candidate := range validPreOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pre-order status %q", value)
}

var preOrderTransitions = map[PreOrderStatus][]PreOrderStatus{
	PreOrderStatusPending:   {PreOrderStatusConfirmed, PreOrderStatusCompleted, PreOrderStatusCanceled, PreOrderStatusVoided},
	PreOrderStatusConfirmed: {PreOrderStatusPending, PreOrderStatusCompleted, PreOrderStatusCanceled, PreOrderStatusVoided},
	PreOrderStatusCanceled:  {PreOrderStatusPending},
	PreOrderStatusVoided:    {PreOrderStatusPending},
}

// CanTransitionTo reports whether a pre-order may move from p to next.
func (p PreOrderStatus) CanTransitionTo(next PreOrderStatus) bool {
	for _, candidate := range preOrderTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether the pre-order still awaits fulfilment or withdrawal.
func (p PreOrderStatus) IsOpen() bool {
	return p == PreOrderStatusPending || p == PreOrderStatusConfirmed
}

// IsDeletable reports whether the pre-order can be removed outright. Completed
// and canceled orders own financial rows and must be reversed instead.
func (p PreOrderStatus) IsDeletable() bool {
	return p == PreOrderStatusPending || p == PreOrderStatusConfirmed || p == PreOrderStatusVoided
}
