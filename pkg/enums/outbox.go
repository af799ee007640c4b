package enums

import "fmt"

// OutboxEventType names a ledger event written to the outbox.
type OutboxEventType string

const (
	EventSaleRecorded      OutboxEventType = "sale.recorded"
	EventSaleReversed      OutboxEventType = "sale.reversed"
	EventSaleSettled       OutboxEventType = "sale.settled"
	EventPreOrderFulfilled OutboxEventType = "preorder.fulfilled"
	EventPreOrderCancelled OutboxEventType = "preorder.cancelled"
	EventPreOrderRestored  OutboxEventType = "preorder.restored"
	EventPreOrderVoided    OutboxEventType = "preorder.voided"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSaleRecorded,
	EventSaleReversed,
	EventSaleSettled,
	EventPreOrderFulfilled,
	EventPreOrderCancelled,
	EventPreOrderRestored,
	EventPreOrderVoided,
}

// String implements fmt.Stringer.
func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known OutboxEventType.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType identifies the row an event is about.
type OutboxAggregateType string

const (
	AggregateSale     OutboxAggregateType = "sale"
	AggregatePreOrder OutboxAggregateType = "pre_order"
)

// IsValid reports whether the value is a known OutboxAggregateType.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateSale || a == AggregatePreOrder
}

// OutboxDLQErrorReason explains why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
