package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

// EventDescriptor binds a ledger event type to its aggregate, topic and
// payload shape.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the publisher dead-letters the row.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// EventRegistry resolves outbox rows for the ledger event types.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// NewEventRegistry routes every ledger event type to the ledger topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LedgerTopic == "" {
		return nil, errors.New("ledger topic is required")
	}
	descriptors := []EventDescriptor{
		{EventType: enums.EventSaleRecorded, AggregateType: enums.AggregateSale, newPayload: payloadOf[payloads.SaleRecordedEvent]()},
		{EventType: enums.EventSaleReversed, AggregateType: enums.AggregateSale, newPayload: payloadOf[payloads.SaleReversedEvent]()},
		{EventType: enums.EventSaleSettled, AggregateType: enums.AggregateSale, newPayload: payloadOf[payloads.SaleSettledEvent]()},
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventPreOrderFulfilled,
		enums.EventPreOrderCancelled,
		enums.EventPreOrderRestored,
		enums.EventPreOrderVoided,
	} {
		descriptors = append(descriptors, EventDescriptor{
			EventType:     eventType,
			AggregateType: enums.AggregatePreOrder,
			newPayload:    payloadOf[payloads.PreOrderTransitionedEvent](),
		})
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.Topic = cfg.LedgerTopic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Types lists the registered event types in a stable order.
func (r *EventRegistry) Types() []string {
	types := make([]string, 0, len(r.entries))
	for eventType := range r.entries {
		types = append(types, string(eventType))
	}
	slices.Sort(types)
	return types
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the stored row will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	if event.TenantID != uuid.Nil && envelope.TenantID != event.TenantID {
		return nil, NewNonRetryableError(fmt.Errorf("envelope tenant %s does not match row tenant %s", envelope.TenantID, event.TenantID))
	}

	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
