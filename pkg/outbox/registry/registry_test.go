package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	saleID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.SaleRecordedEvent{
		SaleID:     saleID,
		SaleNumber: 7,
		TotalCents: 1000,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregateSale,
		AggregateID:   saleID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "ledger-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.SaleRecordedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.SaleID != saleID || payload.SaleNumber != 7 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope incomplete %+v", resolved.Envelope)
	}
}

func TestEventRegistryResolvesPreOrderTransitions(t *testing.T) {
	reg := newTestEventRegistry(t)

	for _, eventType := range []enums.OutboxEventType{
		enums.EventPreOrderFulfilled,
		enums.EventPreOrderCancelled,
		enums.EventPreOrderRestored,
		enums.EventPreOrderVoided,
	} {
		event := models.OutboxEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePreOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, mustMarshal(t, payloads.PreOrderTransitionedEvent{PreOrderID: uuid.New()})),
		}
		if _, err := reg.Resolve(event); err != nil {
			t.Fatalf("%s: unexpected error: %v", eventType, err)
		}
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("sale.exploded"),
		AggregateType: enums.AggregateSale,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregatePreOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.SaleRecordedEvent{SaleID: uuid.New()})),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveMissingPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventSaleSettled,
		AggregateType: enums.AggregateSale,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	if _, err := reg.Resolve(event); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestEventRegistryRejectsForeignTenantEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		TenantID:      uuid.New(),
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregateSale,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.SaleRecordedEvent{SaleID: uuid.New()})),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryRejectsFutureEnvelopeVersion(t *testing.T) {
	reg := newTestEventRegistry(t)

	raw := mustMarshal(t, outbox.PayloadEnvelope{
		Version:  outbox.EnvelopeVersion + 1,
		EventID:  uuid.NewString(),
		TenantID: uuid.New(),
		Data:     mustMarshal(t, payloads.SaleSettledEvent{SaleID: uuid.New()}),
	})
	event := models.OutboxEvent{
		EventType:     enums.EventSaleSettled,
		AggregateType: enums.AggregateSale,
		AggregateID:   uuid.New(),
		Payload:       raw,
	}

	if _, err := reg.Resolve(event); !errors.Is(err, outbox.ErrEnvelopeVersion) {
		t.Fatalf("expected envelope version error, got %v", err)
	}
}

func TestEventRegistryTypesAreSorted(t *testing.T) {
	types := newTestEventRegistry(t).Types()
	if len(types) != 7 {
		t.Fatalf("expected 7 event types, got %v", types)
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] > types[i] {
			t.Fatalf("types not sorted: %v", types)
		}
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected error without a ledger topic")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{LedgerTopic: "ledger-topic"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		TenantID:   uuid.New(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	return mustMarshal(t, envelope)
}
