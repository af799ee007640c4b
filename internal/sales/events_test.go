package sales

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, event outbox.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestRecordSaleEmitsLedgerEvent(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 100)

	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 1000}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if len(h.events.events) != 1 {
		t.Fatalf("expected one event, got %v", h.events.types())
	}
	event := h.events.events[0]
	if event.EventType != enums.EventSaleRecorded || event.AggregateID != res.SaleID || event.TenantID != h.tenant {
		t.Fatalf("unexpected event %+v", event)
	}
	data, ok := event.Data.(payloads.SaleRecordedEvent)
	if !ok {
		t.Fatalf("unexpected payload %T", event.Data)
	}
	if data.SaleNumber != res.SaleNumber || len(data.Shares) != 2 || len(data.VariantIDs) != 1 {
		t.Fatalf("unexpected payload %+v", data)
	}
	var sum int64
	for _, share := range data.Shares {
		sum += share.AmountCents
	}
	if sum != 1000 {
		t.Fatalf("shares should sum to 1000, got %d", sum)
	}
}

func TestReverseAndSettleEmitEvents(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "transfer",
		Status:        enums.SaleStatusPending,
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if _, err := h.svc.SettleSale(context.Background(), h.tenant, res.SaleID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := h.svc.DeleteSale(context.Background(), h.tenant, res.SaleID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got := h.events.types()
	want := []enums.OutboxEventType{enums.EventSaleRecorded, enums.EventSaleSettled, enums.EventSaleReversed}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	reversed, ok := h.events.events[2].Data.(payloads.SaleReversedEvent)
	if !ok || len(reversed.ReleasedVariants) != 1 || reversed.ReleasedVariants[0] != u.ID {
		t.Fatalf("unexpected reversal payload %+v", h.events.events[2].Data)
	}
}

func TestFailedSaleEmitsNothing(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit(t, 0)
	h.repo.createItemsErr = errors.New("disk full")

	if _, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	}); err == nil {
		t.Fatalf("expected failure")
	}
	if len(h.events.events) != 0 {
		t.Fatalf("expected no events, got %v", h.events.types())
	}
}

func TestEmitterFailureDoesNotFailSale(t *testing.T) {
	h := newHarness(t, Options{})
	h.events.err = errors.New("outbox down")
	u := h.unit(t, 0)

	res, err := h.svc.RecordSale(context.Background(), RecordSaleInput{
		TenantID:      h.tenant,
		Items:         []ItemInput{{VariantID: u.ID, SoldPriceCents: 500}},
		PaymentMethod: "cash",
		Distribution:  h.sixtyForty(),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("event failures are logged, not returned: %v", res.Warnings)
	}
}
