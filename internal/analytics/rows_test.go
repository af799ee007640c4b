package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{
		EventID:       uuid.New(),
		TenantID:      uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
		Version:       1,
		Data:          raw,
	}
}

func TestBuildRowSaleRecorded(t *testing.T) {
	env := envelopeFor(t, enums.EventSaleRecorded, enums.AggregateSale, payloads.SaleRecordedEvent{
		SaleID:             uuid.New(),
		SaleNumber:         42,
		Status:             enums.SaleStatusCompleted,
		Origin:             enums.SaleOriginDirect,
		TotalCents:         25000,
		NetProfitCents:     9000,
		DistributableCents: 9000,
		VariantIDs:         []uuid.UUID{uuid.New(), uuid.New()},
	})

	row, err := BuildRow(env)
	require.NoError(t, err)
	assert.Equal(t, env.EventID.String(), row.EventID)
	assert.Equal(t, "sale.recorded", row.EventType)
	assert.Equal(t, time.UTC, row.OccurredAt.Location())
	require.NotNil(t, row.SaleNumber)
	assert.EqualValues(t, 42, *row.SaleNumber)
	assert.EqualValues(t, 25000, *row.TotalCents)
	assert.EqualValues(t, 9000, *row.NetProfitCents)
	assert.EqualValues(t, 2, *row.UnitCount)
	assert.Equal(t, string(enums.SaleOriginDirect), *row.SaleOrigin)
	assert.True(t, row.Payload.Valid)
}

func TestBuildRowSaleReversedCountsUnits(t *testing.T) {
	env := envelopeFor(t, enums.EventSaleReversed, enums.AggregateSale, payloads.SaleReversedEvent{
		SaleID:           uuid.New(),
		SaleNumber:       7,
		ReleasedVariants: []uuid.UUID{uuid.New()},
		DeletedVariants:  []uuid.UUID{uuid.New()},
	})

	row, err := BuildRow(env)
	require.NoError(t, err)
	assert.EqualValues(t, 7, *row.SaleNumber)
	assert.EqualValues(t, 2, *row.UnitCount)
	assert.Nil(t, row.TotalCents)
}

func TestBuildRowSaleSettled(t *testing.T) {
	env := envelopeFor(t, enums.EventSaleSettled, enums.AggregateSale, payloads.SaleSettledEvent{
		SaleID:     uuid.New(),
		SaleNumber: 3,
	})

	row, err := BuildRow(env)
	require.NoError(t, err)
	assert.Equal(t, string(enums.SaleStatusCompleted), *row.Status)
}

func TestBuildRowPreOrderTransition(t *testing.T) {
	env := envelopeFor(t, enums.EventPreOrderCancelled, enums.AggregatePreOrder, payloads.PreOrderTransitionedEvent{
		PreOrderID: uuid.New(),
		Status:     enums.PreOrderStatusCanceled,
	})

	row, err := BuildRow(env)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PreOrderStatusCanceled), *row.Status)
	assert.Nil(t, row.SaleNumber)
	assert.Equal(t, "pre_order", row.AggregateType)
}

func TestBuildRowRejectsUnknownType(t *testing.T) {
	env := envelopeFor(t, enums.OutboxEventType("sale.exported"), enums.AggregateSale, map[string]any{})

	_, err := BuildRow(env)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestBuildRowRejectsMalformedPayload(t *testing.T) {
	env := envelopeFor(t, enums.EventSaleRecorded, enums.AggregateSale, nil)
	env.Data = json.RawMessage(`{"sale_number":"forty-two"}`)

	_, err := BuildRow(env)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedEvent)
}

func TestLedgerEventRowSave(t *testing.T) {
	row, err := BuildRow(envelopeFor(t, enums.EventSaleSettled, enums.AggregateSale, payloads.SaleSettledEvent{
		SaleID:     uuid.New(),
		SaleNumber: 9,
	}))
	require.NoError(t, err)

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, row.EventID, insertID)
	assert.EqualValues(t, 9, values["sale_number"])
	assert.Nil(t, values["total_cents"])
	assert.NotNil(t, values["payload"])
	assert.Len(t, values, len(LedgerEventsSchema))
}
