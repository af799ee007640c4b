package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/bigquery"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

// Envelope is a ledger event as received from Pub/Sub.
type Envelope struct {
	EventID       uuid.UUID
	TenantID      uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OccurredAt    time.Time
	Version       int
	Data          json.RawMessage
}

// LedgerEventRow mirrors the ledger_events BigQuery schema. Money columns
// are only set for sale events.
type LedgerEventRow struct {
	EventID            string             `bigquery:"event_id"`
	TenantID           string             `bigquery:"tenant_id"`
	EventType          string             `bigquery:"event_type"`
	AggregateType      string             `bigquery:"aggregate_type"`
	AggregateID        string             `bigquery:"aggregate_id"`
	OccurredAt         time.Time          `bigquery:"occurred_at"`
	SaleNumber         *int64             `bigquery:"sale_number"`
	SaleOrigin         *string            `bigquery:"sale_origin"`
	Status             *string            `bigquery:"status"`
	TotalCents         *int64             `bigquery:"total_cents"`
	NetProfitCents     *int64             `bigquery:"net_profit_cents"`
	DistributableCents *int64             `bigquery:"distributable_cents"`
	UnitCount          *int64             `bigquery:"unit_count"`
	Payload            cbigquery.NullJSON `bigquery:"payload"`
}

// LedgerEventsSchema is the column layout of the ledger_events table. The
// table is partitioned by occurred_at and clustered by tenant and event type.
var LedgerEventsSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "tenant_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "aggregate_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "aggregate_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "sale_number", Type: cbigquery.IntegerFieldType},
	{Name: "sale_origin", Type: cbigquery.StringFieldType},
	{Name: "status", Type: cbigquery.StringFieldType},
	{Name: "total_cents", Type: cbigquery.IntegerFieldType},
	{Name: "net_profit_cents", Type: cbigquery.IntegerFieldType},
	{Name: "distributable_cents", Type: cbigquery.IntegerFieldType},
	{Name: "unit_count", Type: cbigquery.IntegerFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

// LedgerEventsTable describes the table the analytics worker provisions.
func LedgerEventsTable(name string) bigquery.TableSpec {
	return bigquery.TableSpec{
		Name:           name,
		Schema:         LedgerEventsSchema,
		PartitionField: "occurred_at",
		Clustering:     []string{"tenant_id", "event_type"},
	}
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert
// id so a redelivered event is dropped by the streaming API as well.
func (r *LedgerEventRow) Save() (map[string]cbigquery.Value, string, error) {
	values := map[string]cbigquery.Value{
		"event_id":            r.EventID,
		"tenant_id":           r.TenantID,
		"event_type":          r.EventType,
		"aggregate_type":      r.AggregateType,
		"aggregate_id":        r.AggregateID,
		"occurred_at":         r.OccurredAt,
		"sale_number":         nullable(r.SaleNumber),
		"sale_origin":         nullable(r.SaleOrigin),
		"status":              nullable(r.Status),
		"total_cents":         nullable(r.TotalCents),
		"net_profit_cents":    nullable(r.NetProfitCents),
		"distributable_cents": nullable(r.DistributableCents),
		"unit_count":          nullable(r.UnitCount),
		"payload":             nil,
	}
	if r.Payload.Valid {
		values["payload"] = r.Payload.JSONVal
	}
	return values, r.EventID, nil
}

func nullable[T any](v *T) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}

// BuildRow flattens the typed payload of a ledger event into a row.
func BuildRow(env Envelope) (*LedgerEventRow, error) {
	row := &LedgerEventRow{
		EventID:       env.EventID.String(),
		TenantID:      env.TenantID.String(),
		EventType:     string(env.EventType),
		AggregateType: string(env.AggregateType),
		AggregateID:   env.AggregateID.String(),
		OccurredAt:    env.OccurredAt.UTC(),
	}
	if len(env.Data) > 0 {
		row.Payload = cbigquery.NullJSON{Valid: true, JSONVal: string(env.Data)}
	}

	switch env.EventType {
	case enums.EventSaleRecorded:
		var data payloads.SaleRecordedEvent
		if err := decode(env, &data); err != nil {
			return nil, err
		}
		origin := string(data.Origin)
		status := string(data.Status)
		units := int64(len(data.VariantIDs))
		row.SaleNumber = &data.SaleNumber
		row.SaleOrigin = &origin
		row.Status = &status
		row.TotalCents = &data.TotalCents
		row.NetProfitCents = &data.NetProfitCents
		row.DistributableCents = &data.DistributableCents
		row.UnitCount = &units
	case enums.EventSaleReversed:
		var data payloads.SaleReversedEvent
		if err := decode(env, &data); err != nil {
			return nil, err
		}
		units := int64(len(data.ReleasedVariants) + len(data.DeletedVariants))
		row.SaleNumber = &data.SaleNumber
		row.UnitCount = &units
	case enums.EventSaleSettled:
		var data payloads.SaleSettledEvent
		if err := decode(env, &data); err != nil {
			return nil, err
		}
		status := string(enums.SaleStatusCompleted)
		row.SaleNumber = &data.SaleNumber
		row.Status = &status
	case enums.EventPreOrderFulfilled, enums.EventPreOrderCancelled, enums.EventPreOrderRestored, enums.EventPreOrderVoided:
		var data payloads.PreOrderTransitionedEvent
		if err := decode(env, &data); err != nil {
			return nil, err
		}
		status := string(data.Status)
		row.Status = &status
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, env.EventType)
	}
	return row, nil
}

func decode(env Envelope, out any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s payload missing", env.EventType)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return nil
}
