package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// OutboxEvent is an append-only ledger event waiting to be published.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID                 `gorm:"column:tenant_id;type:uuid;not null" json:"tenant_id"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null" json:"event_type"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null" json:"aggregate_type"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null" json:"aggregate_id"`
	Payload       json.RawMessage           `gorm:"column:payload;type:text;not null" json:"payload"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime;index:idx_outbox_events_unpublished,priority:2" json:"created_at"`
	PublishedAt   *time.Time                `gorm:"column:published_at;index:idx_outbox_events_unpublished,priority:1" json:"published_at,omitempty"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	LastError     *string                   `gorm:"column:last_error" json:"last_error,omitempty"`
}

// OutboxDLQ keeps events the publisher gave up on.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null;index" json:"event_id"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:text;not null" json:"event_type"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:text;not null" json:"aggregate_type"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null" json:"aggregate_id"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:text;not null" json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:text;not null" json:"error_reason"`
	ErrorMessage  *string                    `gorm:"column:error_message" json:"error_message,omitempty"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	FailedAt      time.Time                  `gorm:"column:failed_at" json:"failed_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
