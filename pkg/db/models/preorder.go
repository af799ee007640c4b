package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// PreOrder is a customer commitment to buy a unit not yet on hand.
// SaleID links the fulfilment or deposit sale; VariantID the unit it consumed.
type PreOrder struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID             uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	CustomerName         string               `gorm:"column:customer_name;not null" json:"customer_name"`
	CustomerPhone        *string              `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	CustomerID           *uuid.UUID           `gorm:"column:customer_id;type:uuid" json:"customer_id,omitempty"`
	ProductID            uuid.UUID            `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Size                 string               `gorm:"column:size;not null;default:''" json:"size"`
	TotalCents           int64                `gorm:"column:total_cents;not null" json:"total_cents"`
	DownPaymentCents     int64                `gorm:"column:down_payment_cents;not null;default:0" json:"down_payment_cents"`
	DownPaymentMethod    *string              `gorm:"column:down_payment_method" json:"down_payment_method,omitempty"`
	Status               enums.PreOrderStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	VariantID            *uuid.UUID           `gorm:"column:variant_id;type:uuid" json:"variant_id,omitempty"`
	SaleID               *uuid.UUID           `gorm:"column:sale_id;type:uuid" json:"sale_id,omitempty"`
	ExpectedDeliveryDate *time.Time           `gorm:"column:expected_delivery_date" json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time           `gorm:"column:actual_delivery_date" json:"actual_delivery_date,omitempty"`
	CompletedAt          *time.Time           `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CanceledAt           *time.Time           `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	VoidedAt             *time.Time           `gorm:"column:voided_at" json:"voided_at,omitempty"`
	Notes                *string              `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PreOrder) TableName() string { return "pre_orders" }
