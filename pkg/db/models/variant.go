package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Variant is one serialized, individually tracked unit of a product.
type Variant struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_variants_tenant_serial,priority:1;index:idx_variants_tenant_status,priority:1" json:"tenant_id"`
	ProductID      uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index" json:"product_id"`
	SerialNumber   int64               `gorm:"column:serial_number;not null;uniqueIndex:ux_variants_tenant_serial,priority:2" json:"serial_number"`
	SKU            *string             `gorm:"column:sku" json:"sku,omitempty"`
	Size           string              `gorm:"column:size;not null;default:''" json:"size"`
	SizeLabel      string              `gorm:"column:size_label;not null;default:''" json:"size_label"`
	Location       string              `gorm:"column:location;not null;default:''" json:"location"`
	Condition      enums.UnitCondition `gorm:"column:condition;type:text;not null;default:'new'" json:"condition"`
	Status         enums.VariantStatus `gorm:"column:status;type:text;not null;default:'available';index:idx_variants_tenant_status,priority:2" json:"status"`
	CostPriceCents int64               `gorm:"column:cost_price_cents;not null;default:0" json:"cost_price_cents"`
	Ownership      enums.Ownership     `gorm:"column:ownership;type:text;not null;default:'store'" json:"ownership"`
	ConsignorID    *uuid.UUID          `gorm:"column:consignor_id;type:uuid" json:"consignor_id,omitempty"`
	PayoutMethod   *string             `gorm:"column:payout_method" json:"payout_method,omitempty"`
	UnitOrigin     enums.UnitOrigin    `gorm:"column:unit_origin;type:text;not null;default:'regular'" json:"unit_origin"`
	PreOrderID     *uuid.UUID          `gorm:"column:pre_order_id;type:uuid;index" json:"pre_order_id,omitempty"`
	Notes          *string             `gorm:"column:notes" json:"notes,omitempty"`
	DateAdded      time.Time           `gorm:"column:date_added;not null" json:"date_added"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
