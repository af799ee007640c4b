package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Sale is the header row of a recorded sale.
type Sale struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID           uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_sales_tenant_number,priority:1" json:"tenant_id"`
	SaleNumber         int64            `gorm:"column:sale_number;not null;uniqueIndex:ux_sales_tenant_number,priority:2" json:"sale_number"`
	SaleDate           time.Time        `gorm:"column:sale_date;not null" json:"sale_date"`
	TotalCents         int64            `gorm:"column:total_cents;not null" json:"total_cents"`
	DiscountCents      int64            `gorm:"column:discount_cents;not null;default:0" json:"discount_cents"`
	NetProfitCents     int64            `gorm:"column:net_profit_cents;not null" json:"net_profit_cents"`
	DistributableCents int64            `gorm:"column:distributable_cents;not null" json:"distributable_cents"`
	CustomerName       string           `gorm:"column:customer_name;not null;default:''" json:"customer_name"`
	CustomerPhone      *string          `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	CustomerID         *uuid.UUID       `gorm:"column:customer_id;type:uuid" json:"customer_id,omitempty"`
	Status             enums.SaleStatus `gorm:"column:status;type:text;not null;default:'completed'" json:"status"`
	PaymentMethod      string           `gorm:"column:payment_method;not null" json:"payment_method"`
	Origin             enums.SaleOrigin `gorm:"column:origin;type:text;not null;default:'direct'" json:"origin"`
	PreOrderID         *uuid.UUID       `gorm:"column:pre_order_id;type:uuid;index" json:"pre_order_id,omitempty"`
	Notes              *string          `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// SaleItem links a sold unit to its sale. Quantity is always one.
type SaleItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID `gorm:"column:tenant_id;type:uuid;not null" json:"tenant_id"`
	SaleID         uuid.UUID `gorm:"column:sale_id;type:uuid;not null;index" json:"sale_id"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null;index" json:"variant_id"`
	SoldPriceCents int64     `gorm:"column:sold_price_cents;not null" json:"sold_price_cents"`
	CostPriceCents int64     `gorm:"column:cost_price_cents;not null" json:"cost_price_cents"`
	Quantity       int       `gorm:"column:quantity;not null;default:1" json:"quantity"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// ProfitDistribution is one recipient's share of a sale's distributable amount.
type ProfitDistribution struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null" json:"tenant_id"`
	SaleID      uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index" json:"sale_id"`
	AvatarID    uuid.UUID       `gorm:"column:avatar_id;type:uuid;not null" json:"avatar_id"`
	Percentage  decimal.Decimal `gorm:"column:percentage;type:numeric(7,4);not null" json:"percentage"`
	AmountCents int64           `gorm:"column:amount_cents;not null" json:"amount_cents"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
