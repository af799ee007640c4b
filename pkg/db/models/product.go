package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entry serialized units belong to.
type Product struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_products_tenant_sku,priority:1" json:"tenant_id"`
	SKU            string    `gorm:"column:sku;not null;uniqueIndex:ux_products_tenant_sku,priority:2" json:"sku"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Brand          string    `gorm:"column:brand;not null;default:''" json:"brand"`
	Category       string    `gorm:"column:category;not null;default:''" json:"category"`
	ListPriceCents int64     `gorm:"column:list_price_cents;not null;default:0" json:"list_price_cents"`
	SalePriceCents *int64    `gorm:"column:sale_price_cents" json:"sale_price_cents,omitempty"`
	ImageURL       *string   `gorm:"column:image_url" json:"image_url,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
