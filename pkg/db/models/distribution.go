package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Avatar is a profit recipient (partner, consignor, house account).
type Avatar struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Active    bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

type DistributionTemplate struct {
	ID        uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID                   `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	Name      string                      `gorm:"column:name;not null" json:"name"`
	Entries   []DistributionTemplateEntry `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"entries,omitempty"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DistributionTemplate) TableName() string { return "profit_distribution_templates" }

type DistributionTemplateEntry struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID       `gorm:"column:template_id;type:uuid;not null;index" json:"template_id"`
	AvatarID   uuid.UUID       `gorm:"column:avatar_id;type:uuid;not null" json:"avatar_id"`
	Percentage decimal.Decimal `gorm:"column:percentage;type:numeric(7,4);not null" json:"percentage"`
}

func (DistributionTemplateEntry) TableName() string { return "profit_distribution_template_entries" }
