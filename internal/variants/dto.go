package variants

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// CreateVariantInput describes a new regular unit. SerialNumber is allocated
// unless provided (imports carry their own).
type CreateVariantInput struct {
	TenantID       uuid.UUID
	ProductID      uuid.UUID
	SerialNumber   *int64
	SKU            *string
	Size           string
	SizeLabel      string
	Location       string
	Condition      enums.UnitCondition
	Status         enums.VariantStatus
	CostPriceCents int64
	Ownership      enums.Ownership
	ConsignorID    *uuid.UUID
	PayoutMethod   *string
	Notes          *string
	DateAdded      *time.Time
}

// SoldUnitInput creates a unit that exists only because of a pre-order flow.
type SoldUnitInput struct {
	TenantID       uuid.UUID
	ProductID      uuid.UUID
	PreOrderID     uuid.UUID
	Origin         enums.UnitOrigin
	Size           string
	CostPriceCents int64
	Notes          *string
}

// UpdateVariantInput carries optional detail edits. Status routes through the
// transition table and is refused for sold units.
type UpdateVariantInput struct {
	TenantID       uuid.UUID
	VariantID      uuid.UUID
	Status         *enums.VariantStatus
	SKU            *string
	Size           *string
	SizeLabel      *string
	Location       *string
	Condition      *enums.UnitCondition
	CostPriceCents *int64
	PayoutMethod   *string
	Notes          *string
}

type ListFilters struct {
	ProductID       *uuid.UUID
	Status          *enums.VariantStatus
	IncludeArchived bool
}
