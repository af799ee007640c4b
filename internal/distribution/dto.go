package distribution

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// Strategy selects how a sale's distributable amount is split.
type Strategy struct {
	Kind       enums.DistributionStrategy `json:"kind"`
	AvatarID   *uuid.UUID                 `json:"avatar_id,omitempty"`
	TemplateID *uuid.UUID                 `json:"template_id,omitempty"`
	Manual     []ManualShare              `json:"manual,omitempty"`
}

// ManualShare is one caller-supplied (recipient, percentage) pair.
type ManualShare struct {
	AvatarID   uuid.UUID       `json:"avatar_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Share is one computed distribution row.
type Share struct {
	AvatarID    uuid.UUID       `json:"avatar_id"`
	Percentage  decimal.Decimal `json:"percentage"`
	AmountCents int64           `json:"amount_cents"`
}

type CreateTemplateInput struct {
	TenantID uuid.UUID
	Name     string
	Entries  []ManualShare
}
