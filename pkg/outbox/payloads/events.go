package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// ShareLine is one avatar's cut of a sale.
type ShareLine struct {
	AvatarID    uuid.UUID `json:"avatar_id"`
	AmountCents int64     `json:"amount_cents"`
}

// SaleRecordedEvent is emitted once a sale and its distribution are written.
type SaleRecordedEvent struct {
	SaleID             uuid.UUID        `json:"sale_id"`
	SaleNumber         int64            `json:"sale_number"`
	Status             enums.SaleStatus `json:"status"`
	Origin             enums.SaleOrigin `json:"origin"`
	PreOrderID         *uuid.UUID       `json:"pre_order_id,omitempty"`
	TotalCents         int64            `json:"total_cents"`
	NetProfitCents     int64            `json:"net_profit_cents"`
	DistributableCents int64            `json:"distributable_cents"`
	VariantIDs         []uuid.UUID      `json:"variant_ids"`
	Shares             []ShareLine      `json:"shares"`
	Warnings           []string         `json:"warnings,omitempty"`
}

// SaleReversedEvent is emitted when a sale is deleted and its units released.
type SaleReversedEvent struct {
	SaleID           uuid.UUID   `json:"sale_id"`
	SaleNumber       int64       `json:"sale_number"`
	PreOrderID       *uuid.UUID  `json:"pre_order_id,omitempty"`
	ReleasedVariants []uuid.UUID `json:"released_variants"`
	DeletedVariants  []uuid.UUID `json:"deleted_variants"`
	Warnings         []string    `json:"warnings,omitempty"`
}

// SaleSettledEvent marks a pending sale completed.
type SaleSettledEvent struct {
	SaleID     uuid.UUID `json:"sale_id"`
	SaleNumber int64     `json:"sale_number"`
}

// PreOrderTransitionedEvent covers fulfil, cancel, restore and void.
type PreOrderTransitionedEvent struct {
	PreOrderID uuid.UUID            `json:"pre_order_id"`
	Status     enums.PreOrderStatus `json:"status"`
	SaleIDs    []uuid.UUID          `json:"sale_ids,omitempty"`
	VariantID  *uuid.UUID           `json:"variant_id,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
}
