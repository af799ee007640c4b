package preorders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

type CreatePreOrderInput struct {
	TenantID             uuid.UUID
	CustomerName         string
	CustomerPhone        *string
	CustomerID           *uuid.UUID
	ProductID            uuid.UUID
	Size                 string
	TotalCents           int64
	DownPaymentCents     int64
	DownPaymentMethod    *string
	ExpectedDeliveryDate *time.Time
	Notes                *string
}

// UpdatePreOrderInput edits an open pre-order. Nil fields are left as is.
type UpdatePreOrderInput struct {
	TenantID             uuid.UUID
	PreOrderID           uuid.UUID
	CustomerName         *string
	CustomerPhone        *string
	Size                 *string
	TotalCents           *int64
	DownPaymentCents     *int64
	DownPaymentMethod    *string
	ExpectedDeliveryDate *time.Time
	Notes                *string
}

type FulfilInput struct {
	TenantID      uuid.UUID
	PreOrderID    uuid.UUID
	PaymentMethod string
	Distribution  distribution.Strategy
	// CostPriceCents is recorded on a unit allocated for the fulfilment.
	CostPriceCents int64
	DeliveredAt    *time.Time
	Notes          *string
}

// CancelInput captures the down payment as revenue. PaymentMethod falls back
// to the method recorded when the deposit was taken.
type CancelInput struct {
	TenantID      uuid.UUID
	PreOrderID    uuid.UUID
	PaymentMethod string
	Distribution  distribution.Strategy
	Notes         *string
}

type LifecycleResult struct {
	PreOrderID uuid.UUID  `json:"pre_order_id"`
	Status     string     `json:"status"`
	SaleID     *uuid.UUID `json:"sale_id,omitempty"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

type ListFilters struct {
	Status    *enums.PreOrderStatus
	ProductID *uuid.UUID
	Customer  string
}
