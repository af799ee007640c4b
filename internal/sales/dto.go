package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// ItemInput is one unit on a sale. CostPriceCents overrides the unit's
// recorded cost when set.
type ItemInput struct {
	VariantID      uuid.UUID
	SoldPriceCents int64
	CostPriceCents *int64
}

type CustomerInput struct {
	Name  string
	Phone *string
	ID    *uuid.UUID
}

// RecordSaleInput drives RecordSale. The pre-order fields are set only by the
// pre-order lifecycle flows.
type RecordSaleInput struct {
	TenantID      uuid.UUID
	Items         []ItemInput
	DiscountCents int64
	PaymentMethod string
	Customer      CustomerInput
	SaleDate      *time.Time
	Status        enums.SaleStatus
	Distribution  distribution.Strategy
	Notes         *string

	PreOrderID *uuid.UUID
	Origin     enums.SaleOrigin
	// DistributableCents replaces the sale total as the amount split across
	// recipients (deposit capture distributes the down payment).
	DistributableCents *int64
	NetProfitCents     *int64
}

type RecordSaleResult struct {
	SaleID     uuid.UUID `json:"sale_id"`
	SaleNumber int64     `json:"sale_number"`
	Warnings   []string  `json:"warnings,omitempty"`
}

type ReversalResult struct {
	SaleID           uuid.UUID   `json:"sale_id"`
	ReleasedVariants []uuid.UUID `json:"released_variants"`
	DeletedVariants  []uuid.UUID `json:"deleted_variants"`
	PreOrderID       *uuid.UUID  `json:"pre_order_id,omitempty"`
	Warnings         []string    `json:"warnings,omitempty"`
}

type ListFilters struct {
	Status     *enums.SaleStatus
	PreOrderID *uuid.UUID
	From       *time.Time
	To         *time.Time
}

// Receipt is the read-only resolved view handed to receipt renderers.
type Receipt struct {
	Sale   models.Sale    `json:"sale"`
	Lines  []ReceiptLine  `json:"lines"`
	Shares []ReceiptShare `json:"shares"`
}

type ReceiptLine struct {
	ItemID         uuid.UUID `json:"item_id"`
	VariantID      uuid.UUID `json:"variant_id"`
	SerialNumber   *int64    `json:"serial_number,omitempty"`
	ProductName    *string   `json:"product_name,omitempty"`
	ProductSKU     *string   `json:"product_sku,omitempty"`
	Size           *string   `json:"size,omitempty"`
	SizeLabel      *string   `json:"size_label,omitempty"`
	SoldPriceCents int64     `json:"sold_price_cents"`
	CostPriceCents int64     `json:"cost_price_cents"`
}

type ReceiptShare struct {
	AvatarID      uuid.UUID       `json:"avatar_id"`
	RecipientName *string         `json:"recipient_name,omitempty"`
	Percentage    decimal.Decimal `json:"percentage"`
	AmountCents   int64           `json:"amount_cents"`
}

// ExportSale is one header line of a sales export.
type ExportSale struct {
	SaleID             uuid.UUID
	SaleNumber         int64
	SaleDate           time.Time
	Status             enums.SaleStatus
	Origin             enums.SaleOrigin
	PaymentMethod      string
	CustomerName       string
	TotalCents         int64
	DiscountCents      int64
	NetProfitCents     int64
	DistributableCents int64
	ItemCount          int64
}

// ExportShare is one distribution line of a sales export.
type ExportShare struct {
	SaleNumber    int64
	AvatarID      uuid.UUID
	RecipientName *string
	Percentage    decimal.Decimal
	AmountCents   int64
}
