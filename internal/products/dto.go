package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	TenantID       uuid.UUID
	SKU            string
	Name           string
	Brand          string
	Category       string
	ListPriceCents int64
	SalePriceCents *int64
	ImageURL       *string
}

// UpdateProductInput holds optional mutation values for a product. Once units
// reference the product only Name, prices and ImageURL may change.
type UpdateProductInput struct {
	TenantID       uuid.UUID
	ProductID      uuid.UUID
	SKU            *string
	Name           *string
	Brand          *string
	Category       *string
	ListPriceCents *int64
	SalePriceCents *int64
	ImageURL       *string
}

// UpsertInput matches a product by SKU. Nil fields leave an existing product
// untouched.
type UpsertInput struct {
	TenantID       uuid.UUID
	SKU            string
	Name           *string
	Brand          *string
	Category       *string
	ListPriceCents *int64
}

// ListFilters describe the supported filter knobs for the product listing.
type ListFilters struct {
	Category string
	Brand    string
	Query    string
}

// ProductDTO is the read model returned by the API.
type ProductDTO struct {
	ID             uuid.UUID                     `json:"id"`
	SKU            string                        `json:"sku"`
	Name           string                        `json:"name"`
	Brand          string                        `json:"brand"`
	Category       string                        `json:"category"`
	ListPriceCents int64                         `json:"list_price_cents"`
	SalePriceCents *int64                        `json:"sale_price_cents,omitempty"`
	ImageURL       *string                       `json:"image_url,omitempty"`
	UnitCounts     map[enums.VariantStatus]int64 `json:"unit_counts,omitempty"`
	CreatedAt      time.Time                     `json:"created_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
}

func toDTO(p *models.Product) *ProductDTO {
	return &ProductDTO{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Brand:          p.Brand,
		Category:       p.Category,
		ListPriceCents: p.ListPriceCents,
		SalePriceCents: p.SalePriceCents,
		ImageURL:       p.ImageURL,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
