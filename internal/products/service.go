package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Service exposes catalog management for a tenant.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, tenantID, productID uuid.UUID) error
	Get(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error)
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[ProductDTO], error)
	UpsertBySKU(ctx context.Context, input UpsertInput) (*models.Product, bool, error)
}

type service struct {
	repo     Repository
	enricher catalog.Enricher
	logg     *logger.Logger
}

// NewService constructs a product service. A nil enricher disables catalog
// lookups.
func NewService(repo Repository, enricher catalog.Enricher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if enricher == nil {
		enricher = catalog.Noop{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, enricher: enricher, logg: logg}, nil
}

// CreateProduct inserts the product and fills its image from the catalog when
// none was supplied.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := validatePrices(&input.ListPriceCents, input.SalePriceCents); err != nil {
		return nil, err
	}

	product := &models.Product{
		TenantID:       input.TenantID,
		SKU:            sku,
		Name:           name,
		Brand:          strings.TrimSpace(input.Brand),
		Category:       strings.TrimSpace(input.Category),
		ListPriceCents: input.ListPriceCents,
		SalePriceCents: input.SalePriceCents,
		ImageURL:       trimmedOrNil(input.ImageURL),
	}
	if product.ImageURL == nil {
		if found := s.lookup(ctx, sku); found != nil && found.ImageURL != "" {
			product.ImageURL = &found.ImageURL
		}
	}
	if err := s.insert(ctx, product); err != nil {
		return nil, err
	}
	return toDTO(product), nil
}

// UpdateProduct applies the provided fields. Identity fields are frozen once
// any unit references the product.
func (s *service) UpdateProduct(ctx context.Context, input UpdateProductInput) (*ProductDTO, error) {
	current, err := s.Get(ctx, input.TenantID, input.ProductID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	identity := []string{}
	if input.SKU != nil {
		sku := strings.TrimSpace(*input.SKU)
		if sku == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku must not be empty")
		}
		if sku != current.SKU {
			fields["sku"] = sku
			identity = append(identity, "sku")
		}
	}
	if input.Brand != nil && strings.TrimSpace(*input.Brand) != current.Brand {
		fields["brand"] = strings.TrimSpace(*input.Brand)
		identity = append(identity, "brand")
	}
	if input.Category != nil && strings.TrimSpace(*input.Category) != current.Category {
		fields["category"] = strings.TrimSpace(*input.Category)
		identity = append(identity, "category")
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be empty")
		}
		fields["name"] = name
	}
	if err := validatePrices(input.ListPriceCents, input.SalePriceCents); err != nil {
		return nil, err
	}
	if input.ListPriceCents != nil {
		fields["list_price_cents"] = *input.ListPriceCents
	}
	if input.SalePriceCents != nil {
		fields["sale_price_cents"] = *input.SalePriceCents
	}
	if input.ImageURL != nil {
		fields["image_url"] = trimmedOrNil(input.ImageURL)
	}

	if len(identity) > 0 {
		referenced, err := s.repo.HasVariants(ctx, input.TenantID, input.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check product units")
		}
		if referenced {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidOperation, "only name and prices can change once units reference the product").
				WithDetails(map[string]any{"fields": identity})
		}
	}

	if err := s.repo.Update(ctx, input.TenantID, input.ProductID, fields); err != nil {
		if isSKUConflict(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already in use")
		}
		return nil, mapLookupError(err)
	}
	return s.GetProduct(ctx, input.TenantID, input.ProductID)
}

// DeleteProduct removes a product that no unit references.
func (s *service) DeleteProduct(ctx context.Context, tenantID, productID uuid.UUID) error {
	if _, err := s.Get(ctx, tenantID, productID); err != nil {
		return err
	}
	referenced, err := s.repo.HasVariants(ctx, tenantID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check product units")
	}
	if referenced {
		return pkgerrors.New(pkgerrors.CodeConflict, "product still has units; archive them instead")
	}
	if err := s.repo.Delete(ctx, tenantID, productID); err != nil {
		return mapLookupError(err)
	}
	return nil
}

func (s *service) Get(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, tenantID, productID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return product, nil
}

// GetProduct returns the product with unit counts per status.
func (s *service) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.Get(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountUnitsByStatus(ctx, tenantID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count product units")
	}
	dto := toDTO(product)
	dto.UnitCounts = counts
	return dto, nil
}

func (s *service) ListProducts(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[ProductDTO], error) {
	rows, err := s.repo.List(ctx, tenantID, filters, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return pagination.Page[ProductDTO]{}, err
		}
		return pagination.Page[ProductDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	dtos := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *toDTO(&rows[i]))
	}
	return pagination.NewPage(dtos, params.Limit, func(p ProductDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// UpsertBySKU matches a product by SKU, updating the provided fields, or
// inserts it. New products without a name take the catalog title, falling back
// to the SKU. The bool reports whether a product was created.
func (s *service) UpsertBySKU(ctx context.Context, input UpsertInput) (*models.Product, bool, error) {
	sku := strings.TrimSpace(input.SKU)
	if input.TenantID == uuid.Nil || sku == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and sku are required")
	}
	if input.ListPriceCents != nil && *input.ListPriceCents < 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "list price must not be negative")
	}

	existing, err := s.repo.FindBySKU(ctx, input.TenantID, sku)
	switch {
	case err == nil:
		fields := map[string]any{}
		if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
			fields["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Brand != nil {
			fields["brand"] = strings.TrimSpace(*input.Brand)
		}
		if input.Category != nil {
			fields["category"] = strings.TrimSpace(*input.Category)
		}
		if input.ListPriceCents != nil {
			fields["list_price_cents"] = *input.ListPriceCents
		}
		if len(fields) == 0 {
			return existing, false, nil
		}
		if err := s.repo.Update(ctx, input.TenantID, existing.ID, fields); err != nil {
			return nil, false, mapLookupError(err)
		}
		updated, err := s.Get(ctx, input.TenantID, existing.ID)
		return updated, false, err
	case !db.IsNotFound(err):
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find product by sku")
	}

	product := &models.Product{TenantID: input.TenantID, SKU: sku, Name: sku}
	if input.Brand != nil {
		product.Brand = strings.TrimSpace(*input.Brand)
	}
	if input.Category != nil {
		product.Category = strings.TrimSpace(*input.Category)
	}
	if input.ListPriceCents != nil {
		product.ListPriceCents = *input.ListPriceCents
	}
	found := s.lookup(ctx, sku)
	if found != nil {
		if found.ImageURL != "" {
			product.ImageURL = &found.ImageURL
		}
		if found.Title != "" {
			product.Name = found.Title
		}
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if err := s.insert(ctx, product); err != nil {
		return nil, false, err
	}
	return product, true, nil
}

func (s *service) insert(ctx context.Context, product *models.Product) error {
	if err := s.repo.Create(ctx, product); err != nil {
		if isSKUConflict(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already in use").
				WithDetails(map[string]any{"sku": product.SKU})
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return nil
}

// lookup asks the catalog for sku. Failures are logged and never block the
// caller.
func (s *service) lookup(ctx context.Context, sku string) *catalog.Enrichment {
	found, err := s.enricher.Lookup(ctx, sku)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "sku", sku), "catalog lookup failed: "+err.Error())
		}
		return nil
	}
	return found
}

func validatePrices(list, sale *int64) error {
	if list != nil && *list < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "list price must not be negative")
	}
	if sale != nil && *sale < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale price must not be negative")
	}
	return nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// isSKUConflict matches the Postgres constraint name or the SQLite column list.
func isSKUConflict(err error) bool {
	return db.IsUniqueViolation(err, "ux_products_tenant_sku") || db.IsUniqueViolation(err, "products.sku")
}

func mapLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
}
