package imports

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	product "github.com/angelmondragon/stockledger-backend/internal/products"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// Row outcomes.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionFailed  = "failed"
)

// ProductUpserter matches products by SKU.
type ProductUpserter interface {
	UpsertBySKU(ctx context.Context, input product.UpsertInput) (*models.Product, bool, error)
}

// VariantStore is the slice of the variant service imports write through.
type VariantStore interface {
	FindBySerial(ctx context.Context, tenantID uuid.UUID, serial int64) (*models.Variant, error)
	Create(ctx context.Context, input variants.CreateVariantInput) (*models.Variant, error)
	UpdateDetails(ctx context.Context, input variants.UpdateVariantInput) (*models.Variant, error)
}

// RowResult reports what happened to one line.
type RowResult struct {
	Line         int        `json:"line"`
	ProductSKU   string     `json:"product_sku"`
	SerialNumber *int64     `json:"serial_number,omitempty"`
	Action       string     `json:"action"`
	VariantID    *uuid.UUID `json:"variant_id,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Report summarises an import run.
type Report struct {
	Total           int         `json:"total"`
	ProductsCreated int         `json:"products_created"`
	VariantsCreated int         `json:"variants_created"`
	VariantsUpdated int         `json:"variants_updated"`
	Failed          int         `json:"failed"`
	Rows            []RowResult `json:"rows"`
}

// Service applies parsed rows.
type Service interface {
	Apply(ctx context.Context, tenantID uuid.UUID, rows []Row) (*Report, error)
}

type service struct {
	products ProductUpserter
	variants VariantStore
	logg     *logger.Logger
}

func NewService(products ProductUpserter, variantStore VariantStore, logg *logger.Logger) (Service, error) {
	if products == nil {
		return nil, fmt.Errorf("product upserter required")
	}
	if variantStore == nil {
		return nil, fmt.Errorf("variant store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{products: products, variants: variantStore, logg: logg}, nil
}

// Apply upserts every row independently: the product by SKU, then the unit
// by serial number, allocating a serial when the row has none. A failing row
// is reported and does not stop the rest.
func (s *service) Apply(ctx context.Context, tenantID uuid.UUID, rows []Row) (*Report, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	ctx = s.logg.WithTenantID(ctx, tenantID.String())
	ctx = s.logg.WithOperation(ctx, "inventory_import")

	report := &Report{Total: len(rows), Rows: make([]RowResult, 0, len(rows))}
	for _, row := range rows {
		result := s.applyRow(ctx, tenantID, row, report)
		if result.Action == ActionFailed {
			report.Failed++
		}
		report.Rows = append(report.Rows, result)
	}
	if report.Failed > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "failed_rows", report.Failed), "inventory import finished with failures")
	}
	return report, nil
}

func (s *service) applyRow(ctx context.Context, tenantID uuid.UUID, row Row, report *Report) RowResult {
	result := RowResult{Line: row.Line, ProductSKU: row.ProductSKU, SerialNumber: row.SerialNumber}
	fail := func(err error) RowResult {
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}
	if row.Err != nil {
		return fail(row.Err)
	}

	prod, created, err := s.products.UpsertBySKU(ctx, product.UpsertInput{TenantID: tenantID, SKU: row.ProductSKU})
	if err != nil {
		return fail(err)
	}
	if created {
		report.ProductsCreated++
	}

	if row.SerialNumber != nil {
		existing, err := s.variants.FindBySerial(ctx, tenantID, *row.SerialNumber)
		switch {
		case err == nil:
			if existing.ProductID != prod.ID {
				return fail(fmt.Errorf("serial %d belongs to another product", *row.SerialNumber))
			}
			updated, err := s.variants.UpdateDetails(ctx, updateInput(tenantID, existing.ID, row))
			if err != nil {
				return fail(err)
			}
			report.VariantsUpdated++
			result.Action = ActionUpdated
			result.VariantID = &updated.ID
			return result
		case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			return fail(err)
		}
	}

	unit, err := s.variants.Create(ctx, createInput(tenantID, prod.ID, row))
	if err != nil {
		return fail(err)
	}
	report.VariantsCreated++
	result.Action = ActionCreated
	result.VariantID = &unit.ID
	serial := unit.SerialNumber
	result.SerialNumber = &serial
	return result
}

func createInput(tenantID, productID uuid.UUID, row Row) variants.CreateVariantInput {
	input := variants.CreateVariantInput{
		TenantID:     tenantID,
		ProductID:    productID,
		SerialNumber: row.SerialNumber,
		SKU:          row.VariantSKU,
		Size:         row.Size,
		SizeLabel:    row.SizeLabel,
		Location:     row.Location,
		DateAdded:    row.DateAdded,
	}
	if row.Status != nil {
		input.Status = *row.Status
	}
	if row.Condition != nil {
		input.Condition = *row.Condition
	}
	if row.CostPriceCents != nil {
		input.CostPriceCents = *row.CostPriceCents
	}
	return input
}

// updateInput only carries the columns the row filled in.
func updateInput(tenantID, variantID uuid.UUID, row Row) variants.UpdateVariantInput {
	input := variants.UpdateVariantInput{
		TenantID:       tenantID,
		VariantID:      variantID,
		Status:         row.Status,
		SKU:            row.VariantSKU,
		Condition:      row.Condition,
		CostPriceCents: row.CostPriceCents,
	}
	if row.Size != "" {
		input.Size = &row.Size
	}
	if row.SizeLabel != "" {
		input.SizeLabel = &row.SizeLabel
	}
	if row.Location != "" {
		input.Location = &row.Location
	}
	return input
}
