package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository persists catalog entries.
type Repository interface {
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, tenantID, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Product, error)
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.Product, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Product, error)
	CountUnitsByStatus(ctx context.Context, tenantID, productID uuid.UUID) (map[enums.VariantStatus]int64, error)
	HasVariants(ctx context.Context, tenantID, productID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Update applies fields and returns gorm.ErrRecordNotFound when nothing matched.
func (r *repository) Update(ctx context.Context, tenantID, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		_, err := r.FindByID(ctx, tenantID, id)
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Where("products.tenant_id = ?", tenantID)
	if filters.Category != "" {
		query = query.Where("products.category = ?", filters.Category)
	}
	if filters.Brand != "" {
		query = query.Where("products.brand = ?", filters.Brand)
	}
	if q := strings.ToLower(strings.TrimSpace(filters.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("(LOWER(products.name) LIKE ? OR LOWER(products.sku) LIKE ?)", like, like)
	}

	query, err := pagination.Apply(query, "products", params)
	if err != nil {
		return nil, err
	}
	var rows []models.Product
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountUnitsByStatus(ctx context.Context, tenantID, productID uuid.UUID) (map[enums.VariantStatus]int64, error) {
	var rows []struct {
		Status enums.VariantStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[enums.VariantStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *repository) HasVariants(ctx context.Context, tenantID, productID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
