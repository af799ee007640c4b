package variants

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository persists serialized units. Every method is a single statement.
type Repository interface {
	Create(ctx context.Context, variant *models.Variant) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Variant, error)
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Variant, error)
	FindBySerial(ctx context.Context, tenantID uuid.UUID, serial int64) (*models.Variant, error)
	MaxNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CountActive(ctx context.Context, tenantID uuid.UUID) (int64, error)
	TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from, to enums.VariantStatus) (bool, error)
	UpdateFields(ctx context.Context, tenantID, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Variant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a variant repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, variant *models.Variant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Variant, error) {
	var variants []models.Variant
	if len(ids) == 0 {
		return variants, nil
	}
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

func (r *repository) FindBySerial(ctx context.Context, tenantID uuid.UUID, serial int64) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND serial_number = ?", tenantID, serial).
		First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// MaxNumber returns the highest serial number in use for the tenant.
func (r *repository) MaxNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var max int64
	if err := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(MAX(serial_number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

// CountActive counts units occupying plan capacity: not archived and not
// deposit placeholders.
func (r *repository) CountActive(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("tenant_id = ? AND status <> ? AND unit_origin <> ?", tenantID, enums.VariantStatusArchived, enums.UnitOriginPreorderDeposit).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// TransitionStatus moves the unit only if it is still in the expected state.
func (r *repository) TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from, to enums.VariantStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateFields(ctx context.Context, tenantID, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Variant{}).
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
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.Variant{}).Error
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Variant, error) {
	query := r.db.WithContext(ctx).Model(&models.Variant{}).Where("variants.tenant_id = ?", tenantID)
	if filters.ProductID != nil {
		query = query.Where("variants.product_id = ?", *filters.ProductID)
	}
	if filters.Status != nil {
		query = query.Where("variants.status = ?", *filters.Status)
	} else if !filters.IncludeArchived {
		query = query.Where("variants.status <> ?", enums.VariantStatusArchived)
	}

	query, err := pagination.Apply(query, "variants", params)
	if err != nil {
		return nil, err
	}
	var rows []models.Variant
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
