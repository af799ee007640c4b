package distribution

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
)

// Repository persists recipients and distribution templates.
type Repository interface {
	CreateAvatar(ctx context.Context, avatar *models.Avatar) error
	ListAvatars(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]models.Avatar, error)
	FindAvatarsByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Avatar, error)
	SetAvatarActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error
	CreateTemplate(ctx context.Context, template *models.DistributionTemplate) error
	FindTemplate(ctx context.Context, tenantID, id uuid.UUID) (*models.DistributionTemplate, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]models.DistributionTemplate, error)
	DeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAvatar(ctx context.Context, avatar *models.Avatar) error {
	return r.db.WithContext(ctx).Create(avatar).Error
}

func (r *repository) ListAvatars(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]models.Avatar, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var avatars []models.Avatar
	if err := query.Order("created_at ASC").Order("id ASC").Find(&avatars).Error; err != nil {
		return nil, err
	}
	return avatars, nil
}

func (r *repository) FindAvatarsByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Avatar, error) {
	var avatars []models.Avatar
	if len(ids) == 0 {
		return avatars, nil
	}
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&avatars).Error; err != nil {
		return nil, err
	}
	return avatars, nil
}

func (r *repository) SetAvatarActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Avatar{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateTemplate inserts the template and its entries.
func (r *repository) CreateTemplate(ctx context.Context, template *models.DistributionTemplate) error {
	return r.db.WithContext(ctx).Create(template).Error
}

func (r *repository) FindTemplate(ctx context.Context, tenantID, id uuid.UUID) (*models.DistributionTemplate, error) {
	var template models.DistributionTemplate
	if err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("percentage DESC").Order("id ASC") }).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&template).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *repository) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]models.DistributionTemplate, error) {
	var templates []models.DistributionTemplate
	if err := r.db.WithContext(ctx).
		Preload("Entries").
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// DeleteTemplate removes entries first, then the template.
func (r *repository) DeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error {
	template, err := r.FindTemplate(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Where("template_id = ?", template.ID).
		Delete(&models.DistributionTemplateEntry{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(template).Error
}
