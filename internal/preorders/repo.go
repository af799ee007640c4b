package preorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, preOrder *models.PreOrder) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.PreOrder, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.PreOrder, error)
	UpdateFields(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus, fields map[string]any) (bool, error)
	Transition(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus, to enums.PreOrderStatus, fields map[string]any) (bool, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus) (bool, error)
	ReopenFromSale(ctx context.Context, tenantID, preOrderID, saleID uuid.UUID) error
	ClaimCanceled(ctx context.Context, tenantID, id uuid.UUID, saleID *uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, preOrder *models.PreOrder) error {
	return r.db.WithContext(ctx).Create(preOrder).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.PreOrder, error) {
	var preOrder models.PreOrder
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&preOrder).Error; err != nil {
		return nil, err
	}
	return &preOrder, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.PreOrder, error) {
	query := r.db.WithContext(ctx).Model(&models.PreOrder{}).Where("pre_orders.tenant_id = ?", tenantID)
	if filters.Status != nil {
		query = query.Where("pre_orders.status = ?", *filters.Status)
	}
	if filters.ProductID != nil {
		query = query.Where("pre_orders.product_id = ?", *filters.ProductID)
	}
	if filters.Customer != "" {
		query = query.Where("LOWER(pre_orders.customer_name) LIKE ?", "%"+filters.Customer+"%")
	}
	query, err := pagination.Apply(query, "pre_orders", params)
	if err != nil {
		return nil, err
	}
	var rows []models.PreOrder
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateFields edits a pre-order only while it is in one of the from states.
func (r *repository) UpdateFields(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus, fields map[string]any) (bool, error) {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.PreOrder{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Transition moves the status conditionally. False means the row was not in
// any of the from states.
func (r *repository) Transition(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus, to enums.PreOrderStatus, fields map[string]any) (bool, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["status"] = to
	return r.UpdateFields(ctx, tenantID, id, from, fields)
}

func (r *repository) Delete(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Delete(&models.PreOrder{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReopenFromSale puts a completed or canceled pre-order back to pending when
// the sale it points at is reversed. Pre-orders linked to another sale are
// left alone.
func (r *repository) ReopenFromSale(ctx context.Context, tenantID, preOrderID, saleID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PreOrder{}).
		Where("tenant_id = ? AND id = ? AND sale_id = ? AND status IN ?", tenantID, preOrderID, saleID,
			[]enums.PreOrderStatus{enums.PreOrderStatusCompleted, enums.PreOrderStatusCanceled}).
		Updates(map[string]any{
			"status":       enums.PreOrderStatusPending,
			"sale_id":      nil,
			"completed_at": nil,
			"canceled_at":  nil,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// ClaimCanceled moves a canceled pre-order to pending only while it still
// links saleID (nil matches an unlinked row). Of two restores racing on the
// same row exactly one gets true.
func (r *repository) ClaimCanceled(ctx context.Context, tenantID, id uuid.UUID, saleID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PreOrder{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, enums.PreOrderStatusCanceled)
	if saleID != nil {
		query = query.Where("sale_id = ?", *saleID)
	} else {
		query = query.Where("sale_id IS NULL")
	}
	res := query.Updates(map[string]any{
		"status":      enums.PreOrderStatusPending,
		"sale_id":     nil,
		"canceled_at": nil,
		"updated_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
