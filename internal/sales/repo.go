package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Repository persists sales, their items and distribution rows. Each method
// is one statement; callers sequence them.
type Repository interface {
	MaxNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CreateSale(ctx context.Context, sale *models.Sale) error
	CreateItems(ctx context.Context, items []models.SaleItem) error
	CreateDistributions(ctx context.Context, rows []models.ProfitDistribution) error
	DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error)
	DeleteItems(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error)
	DeleteDistributions(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error)
	FindSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error)
	FindSaleByPreOrder(ctx context.Context, tenantID, preOrderID uuid.UUID, origin enums.SaleOrigin) (*models.Sale, error)
	FindItems(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.SaleItem, error)
	FindDistributions(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.ProfitDistribution, error)
	VariantsWithItems(ctx context.Context, tenantID uuid.UUID, variantIDs []uuid.UUID) ([]uuid.UUID, error)
	TransitionStatus(ctx context.Context, tenantID, saleID uuid.UUID, from, to enums.SaleStatus) (bool, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Sale, error)
	ReceiptLines(ctx context.Context, tenantID, saleID uuid.UUID) ([]ReceiptLine, error)
	ReceiptShares(ctx context.Context, tenantID, saleID uuid.UUID) ([]ReceiptShare, error)
	ExportSales(ctx context.Context, tenantID uuid.UUID, filters ListFilters) ([]ExportSale, error)
	ExportShares(ctx context.Context, tenantID uuid.UUID, filters ListFilters) ([]ExportShare, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// MaxNumber returns the tenant's highest sale number.
func (r *repository) MaxNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var max int64
	if err := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(MAX(sale_number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

func (r *repository) CreateSale(ctx context.Context, sale *models.Sale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

// CreateItems inserts all items in one statement.
func (r *repository) CreateItems(ctx context.Context, items []models.SaleItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// CreateDistributions inserts all rows in one statement.
func (r *repository) CreateDistributions(ctx context.Context, rows []models.ProfitDistribution) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// DeleteSale removes the header and reports how many rows went.
func (r *repository) DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, saleID).
		Delete(&models.Sale{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteItems(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Delete(&models.SaleItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteDistributions(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Delete(&models.ProfitDistribution{})
	return res.RowsAffected, res.Error
}

func (r *repository) FindSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, saleID).
		First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

// FindSaleByPreOrder returns the newest sale of the given origin linked to the pre-order.
func (r *repository) FindSaleByPreOrder(ctx context.Context, tenantID, preOrderID uuid.UUID, origin enums.SaleOrigin) (*models.Sale, error) {
	var sale models.Sale
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND pre_order_id = ? AND origin = ?", tenantID, preOrderID, origin).
		Order("sale_number DESC").
		First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repository) FindItems(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.SaleItem, error) {
	var items []models.SaleItem
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindDistributions(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.ProfitDistribution, error) {
	var rows []models.ProfitDistribution
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sale_id = ?", tenantID, saleID).
		Order("amount_cents DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// VariantsWithItems returns which of the given units already appear on a sale.
func (r *repository) VariantsWithItems(ctx context.Context, tenantID uuid.UUID, variantIDs []uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(variantIDs) == 0 {
		return ids, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SaleItem{}).
		Where("tenant_id = ? AND variant_id IN ?", tenantID, variantIDs).
		Distinct().
		Pluck("variant_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) TransitionStatus(ctx context.Context, tenantID, saleID uuid.UUID, from, to enums.SaleStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, saleID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Sale, error) {
	query := applyFilters(r.db.WithContext(ctx).Model(&models.Sale{}), tenantID, filters)
	query, err := pagination.Apply(query, "sales", params)
	if err != nil {
		return nil, err
	}
	var rows []models.Sale
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func applyFilters(query *gorm.DB, tenantID uuid.UUID, filters ListFilters) *gorm.DB {
	query = query.Where("sales.tenant_id = ?", tenantID)
	if filters.Status != nil {
		query = query.Where("sales.status = ?", *filters.Status)
	}
	if filters.PreOrderID != nil {
		query = query.Where("sales.pre_order_id = ?", *filters.PreOrderID)
	}
	if filters.From != nil {
		query = query.Where("sales.sale_date >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("sales.sale_date < ?", *filters.To)
	}
	return query
}

// ExportSales returns every matching header with its item count, oldest first.
func (r *repository) ExportSales(ctx context.Context, tenantID uuid.UUID, filters ListFilters) ([]ExportSale, error) {
	var rows []ExportSale
	query := applyFilters(r.db.WithContext(ctx).Table("sales"), tenantID, filters)
	if err := query.
		Select(`sales.id AS sale_id, sales.sale_number, sales.sale_date, sales.status, sales.origin,
			sales.payment_method, sales.customer_name, sales.total_cents, sales.discount_cents,
			sales.net_profit_cents, sales.distributable_cents,
			(SELECT COUNT(*) FROM sale_items WHERE sale_items.sale_id = sales.id) AS item_count`).
		Order("sales.sale_number ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ExportShares returns the distribution rows of every matching sale.
func (r *repository) ExportShares(ctx context.Context, tenantID uuid.UUID, filters ListFilters) ([]ExportShare, error) {
	var rows []ExportShare
	query := applyFilters(r.db.WithContext(ctx).Table("sales"), tenantID, filters)
	if err := query.
		Select(`sales.sale_number, profit_distributions.avatar_id, avatars.name AS recipient_name,
			profit_distributions.percentage, profit_distributions.amount_cents`).
		Joins("JOIN profit_distributions ON profit_distributions.sale_id = sales.id").
		Joins("LEFT JOIN avatars ON avatars.id = profit_distributions.avatar_id").
		Order("sales.sale_number ASC").
		Order("profit_distributions.amount_cents DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ReceiptLines(ctx context.Context, tenantID, saleID uuid.UUID) ([]ReceiptLine, error) {
	var lines []ReceiptLine
	if err := r.db.WithContext(ctx).
		Table("sale_items").
		Select(`sale_items.id AS item_id, sale_items.variant_id, sale_items.sold_price_cents,
			sale_items.cost_price_cents, variants.serial_number, variants.size, variants.size_label,
			products.name AS product_name, products.sku AS product_sku`).
		Joins("LEFT JOIN variants ON variants.id = sale_items.variant_id").
		Joins("LEFT JOIN products ON products.id = variants.product_id").
		Where("sale_items.tenant_id = ? AND sale_items.sale_id = ?", tenantID, saleID).
		Order("variants.serial_number ASC").
		Scan(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) ReceiptShares(ctx context.Context, tenantID, saleID uuid.UUID) ([]ReceiptShare, error) {
	var shares []ReceiptShare
	if err := r.db.WithContext(ctx).
		Table("profit_distributions").
		Select(`profit_distributions.avatar_id, avatars.name AS recipient_name,
			profit_distributions.percentage, profit_distributions.amount_cents`).
		Joins("LEFT JOIN avatars ON avatars.id = profit_distributions.avatar_id").
		Where("profit_distributions.tenant_id = ? AND profit_distributions.sale_id = ?", tenantID, saleID).
		Order("profit_distributions.amount_cents DESC").
		Scan(&shares).Error; err != nil {
		return nil, err
	}
	return shares, nil
}
