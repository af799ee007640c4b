// Package preorders manages customer pre-orders from creation through
// fulfilment, deposit capture on cancellation, voiding and restoration.
package preorders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

var (
	openStatuses      = []enums.PreOrderStatus{enums.PreOrderStatusPending, enums.PreOrderStatusConfirmed}
	deletableStatuses = []enums.PreOrderStatus{enums.PreOrderStatusPending, enums.PreOrderStatusConfirmed, enums.PreOrderStatusVoided}
)

type Service interface {
	Create(ctx context.Context, input CreatePreOrderInput) (*models.PreOrder, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.PreOrder, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.PreOrder], error)
	Update(ctx context.Context, input UpdatePreOrderInput) (*models.PreOrder, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, to enums.PreOrderStatus) (*models.PreOrder, error)
	LinkVariant(ctx context.Context, tenantID, id, variantID uuid.UUID) (*models.PreOrder, error)
	Fulfil(ctx context.Context, input FulfilInput) (*LifecycleResult, error)
	Cancel(ctx context.Context, input CancelInput) (*LifecycleResult, error)
	Void(ctx context.Context, tenantID, id uuid.UUID) (*models.PreOrder, error)
	Restore(ctx context.Context, tenantID, id uuid.UUID) (*LifecycleResult, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// VariantStore is the slice of the variant service pre-order flows use.
type VariantStore interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Variant, error)
	GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Variant, error)
	CreateSoldUnit(ctx context.Context, input variants.SoldUnitInput) (*models.Variant, error)
	DeleteUnit(ctx context.Context, tenantID, id uuid.UUID) error
	Reinstate(ctx context.Context, variant models.Variant) error
	LinkPreOrder(ctx context.Context, tenantID, id uuid.UUID, preOrderID *uuid.UUID) error
}

// SaleRecorder runs the sale orchestrator.
type SaleRecorder interface {
	RecordSale(ctx context.Context, input sales.RecordSaleInput) (*sales.RecordSaleResult, error)
	DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (*sales.ReversalResult, error)
}

// SaleLedger is row-level access to sale records, used by restore to remove
// a deposit sale step by step. sales.Repository satisfies it.
type SaleLedger interface {
	FindSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error)
	FindSaleByPreOrder(ctx context.Context, tenantID, preOrderID uuid.UUID, origin enums.SaleOrigin) (*models.Sale, error)
	FindItems(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.SaleItem, error)
	FindDistributions(ctx context.Context, tenantID, saleID uuid.UUID) ([]models.ProfitDistribution, error)
	CreateSale(ctx context.Context, sale *models.Sale) error
	CreateItems(ctx context.Context, items []models.SaleItem) error
	CreateDistributions(ctx context.Context, rows []models.ProfitDistribution) error
	DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error)
	DeleteItems(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error)
	DeleteDistributions(ctx context.Context, tenantID, saleID uuid.UUID) (int64, error)
}

type StrategyValidator interface {
	Validate(ctx context.Context, tenantID uuid.UUID, strategy distribution.Strategy) error
}

type ProductLookup interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Product, error)
}

type ServiceParams struct {
	Repo       Repository
	Variants   VariantStore
	Sales      SaleRecorder
	Ledger     SaleLedger
	Strategies StrategyValidator
	Products   ProductLookup
	// Events is optional. Nil disables ledger events.
	Events  sales.EventEmitter
	Logger  *logger.Logger
	Metrics *metrics.SagaMetrics
}

type service struct {
	repo       Repository
	variants   VariantStore
	sales      SaleRecorder
	ledger     SaleLedger
	strategies StrategyValidator
	products   ProductLookup
	events     sales.EventEmitter
	logg       *logger.Logger
	metrics    *metrics.SagaMetrics
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("pre-order repository required")
	case p.Variants == nil:
		return nil, fmt.Errorf("variant store required")
	case p.Sales == nil:
		return nil, fmt.Errorf("sale recorder required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("sale ledger required")
	case p.Strategies == nil:
		return nil, fmt.Errorf("strategy validator required")
	case p.Products == nil:
		return nil, fmt.Errorf("product lookup required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &service{
		repo:       p.Repo,
		variants:   p.Variants,
		sales:      p.Sales,
		ledger:     p.Ledger,
		strategies: p.Strategies,
		products:   p.Products,
		events:     p.Events,
		logg:       p.Logger,
		metrics:    p.Metrics,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreatePreOrderInput) (*models.PreOrder, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if err := validateAmounts(input.TotalCents, input.DownPaymentCents); err != nil {
		return nil, err
	}
	if _, err := s.products.Get(ctx, input.TenantID, input.ProductID); err != nil {
		return nil, err
	}

	preOrder := &models.PreOrder{
		TenantID:             input.TenantID,
		CustomerName:         name,
		CustomerPhone:        input.CustomerPhone,
		CustomerID:           input.CustomerID,
		ProductID:            input.ProductID,
		Size:                 input.Size,
		TotalCents:           input.TotalCents,
		DownPaymentCents:     input.DownPaymentCents,
		DownPaymentMethod:    input.DownPaymentMethod,
		Status:               enums.PreOrderStatusPending,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		Notes:                input.Notes,
	}
	if err := s.repo.Create(ctx, preOrder); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create pre-order")
	}
	return preOrder, nil
}

func validateAmounts(total, downPayment int64) error {
	if total <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total must be positive")
	}
	if downPayment < 0 || downPayment > total {
		return pkgerrors.New(pkgerrors.CodeValidation, "down payment must be between zero and the total")
	}
	return nil
}

func (s *service) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.PreOrder, error) {
	preOrder, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "pre-order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pre-order")
	}
	return preOrder, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.PreOrder], error) {
	filters.Customer = strings.ToLower(strings.TrimSpace(filters.Customer))
	rows, err := s.repo.List(ctx, tenantID, filters, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return pagination.Page[models.PreOrder]{}, err
		}
		return pagination.Page[models.PreOrder]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pre-orders")
	}
	return pagination.NewPage(rows, params.Limit, func(p models.PreOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// Update edits descriptive fields of an open pre-order.
func (s *service) Update(ctx context.Context, input UpdatePreOrderInput) (*models.PreOrder, error) {
	current, err := s.Get(ctx, input.TenantID, input.PreOrderID)
	if err != nil {
		return nil, err
	}
	if !current.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidOperation, fmt.Sprintf("a %s pre-order cannot be edited", current.Status))
	}

	total, down := current.TotalCents, current.DownPaymentCents
	fields := map[string]any{}
	if input.CustomerName != nil {
		name := strings.TrimSpace(*input.CustomerName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
		}
		fields["customer_name"] = name
	}
	if input.CustomerPhone != nil {
		fields["customer_phone"] = *input.CustomerPhone
	}
	if input.Size != nil {
		fields["size"] = *input.Size
	}
	if input.TotalCents != nil {
		total = *input.TotalCents
		fields["total_cents"] = total
	}
	if input.DownPaymentCents != nil {
		down = *input.DownPaymentCents
		fields["down_payment_cents"] = down
	}
	if input.DownPaymentMethod != nil {
		fields["down_payment_method"] = *input.DownPaymentMethod
	}
	if input.ExpectedDeliveryDate != nil {
		fields["expected_delivery_date"] = input.ExpectedDeliveryDate.UTC()
	}
	if input.Notes != nil {
		fields["notes"] = *input.Notes
	}
	if err := validateAmounts(total, down); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return current, nil
	}

	ok, err := s.repo.UpdateFields(ctx, input.TenantID, input.PreOrderID, openStatuses, fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update pre-order")
	}
	if !ok {
		return nil, s.stateConflict(ctx, input.TenantID, input.PreOrderID, "edit")
	}
	return s.Get(ctx, input.TenantID, input.PreOrderID)
}

// UpdateStatus moves between pending and confirmed. Terminal states have
// their own operations.
func (s *service) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, to enums.PreOrderStatus) (*models.PreOrder, error) {
	if to != enums.PreOrderStatusPending && to != enums.PreOrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidOperation, fmt.Sprintf("use the %s operation to move a pre-order to %s", operationFor(to), to))
	}
	from := enums.PreOrderStatusPending
	if to == enums.PreOrderStatusPending {
		from = enums.PreOrderStatusConfirmed
	}
	if err := s.transition(ctx, tenantID, id, []enums.PreOrderStatus{from}, to, nil); err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID, id)
}

func operationFor(status enums.PreOrderStatus) string {
	switch status {
	case enums.PreOrderStatusCompleted:
		return "fulfil"
	case enums.PreOrderStatusCanceled:
		return "cancel"
	case enums.PreOrderStatusVoided:
		return "void"
	default:
		return "restore"
	}
}

// LinkVariant reserves a specific unit in stock for the pre-order. Fulfil
// sells the linked unit instead of allocating one.
func (s *service) LinkVariant(ctx context.Context, tenantID, id, variantID uuid.UUID) (*models.PreOrder, error) {
	preOrder, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !preOrder.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidOperation, fmt.Sprintf("a %s pre-order cannot take a unit", preOrder.Status))
	}
	unit, err := s.variants.Get(ctx, tenantID, variantID)
	if err != nil {
		return nil, err
	}
	if unit.Status != enums.VariantStatusAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("unit %d is %s", unit.SerialNumber, unit.Status))
	}
	if unit.PreOrderID != nil && *unit.PreOrderID != id {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "unit is linked to another pre-order")
	}
	if unit.ProductID != preOrder.ProductID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit belongs to a different product")
	}

	if err := s.variants.LinkPreOrder(ctx, tenantID, variantID, &id); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateFields(ctx, tenantID, id, openStatuses, map[string]any{"variant_id": variantID})
	if err != nil || !ok {
		if unlinkErr := s.variants.LinkPreOrder(ctx, tenantID, variantID, nil); unlinkErr != nil {
			s.logg.Error(ctx, "failed to unlink unit after pre-order update failed", unlinkErr)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link unit")
		}
		return nil, s.stateConflict(ctx, tenantID, id, "link")
	}
	if preOrder.VariantID != nil && *preOrder.VariantID != variantID {
		if err := s.variants.LinkPreOrder(ctx, tenantID, *preOrder.VariantID, nil); err != nil {
			s.logg.Warn(s.logg.WithTenantID(ctx, tenantID.String()), "previous unit kept its pre-order link")
		}
	}
	return s.Get(ctx, tenantID, id)
}

// Void is a pure status change: no sale and no unit.
func (s *service) Void(ctx context.Context, tenantID, id uuid.UUID) (*models.PreOrder, error) {
	fields := map[string]any{"voided_at": time.Now().UTC()}
	if err := s.transition(ctx, tenantID, id, openStatuses, enums.PreOrderStatusVoided, fields); err != nil {
		return nil, err
	}
	s.emit(ctx, tenantID, enums.EventPreOrderVoided, payloads.PreOrderTransitionedEvent{
		PreOrderID: id,
		Status:     enums.PreOrderStatusVoided,
	})
	return s.Get(ctx, tenantID, id)
}

// Delete removes pending, confirmed or voided pre-orders. Completed and
// canceled ones carry sales and must be restored first.
func (s *service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	preOrder, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !preOrder.Status.IsDeletable() {
		return pkgerrors.New(pkgerrors.CodeInvalidOperation, fmt.Sprintf("a %s pre-order cannot be deleted", preOrder.Status)).
			WithDetails(map[string]any{"status": preOrder.Status})
	}
	ok, err := s.repo.Delete(ctx, tenantID, id, deletableStatuses)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete pre-order")
	}
	if !ok {
		return s.stateConflict(ctx, tenantID, id, "delete")
	}
	if preOrder.VariantID != nil {
		if err := s.variants.LinkPreOrder(ctx, tenantID, *preOrder.VariantID, nil); err != nil {
			s.logg.Warn(s.logg.WithTenantID(ctx, tenantID.String()), "deleted pre-order left a unit link behind")
		}
	}
	return nil
}

func (s *service) transition(ctx context.Context, tenantID, id uuid.UUID, from []enums.PreOrderStatus, to enums.PreOrderStatus, fields map[string]any) error {
	ok, err := s.repo.Transition(ctx, tenantID, id, from, to, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update pre-order status")
	}
	if ok {
		return nil
	}
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("pre-order cannot move from %s to %s", current.Status, to)).
		WithDetails(map[string]any{"from": current.Status, "to": to})
}

// stateConflict explains a conditional write that matched no row.
func (s *service) stateConflict(ctx context.Context, tenantID, id uuid.UUID, op string) error {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInvalidOperation, fmt.Sprintf("cannot %s a %s pre-order", op, current.Status))
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
