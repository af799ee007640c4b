// Package sales records and reverses sales. Recording is a four step saga
// (header, items, unit status, distribution rows) with compensations for the
// fatal steps.
package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/internal/sequence"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
	"github.com/angelmondragon/stockledger-backend/pkg/saga"
)

const (
	sagaRecordSale  = "record_sale"
	sagaReverseSale = "reverse_sale"

	stepInsertSale          = "insert_sale"
	stepInsertItems         = "insert_items"
	stepMarkSold            = "mark_sold"
	stepInsertDistributions = "insert_distributions"
	stepDeleteDistributions = "delete_distributions"
	stepDeleteItems         = "delete_items"
	stepDeleteSale          = "delete_sale"
	stepReleaseUnit         = "release_unit"
	stepReopenPreOrder      = "reopen_pre_order"
)

type Service interface {
	RecordSale(ctx context.Context, input RecordSaleInput) (*RecordSaleResult, error)
	DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (*ReversalResult, error)
	SettleSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error)
	GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error)
	FindByPreOrder(ctx context.Context, tenantID, preOrderID uuid.UUID, origin enums.SaleOrigin) (*models.Sale, error)
	GetReceipt(ctx context.Context, tenantID, saleID uuid.UUID) (*Receipt, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Sale], error)
}

// VariantStore is the slice of the variant service the orchestrator drives.
type VariantStore interface {
	GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Variant, error)
	MarkSold(ctx context.Context, tenantID, id uuid.UUID) error
	Release(ctx context.Context, tenantID, id uuid.UUID) error
	DeleteUnit(ctx context.Context, tenantID, id uuid.UUID) error
}

type Distributor interface {
	Allocate(ctx context.Context, tenantID uuid.UUID, amountCents int64, strategy distribution.Strategy) ([]distribution.Share, error)
}

// PreOrderReopener returns a pre-order to pending once the sale that closed
// it is reversed. It must be a no-op when the pre-order no longer points at
// saleID.
type PreOrderReopener interface {
	ReopenFromSale(ctx context.Context, tenantID, preOrderID, saleID uuid.UUID) error
}

// EventEmitter queues ledger events once a saga has committed.
type EventEmitter interface {
	Emit(ctx context.Context, event outbox.DomainEvent) error
}

// Options tune compensation behaviour.
type Options struct {
	// RevertVariantsOnDistributionFailure releases units marked sold when the
	// distribution insert fails. Off by default: the units stay sold.
	RevertVariantsOnDistributionFailure bool
}

type ServiceParams struct {
	Repo        Repository
	Variants    VariantStore
	Distributor Distributor
	// Numbers allocates sale numbers and must read from Repo.
	Numbers   *sequence.Allocator
	PreOrders PreOrderReopener
	// Events is optional. Nil disables ledger events.
	Events  EventEmitter
	Options Options
	Logger  *logger.Logger
	Metrics *metrics.SagaMetrics
}

type service struct {
	repo        Repository
	variants    VariantStore
	distributor Distributor
	numbers     *sequence.Allocator
	preOrders   PreOrderReopener
	events      EventEmitter
	opts        Options
	logg        *logger.Logger
	metrics     *metrics.SagaMetrics
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if p.Variants == nil {
		return nil, fmt.Errorf("variant store required")
	}
	if p.Distributor == nil {
		return nil, fmt.Errorf("distributor required")
	}
	if p.Numbers == nil {
		return nil, fmt.Errorf("sale number allocator required")
	}
	if p.PreOrders == nil {
		return nil, fmt.Errorf("pre-order reopener required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &service{
		repo:        p.Repo,
		variants:    p.Variants,
		distributor: p.Distributor,
		numbers:     p.Numbers,
		preOrders:   p.PreOrders,
		events:      p.Events,
		opts:        p.Options,
		logg:        p.Logger,
		metrics:     p.Metrics,
	}, nil
}

// plan is a validated sale ready to be written.
type plan struct {
	sale   *models.Sale
	items  []models.SaleItem
	toMark []models.Variant
	shares []distribution.Share
}

// RecordSale validates the request, computes the distribution up front and
// then runs the write saga. Validation failures never write anything.
func (s *service) RecordSale(ctx context.Context, input RecordSaleInput) (*RecordSaleResult, error) {
	p, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTenantID(ctx, input.TenantID.String())
	ctx = s.logg.WithOperation(ctx, sagaRecordSale)

	sale := p.sale
	run := saga.New(sagaRecordSale, s.logg, s.metrics)

	run.Add(saga.Step{
		Name: stepInsertSale,
		Do: func(ctx context.Context) error {
			_, err := s.numbers.Allocate(ctx, sale.TenantID, func(ctx context.Context, n int64) error {
				sale.SaleNumber = n
				return s.repo.CreateSale(ctx, sale)
			})
			return err
		},
		Undo: func(ctx context.Context) error {
			_, err := s.repo.DeleteSale(ctx, sale.TenantID, sale.ID)
			return err
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "sales", IDs: []uuid.UUID{sale.ID}}
		},
	})

	run.Add(saga.Step{
		Name: stepInsertItems,
		Do: func(ctx context.Context) error {
			for i := range p.items {
				p.items[i].SaleID = sale.ID
			}
			return s.repo.CreateItems(ctx, p.items)
		},
		Undo: func(ctx context.Context) error {
			_, err := s.repo.DeleteItems(ctx, sale.TenantID, sale.ID)
			return err
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "sale_items", IDs: itemIDs(p.items)}
		},
	})

	for _, variant := range p.toMark {
		variantID := variant.ID
		step := saga.Step{
			Name:     fmt.Sprintf("%s:%d", stepMarkSold, variant.SerialNumber),
			Tolerant: true,
			Do: func(ctx context.Context) error {
				return s.variants.MarkSold(ctx, sale.TenantID, variantID)
			},
			Rows: func() saga.Rows {
				return saga.Rows{Table: "variants", IDs: []uuid.UUID{variantID}}
			},
		}
		if s.opts.RevertVariantsOnDistributionFailure {
			step.Undo = func(ctx context.Context) error {
				return s.variants.Release(ctx, sale.TenantID, variantID)
			}
		}
		run.Add(step)
	}

	run.Add(saga.Step{
		Name: stepInsertDistributions,
		Do: func(ctx context.Context) error {
			return s.repo.CreateDistributions(ctx, distributionRows(sale, p.shares))
		},
	})

	result, err := run.Run(ctx)
	if err != nil {
		return nil, recordingFailed("sale recording failed", err)
	}
	s.emit(ctx, saleRecordedEvent(sale, p, result.WarningMessages()))
	return &RecordSaleResult{
		SaleID:     sale.ID,
		SaleNumber: sale.SaleNumber,
		Warnings:   result.WarningMessages(),
	}, nil
}

func (s *service) prepare(ctx context.Context, input RecordSaleInput) (*plan, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a sale needs at least one item")
	}
	if input.PaymentMethod == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	if input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}
	status := input.Status
	if status == "" {
		status = enums.SaleStatusCompleted
	}
	if status != enums.SaleStatusCompleted && status != enums.SaleStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a sale cannot be recorded as %s", status))
	}
	origin := input.Origin
	if origin == "" {
		origin = enums.SaleOriginDirect
	}
	if !origin.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown sale origin %q", origin))
	}
	if origin != enums.SaleOriginDirect && (input.PreOrderID == nil || *input.PreOrderID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pre-order sales must reference their pre-order")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	var gross int64
	for _, item := range input.Items {
		if item.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item variant id is required")
		}
		if _, dup := seen[item.VariantID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "a unit can appear on a sale only once").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		if item.SoldPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sold price must not be negative")
		}
		seen[item.VariantID] = struct{}{}
		ids = append(ids, item.VariantID)
		gross += item.SoldPriceCents
	}
	if input.DiscountCents > gross {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds sale subtotal")
	}

	units, err := s.loadUnits(ctx, input, ids)
	if err != nil {
		return nil, err
	}

	total := gross - input.DiscountCents
	var cost int64
	items := make([]models.SaleItem, 0, len(input.Items))
	var toMark []models.Variant
	for _, item := range input.Items {
		unit := units[item.VariantID]
		itemCost := unit.CostPriceCents
		if item.CostPriceCents != nil {
			itemCost = *item.CostPriceCents
		}
		cost += itemCost
		items = append(items, models.SaleItem{
			TenantID:       input.TenantID,
			VariantID:      unit.ID,
			SoldPriceCents: item.SoldPriceCents,
			CostPriceCents: itemCost,
			Quantity:       1,
		})
		if unit.Status == enums.VariantStatusAvailable {
			toMark = append(toMark, unit)
		}
	}

	netProfit := total - cost
	if input.NetProfitCents != nil {
		netProfit = *input.NetProfitCents
	}
	distributable := total
	if input.DistributableCents != nil {
		distributable = *input.DistributableCents
	}
	if distributable < 0 || distributable > total {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distributable amount must be between zero and the sale total")
	}

	shares, err := s.distributor.Allocate(ctx, input.TenantID, distributable, input.Distribution)
	if err != nil {
		return nil, err
	}

	saleDate := time.Now().UTC()
	if input.SaleDate != nil {
		saleDate = input.SaleDate.UTC()
	}
	sale := &models.Sale{
		TenantID:           input.TenantID,
		SaleDate:           saleDate,
		TotalCents:         total,
		DiscountCents:      input.DiscountCents,
		NetProfitCents:     netProfit,
		DistributableCents: distributable,
		CustomerName:       input.Customer.Name,
		CustomerPhone:      input.Customer.Phone,
		CustomerID:         input.Customer.ID,
		Status:             status,
		PaymentMethod:      input.PaymentMethod,
		Origin:             origin,
		PreOrderID:         input.PreOrderID,
		Notes:              input.Notes,
	}
	return &plan{sale: sale, items: items, toMark: toMark, shares: shares}, nil
}

// loadUnits resolves every item and checks it can be sold. Units created sold
// by a pre-order flow are accepted for that pre-order's own sale, once.
func (s *service) loadUnits(ctx context.Context, input RecordSaleInput, ids []uuid.UUID) (map[uuid.UUID]models.Variant, error) {
	rows, err := s.variants.GetMany(ctx, input.TenantID, ids)
	if err != nil {
		return nil, err
	}
	units := make(map[uuid.UUID]models.Variant, len(rows))
	for _, row := range rows {
		units[row.ID] = row
	}

	var presold []uuid.UUID
	for _, id := range ids {
		unit, ok := units[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithDetails(map[string]any{"variant_id": id})
		}
		switch {
		case unit.Status == enums.VariantStatusAvailable:
		case unit.Status == enums.VariantStatusSold && belongsTo(unit, input.PreOrderID):
			presold = append(presold, id)
		default:
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("unit %d is %s and cannot be sold", unit.SerialNumber, unit.Status)).
				WithDetails(map[string]any{"variant_id": id, "serial_number": unit.SerialNumber, "status": unit.Status})
		}
	}

	if len(presold) > 0 {
		used, err := s.repo.VariantsWithItems(ctx, input.TenantID, presold)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check unit sales")
		}
		if len(used) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "unit already belongs to a sale").
				WithDetails(map[string]any{"variant_ids": used})
		}
	}
	return units, nil
}

func belongsTo(unit models.Variant, preOrderID *uuid.UUID) bool {
	if unit.UnitOrigin == enums.UnitOriginRegular || unit.PreOrderID == nil || preOrderID == nil {
		return false
	}
	return *unit.PreOrderID == *preOrderID
}

func distributionRows(sale *models.Sale, shares []distribution.Share) []models.ProfitDistribution {
	rows := make([]models.ProfitDistribution, 0, len(shares))
	for _, share := range shares {
		rows = append(rows, models.ProfitDistribution{
			TenantID:    sale.TenantID,
			SaleID:      sale.ID,
			AvatarID:    share.AvatarID,
			Percentage:  share.Percentage,
			AmountCents: share.AmountCents,
		})
	}
	return rows
}

// recordingFailed converts a saga failure into the API error, carrying the
// compensation outcome and any orphaned rows.
func recordingFailed(msg string, err error) error {
	stepErr, ok := saga.AsStepError(err)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeSaleRecordingFailed, err, msg)
	}
	details := stepErr.Details()
	if code := pkgerrors.CodeOf(stepErr.Cause); code != "" {
		details["cause_code"] = code
	}
	return pkgerrors.Wrap(pkgerrors.CodeSaleRecordingFailed, err, msg).WithDetails(details)
}

func (s *service) SettleSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error) {
	ok, err := s.repo.TransitionStatus(ctx, tenantID, saleID, enums.SaleStatusPending, enums.SaleStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle sale")
	}
	sale, err := s.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("sale is %s, expected pending", sale.Status))
	}
	s.emit(ctx, outbox.DomainEvent{
		TenantID:      tenantID,
		EventType:     enums.EventSaleSettled,
		AggregateType: enums.AggregateSale,
		AggregateID:   sale.ID,
		Data:          payloads.SaleSettledEvent{SaleID: sale.ID, SaleNumber: sale.SaleNumber},
	})
	return sale, nil
}

func (s *service) GetSale(ctx context.Context, tenantID, saleID uuid.UUID) (*models.Sale, error) {
	sale, err := s.repo.FindSale(ctx, tenantID, saleID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return sale, nil
}

func (s *service) FindByPreOrder(ctx context.Context, tenantID, preOrderID uuid.UUID, origin enums.SaleOrigin) (*models.Sale, error) {
	sale, err := s.repo.FindSaleByPreOrder(ctx, tenantID, preOrderID, origin)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return sale, nil
}

func (s *service) GetReceipt(ctx context.Context, tenantID, saleID uuid.UUID) (*Receipt, error) {
	sale, err := s.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ReceiptLines(ctx, tenantID, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt lines")
	}
	shares, err := s.repo.ReceiptShares(ctx, tenantID, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt shares")
	}
	return &Receipt{Sale: *sale, Lines: lines, Shares: shares}, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Sale], error) {
	rows, err := s.repo.List(ctx, tenantID, filters, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return pagination.Page[models.Sale]{}, err
		}
		return pagination.Page[models.Sale]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sales")
	}
	return pagination.NewPage(rows, params.Limit, func(sale models.Sale) pagination.Cursor {
		return pagination.Cursor{CreatedAt: sale.CreatedAt, ID: sale.ID}
	}), nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "sale not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sale")
}
