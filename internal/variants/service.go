package variants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/quota"
	"github.com/angelmondragon/stockledger-backend/internal/sequence"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

// Service owns every write to a unit's status.
type Service interface {
	Create(ctx context.Context, input CreateVariantInput) (*models.Variant, error)
	CreateSoldUnit(ctx context.Context, input SoldUnitInput) (*models.Variant, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Variant, error)
	GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Variant, error)
	FindBySerial(ctx context.Context, tenantID uuid.UUID, serial int64) (*models.Variant, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Variant], error)
	UpdateDetails(ctx context.Context, input UpdateVariantInput) (*models.Variant, error)
	Archive(ctx context.Context, tenantID, id uuid.UUID) error
	Unarchive(ctx context.Context, tenantID, id uuid.UUID) error
	MarkSold(ctx context.Context, tenantID, id uuid.UUID) error
	Release(ctx context.Context, tenantID, id uuid.UUID) error
	LinkPreOrder(ctx context.Context, tenantID, id uuid.UUID, preOrderID *uuid.UUID) error
	DeleteUnit(ctx context.Context, tenantID, id uuid.UUID) error
	Reinstate(ctx context.Context, variant models.Variant) error
}

type service struct {
	repo      Repository
	allocator *sequence.Allocator
	quota     quota.Checker
	ceiling   int64
}

// NewService wires the variant state machine. The allocator must read from
// the same repository.
func NewService(repo Repository, allocator *sequence.Allocator, checker quota.Checker, serialCeiling int64) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("variant repository required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("serial allocator required")
	}
	if checker == nil {
		return nil, fmt.Errorf("quota checker required")
	}
	if serialCeiling <= 0 {
		serialCeiling = sequence.SerialCeiling
	}
	return &service{repo: repo, allocator: allocator, quota: checker, ceiling: serialCeiling}, nil
}

// Create adds a regular unit after the quota check, allocating a serial
// unless one was supplied.
func (s *service) Create(ctx context.Context, input CreateVariantInput) (*models.Variant, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.CostPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost price must not be negative")
	}
	status := input.Status
	if status == "" {
		status = enums.VariantStatusAvailable
	}
	if status == enums.VariantStatusSold {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "units cannot be created sold; record a sale instead")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", status))
	}
	condition := input.Condition
	if condition == "" {
		condition = enums.UnitConditionNew
	}
	if !condition.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid condition %q", condition))
	}
	ownership := input.Ownership
	if ownership == "" {
		ownership = enums.OwnershipStore
	}
	if !ownership.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ownership %q", ownership))
	}
	if ownership == enums.OwnershipConsignor && input.ConsignorID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consigned units require a consignor")
	}

	if status != enums.VariantStatusArchived {
		if err := s.checkQuota(ctx, input.TenantID); err != nil {
			return nil, err
		}
	}

	dateAdded := time.Now().UTC()
	if input.DateAdded != nil {
		dateAdded = input.DateAdded.UTC()
	}
	variant := &models.Variant{
		TenantID:       input.TenantID,
		ProductID:      input.ProductID,
		SKU:            input.SKU,
		Size:           input.Size,
		SizeLabel:      input.SizeLabel,
		Location:       input.Location,
		Condition:      condition,
		Status:         status,
		CostPriceCents: input.CostPriceCents,
		Ownership:      ownership,
		ConsignorID:    input.ConsignorID,
		PayoutMethod:   input.PayoutMethod,
		UnitOrigin:     enums.UnitOriginRegular,
		Notes:          input.Notes,
		DateAdded:      dateAdded,
	}

	if input.SerialNumber != nil {
		if err := s.insertWithSerial(ctx, variant, *input.SerialNumber); err != nil {
			return nil, err
		}
		return variant, nil
	}
	if err := s.insertAllocated(ctx, variant); err != nil {
		return nil, err
	}
	return variant, nil
}

// CreateSoldUnit allocates a unit that is born sold for a pre-order flow.
// Deposit placeholders never occupy plan capacity and skip the quota check.
func (s *service) CreateSoldUnit(ctx context.Context, input SoldUnitInput) (*models.Variant, error) {
	if input.TenantID == uuid.Nil || input.ProductID == uuid.Nil || input.PreOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, product and pre-order ids are required")
	}
	if input.Origin != enums.UnitOriginPreorderFulfilled && input.Origin != enums.UnitOriginPreorderDeposit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unit origin %q cannot be created sold", input.Origin))
	}
	if input.Origin == enums.UnitOriginPreorderFulfilled {
		if err := s.checkQuota(ctx, input.TenantID); err != nil {
			return nil, err
		}
	}

	preOrderID := input.PreOrderID
	variant := &models.Variant{
		TenantID:       input.TenantID,
		ProductID:      input.ProductID,
		Size:           input.Size,
		Condition:      enums.UnitConditionNew,
		Status:         enums.VariantStatusSold,
		CostPriceCents: input.CostPriceCents,
		Ownership:      enums.OwnershipStore,
		UnitOrigin:     input.Origin,
		PreOrderID:     &preOrderID,
		Notes:          input.Notes,
		DateAdded:      time.Now().UTC(),
	}
	if err := s.insertAllocated(ctx, variant); err != nil {
		return nil, err
	}
	return variant, nil
}

func (s *service) checkQuota(ctx context.Context, tenantID uuid.UUID) error {
	decision, err := s.quota.Check(ctx, tenantID, 1)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "quota check failed")
	}
	if !decision.Allowed {
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "unit limit reached for current plan").
			WithDetails(map[string]any{"remaining": decision.Remaining})
	}
	return nil
}

func (s *service) insertAllocated(ctx context.Context, variant *models.Variant) error {
	_, err := s.allocator.Allocate(ctx, variant.TenantID, func(ctx context.Context, n int64) error {
		variant.SerialNumber = n
		return s.repo.Create(ctx, variant)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create variant")
	}
	return nil
}

func (s *service) insertWithSerial(ctx context.Context, variant *models.Variant, serial int64) error {
	if serial < 1 || serial > s.ceiling {
		return pkgerrors.New(pkgerrors.CodeRangeExceeded, fmt.Sprintf("serial number must be between 1 and %d", s.ceiling))
	}
	variant.SerialNumber = serial
	if err := s.repo.Create(ctx, variant); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("serial number %d already in use", serial))
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create variant")
	}
	return nil
}

func (s *service) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Variant, error) {
	variant, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, mapLookupError(err, "variant")
	}
	return variant, nil
}

func (s *service) GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Variant, error) {
	rows, err := s.repo.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variants")
	}
	return rows, nil
}

func (s *service) FindBySerial(ctx context.Context, tenantID uuid.UUID, serial int64) (*models.Variant, error) {
	variant, err := s.repo.FindBySerial(ctx, tenantID, serial)
	if err != nil {
		return nil, mapLookupError(err, "variant")
	}
	return variant, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Variant], error) {
	rows, err := s.repo.List(ctx, tenantID, filters, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return pagination.Page[models.Variant]{}, err
		}
		return pagination.Page[models.Variant]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list variants")
	}
	return pagination.NewPage(rows, params.Limit, func(v models.Variant) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	}), nil
}

// UpdateDetails edits descriptive fields. Input is validated before anything
// is written. A requested status change goes through the transition table;
// sold units refuse it outright.
func (s *service) UpdateDetails(ctx context.Context, input UpdateVariantInput) (*models.Variant, error) {
	if input.Condition != nil && !input.Condition.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid condition %q", *input.Condition))
	}
	if input.CostPriceCents != nil && *input.CostPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost price must not be negative")
	}
	current, err := s.Get(ctx, input.TenantID, input.VariantID)
	if err != nil {
		return nil, err
	}

	if input.Status != nil && *input.Status != current.Status {
		if current.Status == enums.VariantStatusSold {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "status of a sold unit changes only through its sale").
				WithDetails(map[string]any{"from": current.Status, "to": *input.Status})
		}
		if *input.Status == enums.VariantStatusSold {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "units become sold only by recording a sale").
				WithDetails(map[string]any{"from": current.Status, "to": *input.Status})
		}
		if err := s.transition(ctx, input.TenantID, input.VariantID, current.Status, *input.Status); err != nil {
			return nil, err
		}
	}

	fields := map[string]any{}
	if input.SKU != nil {
		fields["sku"] = *input.SKU
	}
	if input.Size != nil {
		fields["size"] = *input.Size
	}
	if input.SizeLabel != nil {
		fields["size_label"] = *input.SizeLabel
	}
	if input.Location != nil {
		fields["location"] = *input.Location
	}
	if input.Condition != nil {
		fields["condition"] = *input.Condition
	}
	if input.CostPriceCents != nil {
		fields["cost_price_cents"] = *input.CostPriceCents
	}
	if input.PayoutMethod != nil {
		fields["payout_method"] = *input.PayoutMethod
	}
	if input.Notes != nil {
		fields["notes"] = *input.Notes
	}
	if err := s.repo.UpdateFields(ctx, input.TenantID, input.VariantID, fields); err != nil {
		return nil, mapLookupError(err, "variant")
	}
	return s.Get(ctx, input.TenantID, input.VariantID)
}

func (s *service) Archive(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, enums.VariantStatusAvailable, enums.VariantStatusArchived)
}

func (s *service) Unarchive(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.checkQuota(ctx, tenantID); err != nil {
		return err
	}
	return s.transition(ctx, tenantID, id, enums.VariantStatusArchived, enums.VariantStatusAvailable)
}

// MarkSold is reserved for the sale orchestrator.
func (s *service) MarkSold(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, enums.VariantStatusAvailable, enums.VariantStatusSold)
}

// Release returns a sold unit to stock when its sale is reversed.
func (s *service) Release(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, enums.VariantStatusSold, enums.VariantStatusAvailable)
}

func (s *service) LinkPreOrder(ctx context.Context, tenantID, id uuid.UUID, preOrderID *uuid.UUID) error {
	if err := s.repo.UpdateFields(ctx, tenantID, id, map[string]any{"pre_order_id": preOrderID}); err != nil {
		return mapLookupError(err, "variant")
	}
	return nil
}

// DeleteUnit hard-deletes units created by pre-order flows. Regular stock is
// archived, never deleted.
func (s *service) DeleteUnit(ctx context.Context, tenantID, id uuid.UUID) error {
	variant, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if variant.UnitOrigin == enums.UnitOriginRegular {
		return pkgerrors.New(pkgerrors.CodeInvalidOperation, "regular units are archived, not deleted")
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete variant")
	}
	return nil
}

// Reinstate re-inserts a unit removed by a flow that is being compensated,
// keeping its id and serial.
func (s *service) Reinstate(ctx context.Context, variant models.Variant) error {
	if err := s.repo.Create(ctx, &variant); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reinstate variant")
	}
	return nil
}

func (s *service) transition(ctx context.Context, tenantID, id uuid.UUID, from, to enums.VariantStatus) error {
	if !from.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("variant cannot move from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	ok, err := s.repo.TransitionStatus(ctx, tenantID, id, from, to)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update variant status")
	}
	if ok {
		return nil
	}
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("variant is %s, expected %s", current.Status, from)).
		WithDetails(map[string]any{"variant_id": id, "from": current.Status, "to": to})
}

func mapLookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, entity+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+entity)
}
