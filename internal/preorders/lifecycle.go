package preorders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/saga"
)

const (
	sagaFulfil  = "fulfil_pre_order"
	sagaCancel  = "cancel_pre_order"
	sagaRestore = "restore_pre_order"
)

// Fulfil sells the pre-order's unit for the full total and completes it. A
// unit is allocated when none is linked.
func (s *service) Fulfil(ctx context.Context, input FulfilInput) (*LifecycleResult, error) {
	preOrder, err := s.Get(ctx, input.TenantID, input.PreOrderID)
	if err != nil {
		return nil, err
	}
	if !preOrder.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("a %s pre-order cannot be fulfilled", preOrder.Status))
	}
	if input.PaymentMethod == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	if err := s.strategies.Validate(ctx, input.TenantID, input.Distribution); err != nil {
		return nil, err
	}

	var linked *models.Variant
	if preOrder.VariantID != nil {
		if linked, err = s.variants.Get(ctx, input.TenantID, *preOrder.VariantID); err != nil {
			return nil, err
		}
	}

	ctx = s.logg.WithTenantID(ctx, input.TenantID.String())
	ctx = s.logg.WithOperation(ctx, sagaFulfil)

	var (
		unitID  uuid.UUID
		saleRes *sales.RecordSaleResult
	)
	deliveredAt := time.Now().UTC()
	if input.DeliveredAt != nil {
		deliveredAt = input.DeliveredAt.UTC()
	}

	run := saga.New(sagaFulfil, s.logg, s.metrics)
	if linked != nil {
		unitID = linked.ID
	} else {
		run.Add(saga.Step{
			Name: "allocate_unit",
			Do: func(ctx context.Context) error {
				unit, err := s.variants.CreateSoldUnit(ctx, variants.SoldUnitInput{
					TenantID:       input.TenantID,
					ProductID:      preOrder.ProductID,
					PreOrderID:     preOrder.ID,
					Origin:         enums.UnitOriginPreorderFulfilled,
					Size:           preOrder.Size,
					CostPriceCents: input.CostPriceCents,
				})
				if err != nil {
					return err
				}
				unitID = unit.ID
				return nil
			},
			Undo: func(ctx context.Context) error {
				return s.removeUnit(ctx, input.TenantID, unitID)
			},
			Rows: func() saga.Rows {
				return saga.Rows{Table: "variants", IDs: []uuid.UUID{unitID}}
			},
		})
	}
	run.Add(saga.Step{
		Name: "record_sale",
		Do: func(ctx context.Context) error {
			res, err := s.sales.RecordSale(ctx, sales.RecordSaleInput{
				TenantID:      input.TenantID,
				Items:         []sales.ItemInput{{VariantID: unitID, SoldPriceCents: preOrder.TotalCents}},
				PaymentMethod: input.PaymentMethod,
				Customer:      customerOf(preOrder),
				SaleDate:      &deliveredAt,
				Distribution:  input.Distribution,
				Notes:         input.Notes,
				PreOrderID:    &preOrder.ID,
				Origin:        enums.SaleOriginPreorderFulfilment,
			})
			if err != nil {
				return err
			}
			saleRes = res
			return nil
		},
		Undo: func(ctx context.Context) error {
			_, err := s.sales.DeleteSale(ctx, input.TenantID, saleRes.SaleID)
			return err
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "sales", IDs: []uuid.UUID{saleRes.SaleID}}
		},
	})
	run.Add(saga.Step{
		Name: "complete_pre_order",
		Do: func(ctx context.Context) error {
			return s.transition(ctx, input.TenantID, preOrder.ID, openStatuses, enums.PreOrderStatusCompleted, map[string]any{
				"sale_id":              saleRes.SaleID,
				"variant_id":           unitID,
				"completed_at":         time.Now().UTC(),
				"actual_delivery_date": deliveredAt,
			})
		},
	})

	result, err := run.Run(ctx)
	if err != nil {
		return nil, lifecycleFailed(pkgerrors.CodeSaleRecordingFailed, "pre-order fulfilment failed", err)
	}
	return s.emitted(ctx, input.TenantID, enums.EventPreOrderFulfilled, &LifecycleResult{
		PreOrderID: preOrder.ID,
		Status:     enums.PreOrderStatusCompleted.String(),
		SaleID:     &saleRes.SaleID,
		VariantID:  &unitID,
		Warnings:   append(saleRes.Warnings, result.WarningMessages()...),
	})
}

// Cancel captures the down payment: a deposit unit is created sold and a sale
// for the down payment alone is recorded and distributed.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*LifecycleResult, error) {
	preOrder, err := s.Get(ctx, input.TenantID, input.PreOrderID)
	if err != nil {
		return nil, err
	}
	if !preOrder.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("a %s pre-order cannot be canceled", preOrder.Status))
	}
	method := input.PaymentMethod
	if method == "" && preOrder.DownPaymentMethod != nil {
		method = *preOrder.DownPaymentMethod
	}
	if method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required to capture the down payment")
	}
	if err := s.strategies.Validate(ctx, input.TenantID, input.Distribution); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDistributionInvalid) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).WithDetails(pkgerrors.As(err).Details())
		}
		return nil, err
	}

	canceledAt := time.Now().UTC()
	if preOrder.DownPaymentCents == 0 {
		if err := s.transition(ctx, input.TenantID, preOrder.ID, openStatuses, enums.PreOrderStatusCanceled, map[string]any{"canceled_at": canceledAt}); err != nil {
			return nil, err
		}
		return s.emitted(ctx, input.TenantID, enums.EventPreOrderCancelled, &LifecycleResult{PreOrderID: preOrder.ID, Status: enums.PreOrderStatusCanceled.String()})
	}

	ctx = s.logg.WithTenantID(ctx, input.TenantID.String())
	ctx = s.logg.WithOperation(ctx, sagaCancel)

	var (
		unitID  uuid.UUID
		saleRes *sales.RecordSaleResult
	)
	down := preOrder.DownPaymentCents
	zero := int64(0)

	run := saga.New(sagaCancel, s.logg, s.metrics)
	run.Add(saga.Step{
		Name: "create_deposit_unit",
		Do: func(ctx context.Context) error {
			unit, err := s.variants.CreateSoldUnit(ctx, variants.SoldUnitInput{
				TenantID:   input.TenantID,
				ProductID:  preOrder.ProductID,
				PreOrderID: preOrder.ID,
				Origin:     enums.UnitOriginPreorderDeposit,
				Size:       preOrder.Size,
				Notes:      input.Notes,
			})
			if err != nil {
				return err
			}
			unitID = unit.ID
			return nil
		},
		Undo: func(ctx context.Context) error {
			return s.removeUnit(ctx, input.TenantID, unitID)
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "variants", IDs: []uuid.UUID{unitID}}
		},
	})
	run.Add(saga.Step{
		Name: "record_sale",
		Do: func(ctx context.Context) error {
			res, err := s.sales.RecordSale(ctx, sales.RecordSaleInput{
				TenantID:           input.TenantID,
				Items:              []sales.ItemInput{{VariantID: unitID, SoldPriceCents: down, CostPriceCents: &zero}},
				PaymentMethod:      method,
				Customer:           customerOf(preOrder),
				SaleDate:           &canceledAt,
				Distribution:       input.Distribution,
				Notes:              input.Notes,
				PreOrderID:         &preOrder.ID,
				Origin:             enums.SaleOriginPreorderDeposit,
				DistributableCents: &down,
				NetProfitCents:     &down,
			})
			if err != nil {
				return err
			}
			saleRes = res
			return nil
		},
		Undo: func(ctx context.Context) error {
			_, err := s.sales.DeleteSale(ctx, input.TenantID, saleRes.SaleID)
			return err
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "sales", IDs: []uuid.UUID{saleRes.SaleID}}
		},
	})
	run.Add(saga.Step{
		Name: "cancel_pre_order",
		Do: func(ctx context.Context) error {
			return s.transition(ctx, input.TenantID, preOrder.ID, openStatuses, enums.PreOrderStatusCanceled, map[string]any{
				"sale_id":     saleRes.SaleID,
				"canceled_at": canceledAt,
			})
		},
	})

	result, err := run.Run(ctx)
	if err != nil {
		return nil, lifecycleFailed(pkgerrors.CodeSaleRecordingFailed, "pre-order cancellation failed", err)
	}
	return s.emitted(ctx, input.TenantID, enums.EventPreOrderCancelled, &LifecycleResult{
		PreOrderID: preOrder.ID,
		Status:     enums.PreOrderStatusCanceled.String(),
		SaleID:     &saleRes.SaleID,
		VariantID:  &unitID,
		Warnings:   append(saleRes.Warnings, result.WarningMessages()...),
	})
}

// Restore returns a voided or canceled pre-order to pending. For a canceled
// one the row is claimed first, then the deposit sale is removed (items,
// distributions, header) and the deposit unit deleted. A failure puts the row
// back to canceled.
func (s *service) Restore(ctx context.Context, tenantID, id uuid.UUID) (*LifecycleResult, error) {
	preOrder, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	switch preOrder.Status {
	case enums.PreOrderStatusVoided:
		if err := s.transition(ctx, tenantID, id, []enums.PreOrderStatus{enums.PreOrderStatusVoided}, enums.PreOrderStatusPending, map[string]any{"voided_at": nil}); err != nil {
			return nil, err
		}
		return s.emitted(ctx, tenantID, enums.EventPreOrderRestored, &LifecycleResult{PreOrderID: id, Status: enums.PreOrderStatusPending.String()})
	case enums.PreOrderStatusCanceled:
		return s.restoreCanceled(ctx, preOrder)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("a %s pre-order cannot be restored", preOrder.Status))
	}
}

func (s *service) restoreCanceled(ctx context.Context, preOrder *models.PreOrder) (*LifecycleResult, error) {
	tenantID := preOrder.TenantID
	sale, err := s.depositSale(ctx, preOrder)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithTenantID(ctx, tenantID.String())
	ctx = s.logg.WithOperation(ctx, sagaRestore)
	run := saga.New(sagaRestore, s.logg, s.metrics)

	// The claim flips the row to pending before anything is deleted, so a
	// concurrent restore of the same cancellation stops here.
	run.Add(saga.Step{
		Name: "claim_pre_order",
		Do: func(ctx context.Context) error {
			ok, err := s.repo.ClaimCanceled(ctx, tenantID, preOrder.ID, preOrder.SaleID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim pre-order")
			}
			if !ok {
				return s.stateConflict(ctx, tenantID, preOrder.ID, "restore")
			}
			return nil
		},
		Undo: func(ctx context.Context) error {
			return s.transition(ctx, tenantID, preOrder.ID, []enums.PreOrderStatus{enums.PreOrderStatusPending}, enums.PreOrderStatusCanceled, map[string]any{
				"sale_id":     nullable(preOrder.SaleID),
				"canceled_at": nullable(preOrder.CanceledAt),
			})
		},
	})

	if sale != nil {
		items, err := s.ledger.FindItems(ctx, tenantID, sale.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load deposit sale items")
		}
		rows, err := s.ledger.FindDistributions(ctx, tenantID, sale.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load deposit distributions")
		}
		units, err := s.depositUnits(ctx, preOrder, items)
		if err != nil {
			return nil, err
		}

		// Undo re-inserts only what this run removed.
		var removedItems, removedRows, removedSale int64
		run.Add(saga.Step{
			Name: "delete_items",
			Do: func(ctx context.Context) (err error) {
				removedItems, err = s.ledger.DeleteItems(ctx, tenantID, sale.ID)
				return err
			},
			Undo: func(ctx context.Context) error {
				if removedItems == 0 {
					return nil
				}
				return s.ledger.CreateItems(ctx, items)
			},
			Rows: func() saga.Rows {
				return saga.Rows{Table: "sale_items", IDs: idsOf(items, func(i models.SaleItem) uuid.UUID { return i.ID })}
			},
		})
		run.Add(saga.Step{
			Name: "delete_distributions",
			Do: func(ctx context.Context) (err error) {
				removedRows, err = s.ledger.DeleteDistributions(ctx, tenantID, sale.ID)
				return err
			},
			Undo: func(ctx context.Context) error {
				if removedRows == 0 {
					return nil
				}
				return s.ledger.CreateDistributions(ctx, rows)
			},
			Rows: func() saga.Rows {
				return saga.Rows{Table: "profit_distributions", IDs: idsOf(rows, func(r models.ProfitDistribution) uuid.UUID { return r.ID })}
			},
		})
		run.Add(saga.Step{
			Name: "delete_sale",
			Do: func(ctx context.Context) (err error) {
				removedSale, err = s.ledger.DeleteSale(ctx, tenantID, sale.ID)
				return err
			},
			Undo: func(ctx context.Context) error {
				if removedSale == 0 {
					return nil
				}
				return s.ledger.CreateSale(ctx, sale)
			},
			Rows: func() saga.Rows { return saga.Rows{Table: "sales", IDs: []uuid.UUID{sale.ID}} },
		})
		for _, unit := range units {
			run.Add(saga.Step{
				Name: fmt.Sprintf("delete_deposit_unit:%d", unit.SerialNumber),
				Do:   func(ctx context.Context) error { return s.variants.DeleteUnit(ctx, tenantID, unit.ID) },
				Undo: func(ctx context.Context) error { return s.variants.Reinstate(ctx, unit) },
				Rows: func() saga.Rows { return saga.Rows{Table: "variants", IDs: []uuid.UUID{unit.ID}} },
			})
		}
	}

	result, err := run.Run(ctx)
	if err != nil {
		return nil, lifecycleFailed(pkgerrors.CodeRestoreFailed, "pre-order restore failed", err)
	}
	return s.emitted(ctx, tenantID, enums.EventPreOrderRestored, &LifecycleResult{
		PreOrderID: preOrder.ID,
		Status:     enums.PreOrderStatusPending.String(),
		Warnings:   result.WarningMessages(),
	})
}

// depositSale finds the sale created when the pre-order was canceled, or nil
// when no deposit was captured.
func (s *service) depositSale(ctx context.Context, preOrder *models.PreOrder) (*models.Sale, error) {
	var (
		sale *models.Sale
		err  error
	)
	if preOrder.SaleID != nil {
		sale, err = s.ledger.FindSale(ctx, preOrder.TenantID, *preOrder.SaleID)
	} else {
		sale, err = s.ledger.FindSaleByPreOrder(ctx, preOrder.TenantID, preOrder.ID, enums.SaleOriginPreorderDeposit)
	}
	if err == nil {
		return sale, nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || isNotFound(err) {
		return nil, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load deposit sale")
}

// depositUnits returns the deposit units sold on the given items.
func (s *service) depositUnits(ctx context.Context, preOrder *models.PreOrder, items []models.SaleItem) ([]models.Variant, error) {
	ids := idsOf(items, func(i models.SaleItem) uuid.UUID { return i.VariantID })
	rows, err := s.variants.GetMany(ctx, preOrder.TenantID, ids)
	if err != nil {
		return nil, err
	}
	units := make([]models.Variant, 0, len(rows))
	for _, row := range rows {
		if row.UnitOrigin == enums.UnitOriginPreorderDeposit && row.PreOrderID != nil && *row.PreOrderID == preOrder.ID {
			units = append(units, row)
		}
	}
	return units, nil
}

// removeUnit deletes a unit created by the flow. A unit already removed (for
// example by a sale reversal) counts as done.
func (s *service) removeUnit(ctx context.Context, tenantID, id uuid.UUID) error {
	err := s.variants.DeleteUnit(ctx, tenantID, id)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	return nil
}

func customerOf(preOrder *models.PreOrder) sales.CustomerInput {
	return sales.CustomerInput{Name: preOrder.CustomerName, Phone: preOrder.CustomerPhone, ID: preOrder.CustomerID}
}

// nullable keeps a nil pointer untyped so the update writes NULL.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func idsOf[T any](rows []T, id func(T) uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, id(row))
	}
	return out
}

// lifecycleFailed returns the cause untouched when the flow failed before
// writing anything, otherwise wraps it with the compensation report.
func lifecycleFailed(code pkgerrors.Code, msg string, err error) error {
	stepErr, ok := saga.AsStepError(err)
	if !ok {
		return pkgerrors.Wrap(code, err, msg)
	}
	if len(stepErr.Compensated) == 0 && !stepErr.HasOrphans() && pkgerrors.As(stepErr.Cause) != nil {
		return stepErr.Cause
	}
	details := stepErr.Details()
	if cause := pkgerrors.CodeOf(stepErr.Cause); cause != "" {
		details["cause_code"] = cause
	}
	return pkgerrors.Wrap(code, err, msg).WithDetails(details)
}
