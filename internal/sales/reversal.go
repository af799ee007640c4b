package sales

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/saga"
)

// DeleteSale reverses a sale: distribution rows, items and the header go
// first, then the sold units are released (deposit units are deleted) and the
// originating pre-order is reopened. Unit and pre-order failures are warnings;
// a failed delete re-inserts what was already removed.
func (s *service) DeleteSale(ctx context.Context, tenantID, saleID uuid.UUID) (*ReversalResult, error) {
	sale, err := s.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FindItems(ctx, tenantID, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sale items")
	}
	distributions, err := s.repo.FindDistributions(ctx, tenantID, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load distributions")
	}
	unitIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		unitIDs = append(unitIDs, item.VariantID)
	}
	units, err := s.variants.GetMany(ctx, tenantID, unitIDs)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithTenantID(ctx, tenantID.String())
	ctx = s.logg.WithOperation(ctx, sagaReverseSale)

	result := &ReversalResult{
		SaleID:           saleID,
		ReleasedVariants: []uuid.UUID{},
		DeletedVariants:  []uuid.UUID{},
		PreOrderID:       sale.PreOrderID,
	}
	run := saga.New(sagaReverseSale, s.logg, s.metrics)

	var removedDistributions, removedItems int64
	run.Add(saga.Step{
		Name: stepDeleteDistributions,
		Do: func(ctx context.Context) (err error) {
			removedDistributions, err = s.repo.DeleteDistributions(ctx, tenantID, saleID)
			return err
		},
		Undo: func(ctx context.Context) error {
			if removedDistributions == 0 {
				return nil
			}
			return s.repo.CreateDistributions(ctx, distributions)
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "profit_distributions", IDs: distributionIDs(distributions)}
		},
	})
	run.Add(saga.Step{
		Name: stepDeleteItems,
		Do: func(ctx context.Context) (err error) {
			removedItems, err = s.repo.DeleteItems(ctx, tenantID, saleID)
			return err
		},
		Undo: func(ctx context.Context) error {
			if removedItems == 0 {
				return nil
			}
			return s.repo.CreateItems(ctx, items)
		},
		Rows: func() saga.Rows {
			return saga.Rows{Table: "sale_items", IDs: itemIDs(items)}
		},
	})
	run.Add(saga.Step{
		Name: stepDeleteSale,
		Do: func(ctx context.Context) error {
			n, err := s.repo.DeleteSale(ctx, tenantID, saleID)
			if err != nil {
				return err
			}
			if n == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sale was already reversed")
			}
			return nil
		},
	})

	for _, unit := range units {
		if unit.Status != enums.VariantStatusSold {
			continue
		}
		run.Add(saga.Step{
			Name:     fmt.Sprintf("%s:%d", stepReleaseUnit, unit.SerialNumber),
			Tolerant: true,
			Do: func(ctx context.Context) error {
				if unit.UnitOrigin == enums.UnitOriginPreorderDeposit {
					if err := s.variants.DeleteUnit(ctx, tenantID, unit.ID); err != nil {
						return err
					}
					result.DeletedVariants = append(result.DeletedVariants, unit.ID)
					return nil
				}
				if err := s.variants.Release(ctx, tenantID, unit.ID); err != nil {
					return err
				}
				result.ReleasedVariants = append(result.ReleasedVariants, unit.ID)
				return nil
			},
		})
	}

	if sale.PreOrderID != nil {
		preOrderID := *sale.PreOrderID
		run.Add(saga.Step{
			Name:     stepReopenPreOrder,
			Tolerant: true,
			Do: func(ctx context.Context) error {
				return s.preOrders.ReopenFromSale(ctx, tenantID, preOrderID, saleID)
			},
		})
	}

	outcome, err := run.Run(ctx)
	if err != nil {
		return nil, recordingFailed("sale reversal failed", err)
	}
	result.Warnings = outcome.WarningMessages()
	s.emit(ctx, outbox.DomainEvent{
		TenantID:      tenantID,
		EventType:     enums.EventSaleReversed,
		AggregateType: enums.AggregateSale,
		AggregateID:   saleID,
		Data: payloads.SaleReversedEvent{
			SaleID:           saleID,
			SaleNumber:       sale.SaleNumber,
			PreOrderID:       sale.PreOrderID,
			ReleasedVariants: result.ReleasedVariants,
			DeletedVariants:  result.DeletedVariants,
			Warnings:         result.Warnings,
		},
	})
	return result, nil
}

func itemIDs(items []models.SaleItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func distributionIDs(rows []models.ProfitDistribution) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
