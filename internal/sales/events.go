package sales

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

// emit queues a ledger event. A failure never undoes the committed sale.
func (s *service) emit(ctx context.Context, event outbox.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, event); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
			"error":        err.Error(),
		})
		s.logg.Warn(logCtx, "ledger event not queued")
	}
}

func saleRecordedEvent(sale *models.Sale, p *plan, warnings []string) outbox.DomainEvent {
	variantIDs := make([]uuid.UUID, 0, len(p.items))
	for _, item := range p.items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	shares := make([]payloads.ShareLine, 0, len(p.shares))
	for _, share := range p.shares {
		shares = append(shares, payloads.ShareLine{AvatarID: share.AvatarID, AmountCents: share.AmountCents})
	}
	return outbox.DomainEvent{
		TenantID:      sale.TenantID,
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregateSale,
		AggregateID:   sale.ID,
		OccurredAt:    sale.CreatedAt,
		Data: payloads.SaleRecordedEvent{
			SaleID:             sale.ID,
			SaleNumber:         sale.SaleNumber,
			Status:             sale.Status,
			Origin:             sale.Origin,
			PreOrderID:         sale.PreOrderID,
			TotalCents:         sale.TotalCents,
			NetProfitCents:     sale.NetProfitCents,
			DistributableCents: sale.DistributableCents,
			VariantIDs:         variantIDs,
			Shares:             shares,
			Warnings:           warnings,
		},
	}
}
