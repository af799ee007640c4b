package preorders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

// emitted queues the transition event for a finished lifecycle operation and
// passes the result through.
func (s *service) emitted(ctx context.Context, tenantID uuid.UUID, eventType enums.OutboxEventType, result *LifecycleResult) (*LifecycleResult, error) {
	data := payloads.PreOrderTransitionedEvent{
		PreOrderID: result.PreOrderID,
		Status:     enums.PreOrderStatus(result.Status),
		VariantID:  result.VariantID,
		Warnings:   result.Warnings,
	}
	if result.SaleID != nil {
		data.SaleIDs = []uuid.UUID{*result.SaleID}
	}
	s.emit(ctx, tenantID, eventType, data)
	return result, nil
}

func (s *service) emit(ctx context.Context, tenantID uuid.UUID, eventType enums.OutboxEventType, data payloads.PreOrderTransitionedEvent) {
	if s.events == nil {
		return
	}
	err := s.events.Emit(ctx, outbox.DomainEvent{
		TenantID:      tenantID,
		EventType:     eventType,
		AggregateType: enums.AggregatePreOrder,
		AggregateID:   data.PreOrderID,
		Data:          data,
	})
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_type":   eventType,
			"pre_order_id": data.PreOrderID.String(),
			"error":        err.Error(),
		})
		s.logg.Warn(logCtx, "ledger event not queued")
	}
}
