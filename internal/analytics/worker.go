package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

const consumerName = "analytics"

// ErrUnsupportedEvent marks events the sink does not store. They are acked.
var ErrUnsupportedEvent = errors.New("unsupported ledger event")

// Handler writes one decoded ledger event.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

type deduper interface {
	CheckAndMark(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Forget(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Worker drains the analytics subscription of the ledger topic.
type Worker struct {
	subscription receiver
	handler      Handler
	dedupe       deduper
	logg         *logger.Logger
}

func NewWorker(subscription receiver, handler Handler, dedupe deduper, logg *logger.Logger) (*Worker, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case dedupe == nil:
		return nil, errors.New("dedupe store is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Worker{subscription: subscription, handler: handler, dedupe: dedupe, logg: logg}, nil
}

// Run receives messages until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if w.process(msgCtx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process reports whether the message should be redelivered. Malformed and
// unsupported events are acked and dropped.
func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) bool {
	fields := map[string]any{"message_id": msg.ID}
	env, err := decodeMessage(msg)
	if err != nil {
		fields["error"] = err.Error()
		w.logg.Warn(w.logg.WithFields(ctx, fields), "invalid ledger event message")
		return false
	}
	fields["event_id"] = env.EventID.String()
	fields["event_type"] = env.EventType
	fields["aggregate_id"] = env.AggregateID.String()
	ctx = w.logg.WithTenantID(w.logg.WithFields(ctx, fields), env.TenantID.String())

	seen, err := w.dedupe.CheckAndMark(ctx, consumerName, env.EventID)
	if err != nil {
		w.logg.Error(ctx, "dedupe check failed", err)
		return true
	}
	if seen {
		w.logg.Info(ctx, "ledger event already stored")
		return false
	}

	if err := w.handler.Handle(ctx, *env); err != nil {
		if errors.Is(err, ErrUnsupportedEvent) {
			w.logg.Warn(ctx, "ledger event type not stored")
			return false
		}
		w.logg.Error(ctx, "ledger event write failed", err)
		if forgetErr := w.dedupe.Forget(ctx, consumerName, env.EventID); forgetErr != nil {
			w.logg.Error(ctx, "failed to clear dedupe marker", forgetErr)
		}
		return true
	}
	w.logg.Info(ctx, "ledger event stored")
	return false
}

func decodeMessage(msg *gcppubsub.Message) (*Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType := enums.OutboxAggregateType(attribute(msg, "aggregate_type"))
	if !aggregateType.IsValid() {
		return nil, fmt.Errorf("aggregate_type %q invalid", aggregateType)
	}
	aggregateID, err := uuid.Parse(attribute(msg, "aggregate_id"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_id: %w", err)
	}

	rawEventID := strings.TrimSpace(stored.EventID)
	if rawEventID == "" {
		rawEventID = attribute(msg, "event_id")
	}
	eventID, err := uuid.Parse(rawEventID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	tenantID := stored.TenantID
	if tenantID == uuid.Nil {
		if tenantID, err = uuid.Parse(attribute(msg, "tenant_id")); err != nil {
			return nil, fmt.Errorf("tenant_id: %w", err)
		}
	}

	return &Envelope{
		EventID:       eventID,
		TenantID:      tenantID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    stored.OccurredAt.UTC(),
		Version:       stored.Version,
		Data:          stored.Data,
	}, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}
