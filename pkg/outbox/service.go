package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type DomainEvent struct {
	TenantID      uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type actorKey struct{}

// ContextWithActor records the caller whose request will produce events.
func ContextWithActor(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFromContext(ctx context.Context) *ActorRef {
	if ctx == nil {
		return nil
	}
	if actor, ok := ctx.Value(actorKey{}).(ActorRef); ok {
		return &actor
	}
	return nil
}

type inserter interface {
	Insert(ctx context.Context, event *models.OutboxEvent) error
}

type Service struct {
	repo inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo inserter, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("outbox repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg, now: time.Now}, nil
}

// Emit queues an event. The row is its own statement: callers treat a
// failure as a warning on an already committed ledger change.
func (s *Service) Emit(ctx context.Context, event DomainEvent) error {
	if !event.EventType.IsValid() {
		return errors.New("unknown event type")
	}
	if event.TenantID == uuid.Nil || event.AggregateID == uuid.Nil {
		return errors.New("tenant and aggregate ids are required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if event.Actor == nil {
		event.Actor = actorFromContext(ctx)
	}
	if event.Version <= 0 {
		event.Version = EnvelopeVersion
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		TenantID:   event.TenantID,
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := &models.OutboxEvent{
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     event.EventType,
		"aggregate_id":   event.AggregateID.String(),
		"aggregate_type": event.AggregateType,
	})
	s.logg.Info(logCtx, "outbox event queued")
	return nil
}
