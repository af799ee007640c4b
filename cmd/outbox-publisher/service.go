package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	DLQRepository    dlqRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events onto the ledger topic. Each batch is one
// transaction so row locks hold until the bookkeeping commits.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := cfg.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// Run polls until ctx is canceled. Batch errors back off exponentially up to
// maxBackoff; a full batch is followed immediately by the next one.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = s.pollInterval
		if processed {
			continue
		}
		if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// inflight is an event whose publish was started but not yet confirmed.
type inflight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	pub      publisher
	result   publishResult
	err      error
}

// processBatch starts every publish in the batch before waiting on any of
// them, then records the outcomes inside the same transaction.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		started := make([]inflight, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, s.eventFields(event, nil)); err != nil {
					return err
				}
				continue
			}
			started = append(started, s.startPublish(publishCtx, event, resolved))
		}
		for _, item := range started {
			if err := s.settle(ctx, publishCtx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) startPublish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) inflight {
	item := inflight{event: event, resolved: resolved}
	topic := resolved.Descriptor.Topic
	item.pub = s.publisherFactory(topic)
	if item.pub == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return item
	}
	item.result = item.pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  messageAttributes(event, resolved.Envelope),
		OrderingKey: orderingKey(event),
	})
	if item.result == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return item
}

// settle waits for one publish and records the outcome. Only bookkeeping
// errors are returned; they abort the batch transaction.
func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, item inflight) error {
	event := item.event
	err := item.err
	if err == nil {
		_, err = item.result.Get(publishCtx)
	}
	fields := s.eventFields(event, item.resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.Inc(string(event.EventType), metrics.OutboxPublished)
		s.logg.Info(s.logg.WithFields(ctx, fields), "ledger event published")
		return nil
	}

	// A failed ordered publish pauses its key until resumed.
	if item.pub != nil {
		item.pub.ResumePublish(orderingKey(event))
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "ledger event publish failed, will retry")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	s.metrics.Inc(string(event.EventType), metrics.OutboxRetried)
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "ledger event moved to dead letter queue")

	msg := err.Error()
	if dlqErr := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	s.metrics.Inc(string(event.EventType), metrics.OutboxDeadLettered)
	return nil
}

// orderingKey keeps the events of one sale or pre-order in commit order.
func orderingKey(event models.OutboxEvent) string {
	return event.TenantID.String() + ":" + string(event.AggregateType) + ":" + event.AggregateID.String()
}

// messageAttributes lets subscribers filter by tenant and event type without
// decoding the payload.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	return map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"tenant_id":      event.TenantID.String(),
		"version":        strconv.Itoa(envelope.Version),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"tenant_id":      event.TenantID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
