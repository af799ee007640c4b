package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
)

const testTopic = "ledger-events"

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	first := saleRecordedRow(t)
	second := saleRecordedRow(t)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, dlq, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("unexpected failed rows %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("unexpected published rows %v", repo.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("transient failure must not dead letter")
	}
}

func TestPublishSetsRoutingAttributes(t *testing.T) {
	row := saleRecordedRow(t)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeDLQRepo{}, nil)
	service.publisherFactory = func(topic string) publisher {
		if topic != testTopic {
			t.Fatalf("unexpected topic %q", topic)
		}
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if !bytes.Equal(msg.Data, row.Payload) {
		t.Fatalf("message data must be the stored envelope")
	}
	want := map[string]string{
		"event_type":     string(enums.EventSaleRecorded),
		"aggregate_type": string(enums.AggregateSale),
		"aggregate_id":   row.AggregateID.String(),
		"tenant_id":      row.TenantID.String(),
		"version":        "1",
	}
	for key, value := range want {
		if msg.Attributes[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, msg.Attributes[key], value)
		}
	}
	if msg.Attributes["event_id"] == "" {
		t.Fatalf("event_id attribute missing")
	}
	if msg.OrderingKey != orderingKey(row) {
		t.Fatalf("unexpected ordering key %q", msg.OrderingKey)
	}
}

func TestFailedPublishResumesOrderingKey(t *testing.T) {
	row := saleRecordedRow(t)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("unavailable")}}}
	service := newTestService(t, repo, pub, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.resumed) != 1 || pub.resumed[0] != orderingKey(row) {
		t.Fatalf("expected ordering key resumed, got %v", pub.resumed)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected the row marked failed")
	}
}

func TestUnknownEventTypeIsDeadLettered(t *testing.T) {
	row := saleRecordedRow(t)
	row.EventType = "order.created"
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQRepo{}
	reg := prometheus.NewRegistry()
	service := newTestService(t, repo, &fakePublisher{}, dlq, nil)
	service.metrics = metrics.NewOutboxMetrics(reg)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != row.ID || !bytes.Equal(entry.Payload, row.Payload) {
		t.Fatalf("dlq entry does not mirror the row: %+v", entry)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "outbox_events_total" || len(families[0].GetMetric()) != 1 {
		t.Fatalf("expected one outbox metric series, got %v", families)
	}
}

func TestMaxAttemptsIsDeadLettered(t *testing.T) {
	row := saleRecordedRow(t)
	row.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, dlq, &config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlq.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows must not also be marked failed")
	}
}

func TestBookkeepingErrorAbortsBatch(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{saleRecordedRow(t)}, markErr: errors.New("db gone")}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err == nil {
		t.Fatalf("expected bookkeeping error")
	}
}

func TestNewServiceDefaults(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeDLQRepo{}, &config.OutboxConfig{})
	if service.batchSize != defaultBatchSize || service.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected defaults batch=%d attempts=%d", service.batchSize, service.maxAttempts)
	}
	if service.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", service.pollInterval)
	}

	if _, err := NewService(ServiceParams{Config: &config.Config{}, Logger: logger.Nop()}); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, maxBackoff); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, dlq dlqRepository, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{LedgerTopic: testTopic})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.Nop(),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		DLQRepository:    dlq,
		Registry:         eventRegistry,
		PublisherFactory: func(string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func saleRecordedRow(tb testing.TB) models.OutboxEvent {
	tb.Helper()
	saleID := uuid.New()
	data, err := json.Marshal(payloads.SaleRecordedEvent{
		SaleID:     saleID,
		SaleNumber: 7,
		Status:     enums.SaleStatusPending,
		TotalCents: 1000,
	})
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	tenantID := uuid.New()
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		TenantID:      tenantID,
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregateSale,
		AggregateID:   saleID,
		Payload:       envelope,
		CreatedAt:     time.Now().UTC(),
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
	resumed []string
}

func (f *fakePublisher) ResumePublish(key string) { f.resumed = append(f.resumed, key) }

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	if len(f.results) == 0 {
		return nil
	}
	f.sent = append(f.sent, msg)
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
