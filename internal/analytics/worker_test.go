package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

type recordingHandler struct {
	err  error
	envs []Envelope
}

func (h *recordingHandler) Handle(_ context.Context, env Envelope) error {
	h.envs = append(h.envs, env)
	return h.err
}

type stubReceiver struct{}

func (stubReceiver) Receive(context.Context, func(context.Context, *gcppubsub.Message)) error {
	return nil
}

func newTestWorker(t *testing.T, handler Handler) (*Worker, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	dedupe, err := NewDedupe(store, time.Hour)
	require.NoError(t, err)
	worker, err := NewWorker(stubReceiver{}, handler, dedupe, logger.Nop())
	require.NoError(t, err)
	return worker, store
}

func ledgerMessage(t *testing.T, eventID, tenantID, saleID uuid.UUID) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		TenantID:   tenantID,
		OccurredAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Data:       json.RawMessage(fmt.Sprintf(`{"sale_id":%q,"sale_number":5}`, saleID)),
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: data,
		Attributes: map[string]string{
			"event_id":       eventID.String(),
			"event_type":     string(enums.EventSaleSettled),
			"aggregate_type": string(enums.AggregateSale),
			"aggregate_id":   saleID.String(),
			"tenant_id":      tenantID.String(),
		},
	}
}

func TestProcessDecodesAndHandles(t *testing.T) {
	handler := &recordingHandler{}
	worker, _ := newTestWorker(t, handler)
	eventID, tenantID, saleID := uuid.New(), uuid.New(), uuid.New()

	nack := worker.process(context.Background(), ledgerMessage(t, eventID, tenantID, saleID))
	assert.False(t, nack)
	require.Len(t, handler.envs, 1)
	env := handler.envs[0]
	assert.Equal(t, eventID, env.EventID)
	assert.Equal(t, tenantID, env.TenantID)
	assert.Equal(t, saleID, env.AggregateID)
	assert.Equal(t, enums.EventSaleSettled, env.EventType)
	assert.Equal(t, 1, env.Version)
}

func TestProcessSkipsDuplicates(t *testing.T) {
	handler := &recordingHandler{}
	worker, _ := newTestWorker(t, handler)
	msg := ledgerMessage(t, uuid.New(), uuid.New(), uuid.New())

	assert.False(t, worker.process(context.Background(), msg))
	assert.False(t, worker.process(context.Background(), msg))
	assert.Len(t, handler.envs, 1)
}

func TestProcessNacksAndForgetsOnWriteFailure(t *testing.T) {
	handler := &recordingHandler{err: errors.New("bigquery unavailable")}
	worker, store := newTestWorker(t, handler)
	msg := ledgerMessage(t, uuid.New(), uuid.New(), uuid.New())

	assert.True(t, worker.process(context.Background(), msg))
	assert.Empty(t, store.data)

	handler.err = nil
	assert.False(t, worker.process(context.Background(), msg))
	assert.Len(t, handler.envs, 2)
}

func TestProcessAcksUnsupportedEvents(t *testing.T) {
	handler := &recordingHandler{err: fmt.Errorf("%w: x", ErrUnsupportedEvent)}
	worker, _ := newTestWorker(t, handler)

	assert.False(t, worker.process(context.Background(), ledgerMessage(t, uuid.New(), uuid.New(), uuid.New())))
}

func TestProcessAcksMalformedMessages(t *testing.T) {
	handler := &recordingHandler{}
	worker, _ := newTestWorker(t, handler)

	cases := map[string]func(*gcppubsub.Message){
		"bad json":         func(m *gcppubsub.Message) { m.Data = []byte("{") },
		"unknown type":     func(m *gcppubsub.Message) { m.Attributes["event_type"] = "sale.exported" },
		"bad aggregate":    func(m *gcppubsub.Message) { m.Attributes["aggregate_type"] = "invoice" },
		"bad aggregate id": func(m *gcppubsub.Message) { m.Attributes["aggregate_id"] = "nope" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := ledgerMessage(t, uuid.New(), uuid.New(), uuid.New())
			mutate(msg)
			assert.False(t, worker.process(context.Background(), msg))
		})
	}
	assert.Empty(t, handler.envs)
}

func TestNewWorkerValidates(t *testing.T) {
	dedupe, err := NewDedupe(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	_, err = NewWorker(nil, &recordingHandler{}, dedupe, logger.Nop())
	assert.Error(t, err)
	_, err = NewWorker(stubReceiver{}, nil, dedupe, logger.Nop())
	assert.Error(t, err)
	_, err = NewWorker(stubReceiver{}, &recordingHandler{}, nil, logger.Nop())
	assert.Error(t, err)
}
