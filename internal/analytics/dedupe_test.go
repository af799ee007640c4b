package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "stockledger:idempotency:" + scope + ":" + id
}

func TestDedupeMarksOnce(t *testing.T) {
	store := newMemoryStore()
	dedupe, err := NewDedupe(store, time.Hour)
	require.NoError(t, err)

	eventID := uuid.New()
	seen, err := dedupe.CheckAndMark(context.Background(), consumerName, eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = dedupe.CheckAndMark(context.Background(), consumerName, eventID)
	require.NoError(t, err)
	assert.True(t, seen)

	key := "stockledger:idempotency:evt:processed:analytics:" + eventID.String()
	assert.Equal(t, time.Hour, store.ttls[key])
}

func TestDedupeForgetAllowsRetry(t *testing.T) {
	dedupe, err := NewDedupe(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	eventID := uuid.New()
	_, err = dedupe.CheckAndMark(context.Background(), consumerName, eventID)
	require.NoError(t, err)
	require.NoError(t, dedupe.Forget(context.Background(), consumerName, eventID))

	seen, err := dedupe.CheckAndMark(context.Background(), consumerName, eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDedupeSurfacesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("connection refused")
	dedupe, err := NewDedupe(store, time.Hour)
	require.NoError(t, err)

	_, err = dedupe.CheckAndMark(context.Background(), consumerName, uuid.New())
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewDedupeValidates(t *testing.T) {
	_, err := NewDedupe(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewDedupe(newMemoryStore(), 0)
	assert.Error(t, err)
}
