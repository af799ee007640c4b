package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

const processedScope = "evt:processed"

// Dedupe remembers consumed event ids in Redis so Pub/Sub redeliveries are
// written once.
type Dedupe struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewDedupe(store redis.IdempotencyStore, ttl time.Duration) (*Dedupe, error) {
	if store == nil {
		return nil, errors.New("redis store required")
	}
	if ttl <= 0 {
		return nil, errors.New("dedupe ttl must be positive")
	}
	return &Dedupe{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the event was already seen and marks it
// otherwise.
func (d *Dedupe) CheckAndMark(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	ok, err := d.store.SetNX(ctx, d.key(consumer, eventID), "1", d.ttl)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return !ok, nil
}

// Forget clears the marker so a failed write is retried on redelivery.
func (d *Dedupe) Forget(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return d.store.Del(ctx, d.key(consumer, eventID))
}

func (d *Dedupe) key(consumer string, eventID uuid.UUID) string {
	return d.store.IdempotencyKey(processedScope, consumer+":"+eventID.String())
}
