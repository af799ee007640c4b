// Package sequence hands out per-tenant numbers using read-max-then-insert
// with bounded retries on uniqueness collisions.
package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
)

const (
	DefaultMaxAttempts = 5
	// SerialCeiling is the largest serial number a unit may carry.
	SerialCeiling int64 = 32767
)

// MaxReader returns the highest number currently stored for the tenant, or 0.
type MaxReader interface {
	MaxNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// MaxReaderFunc adapts a function to MaxReader.
type MaxReaderFunc func(ctx context.Context, tenantID uuid.UUID) (int64, error)

func (f MaxReaderFunc) MaxNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return f(ctx, tenantID)
}

// InsertFunc persists the row carrying n. It must fail with a unique
// violation when n is already taken.
type InsertFunc func(ctx context.Context, n int64) error

// Options configures an Allocator.
type Options struct {
	// Name labels logs and metrics ("serial", "sale_number").
	Name string
	// Ceiling is the largest value allowed. Zero means unbounded.
	Ceiling     int64
	MaxAttempts int
	// Constraints identify the unique index guarding the number, by
	// constraint name (Postgres) or column reference (SQLite).
	Constraints []string
}

type Allocator struct {
	opts    Options
	reader  MaxReader
	metrics *metrics.AllocatorMetrics
	logg    *logger.Logger
}

func NewAllocator(opts Options, reader MaxReader, m *metrics.AllocatorMetrics, logg *logger.Logger) (*Allocator, error) {
	if reader == nil {
		return nil, fmt.Errorf("max reader required")
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("allocator name required")
	}
	if opts.Ceiling < 0 {
		return nil, fmt.Errorf("ceiling must not be negative")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Allocator{opts: opts, reader: reader, metrics: m, logg: logg}, nil
}

// Allocate proposes max+1 and calls insert, retrying on collisions. It
// returns the number that was persisted.
func (a *Allocator) Allocate(ctx context.Context, tenantID uuid.UUID, insert InsertFunc) (int64, error) {
	if insert == nil {
		return 0, fmt.Errorf("insert func required")
	}
	if tenantID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}

	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		current, err := a.reader.MaxNumber(ctx, tenantID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read max %s", a.opts.Name))
		}
		next := current + 1
		if a.opts.Ceiling > 0 && next > a.opts.Ceiling {
			a.metrics.IncFailure(a.opts.Name, "range")
			return 0, pkgerrors.New(pkgerrors.CodeRangeExceeded, fmt.Sprintf("%s range exhausted", a.opts.Name)).
				WithDetails(map[string]any{"ceiling": a.opts.Ceiling, "current_max": current})
		}

		err = insert(ctx, next)
		if err == nil {
			return next, nil
		}
		if !a.isCollision(err) {
			return 0, err
		}

		a.metrics.IncRetry(a.opts.Name)
		a.logg.Debug(a.logg.WithFields(ctx, map[string]any{
			"sequence":  a.opts.Name,
			"attempt":   attempt,
			"candidate": next,
		}), "sequence collision, retrying")
	}

	a.metrics.IncFailure(a.opts.Name, "exhausted")
	return 0, pkgerrors.New(pkgerrors.CodeAllocationExhausted, fmt.Sprintf("could not allocate %s", a.opts.Name)).
		WithDetails(map[string]any{"attempts": a.opts.MaxAttempts})
}

func (a *Allocator) isCollision(err error) bool {
	if len(a.opts.Constraints) == 0 {
		return db.IsUniqueViolation(err, "")
	}
	for _, c := range a.opts.Constraints {
		if db.IsUniqueViolation(err, c) {
			return true
		}
	}
	return false
}
