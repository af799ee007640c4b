// Package quota answers whether a tenant may add more inventory units.
package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Unlimited is reported as Remaining when no cap applies.
const Unlimited int64 = -1

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
}

// Checker is consulted before units are allocated.
type Checker interface {
	Check(ctx context.Context, tenantID uuid.UUID, additional int64) (Decision, error)
}

// UnitCounter counts units that occupy plan capacity.
type UnitCounter interface {
	CountActive(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

type planChecker struct {
	maxUnits int64
	counter  UnitCounter
}

// NewPlanChecker caps active units at maxUnits. A zero cap allows everything.
func NewPlanChecker(maxUnits int64, counter UnitCounter) (Checker, error) {
	if maxUnits < 0 {
		return nil, fmt.Errorf("max units must not be negative")
	}
	if maxUnits > 0 && counter == nil {
		return nil, fmt.Errorf("unit counter required")
	}
	return &planChecker{maxUnits: maxUnits, counter: counter}, nil
}

func (c *planChecker) Check(ctx context.Context, tenantID uuid.UUID, additional int64) (Decision, error) {
	if c.maxUnits == 0 {
		return Decision{Allowed: true, Remaining: Unlimited}, nil
	}
	if additional < 0 {
		additional = 0
	}
	used, err := c.counter.CountActive(ctx, tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("count active units: %w", err)
	}
	remaining := c.maxUnits - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: additional <= remaining, Remaining: remaining}, nil
}

// AllowAll is a Checker without limits.
type AllowAll struct{}

func (AllowAll) Check(context.Context, uuid.UUID, int64) (Decision, error) {
	return Decision{Allowed: true, Remaining: Unlimited}, nil
}
