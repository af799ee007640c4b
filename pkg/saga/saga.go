// Package saga runs an ordered list of single-statement writes with
// compensating actions. It is not a transaction manager: each step commits on
// its own and a fatal failure undoes completed steps newest first.
package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
)

// Step is one forward action and its compensation.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	// Undo is registered once Do succeeds. Nil means nothing to compensate.
	Undo func(ctx context.Context) error
	// Tolerant steps record failures as warnings and the saga carries on.
	Tolerant bool
	// Rows describes what Do wrote. Reported when Undo fails.
	Rows func() Rows
}

// Rows identifies persisted rows by table.
type Rows struct {
	Table string      `json:"table"`
	IDs   []uuid.UUID `json:"ids"`
}

// Warning is a tolerated step failure.
type Warning struct {
	Step string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}

// Result summarises a committed run.
type Result struct {
	Warnings []Warning
}

// WarningMessages flattens warnings for API payloads.
func (r Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.String())
	}
	return out
}

// CompensationFailure names a step whose undo failed and left rows behind.
type CompensationFailure struct {
	Step string
	Err  error
	Rows *Rows
}

// StepError reports the fatal step and the outcome of compensation.
type StepError struct {
	Saga  string
	Step  string
	Cause error
	// Compensated lists steps undone successfully, newest first.
	Compensated []string
	// Orphaned lists steps whose undo failed.
	Orphaned []CompensationFailure
	// Warnings collected before the failure.
	Warnings []Warning
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("saga %s failed at %s: %v", e.Saga, e.Step, e.Cause)
	if len(e.Orphaned) > 0 {
		names := make([]string, 0, len(e.Orphaned))
		for _, o := range e.Orphaned {
			names = append(names, o.Step)
		}
		msg += fmt.Sprintf(" (compensation failed for %s)", strings.Join(names, ", "))
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// CompensationErr combines every failed undo, or nil.
func (e *StepError) CompensationErr() error {
	var combined error
	for _, o := range e.Orphaned {
		combined = multierr.Append(combined, fmt.Errorf("%s: %w", o.Step, o.Err))
	}
	return combined
}

// Details renders the failure for error payloads: the failed step, what was
// rolled back and every row left behind.
func (e *StepError) Details() map[string]any {
	details := map[string]any{
		"step":        e.Step,
		"reason":      e.Cause.Error(),
		"compensated": e.Compensated,
	}
	if len(e.Orphaned) > 0 {
		orphaned := make([]map[string]any, 0, len(e.Orphaned))
		for _, o := range e.Orphaned {
			entry := map[string]any{"step": o.Step, "error": o.Err.Error()}
			if o.Rows != nil {
				entry["table"] = o.Rows.Table
				entry["ids"] = o.Rows.IDs
			}
			orphaned = append(orphaned, entry)
		}
		details["orphaned"] = orphaned
	}
	if len(e.Warnings) > 0 {
		details["warnings"] = Result{Warnings: e.Warnings}.WarningMessages()
	}
	return details
}

// HasOrphans reports whether compensation left rows behind.
func (e *StepError) HasOrphans() bool {
	return len(e.Orphaned) > 0
}

// AsStepError unwraps err into a *StepError.
func AsStepError(err error) (*StepError, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Saga is an ordered list of steps. Build one per operation; it is not reusable
// across concurrent runs.
type Saga struct {
	name    string
	steps   []Step
	logg    *logger.Logger
	metrics *metrics.SagaMetrics
}

func New(name string, logg *logger.Logger, m *metrics.SagaMetrics) *Saga {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Saga{name: name, logg: logg, metrics: m}
}

// Add appends a step and returns the saga for chaining.
func (s *Saga) Add(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Steps returns the registered step names in order.
func (s *Saga) Steps() []string {
	names := make([]string, 0, len(s.steps))
	for _, st := range s.steps {
		names = append(names, st.Name)
	}
	return names
}

// Run executes the steps in order. Steps run detached from ctx cancellation so
// a client disconnect cannot strand a half-written sequence.
func (s *Saga) Run(ctx context.Context) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	ctx = s.logg.WithField(ctx, "saga", s.name)
	started := time.Now()

	var (
		result    Result
		completed []Step
	)

	for _, step := range s.steps {
		if step.Do == nil {
			continue
		}
		err := step.Do(ctx)
		if err == nil {
			if step.Undo != nil {
				completed = append(completed, step)
			}
			continue
		}

		stepCtx := s.logg.WithStep(ctx, step.Name)
		if step.Tolerant {
			s.metrics.IncStepFailure(s.name, step.Name, true)
			s.logg.Warn(s.logg.WithField(stepCtx, "error", err.Error()), "saga step failed, continuing")
			result.Warnings = append(result.Warnings, Warning{Step: step.Name, Err: err})
			continue
		}

		s.metrics.IncStepFailure(s.name, step.Name, false)
		s.logg.Warn(s.logg.WithField(stepCtx, "error", err.Error()), "saga step failed, compensating")

		stepErr := &StepError{
			Saga:     s.name,
			Step:     step.Name,
			Cause:    err,
			Warnings: result.Warnings,
		}
		s.compensate(ctx, completed, stepErr)

		outcome := metrics.OutcomeCompensated
		if stepErr.HasOrphans() {
			outcome = metrics.OutcomeOrphaned
			s.logg.Error(stepCtx, "saga compensation incomplete, rows orphaned", stepErr.CompensationErr())
		}
		s.metrics.ObserveRun(s.name, outcome, time.Since(started))
		return result, stepErr
	}

	s.metrics.ObserveRun(s.name, metrics.OutcomeCommitted, time.Since(started))
	return result, nil
}

func (s *Saga) compensate(ctx context.Context, completed []Step, stepErr *StepError) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if err := step.Undo(ctx); err != nil {
			s.metrics.IncCompensationFailure(s.name, step.Name)
			failure := CompensationFailure{Step: step.Name, Err: err}
			if step.Rows != nil {
				rows := step.Rows()
				failure.Rows = &rows
			}
			stepErr.Orphaned = append(stepErr.Orphaned, failure)
			continue
		}
		stepErr.Compensated = append(stepErr.Compensated, step.Name)
	}
}
