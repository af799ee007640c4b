package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
)

const (
	defaultInterval   = 24 * time.Hour
	defaultJobTimeout = 30 * time.Minute
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the ledger maintenance jobs once per interval on whichever
// instance holds the cluster lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 {
		svc.jobTimeout = defaultJobTimeout
	}
	return svc, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"jobs":     s.registry.Names(),
		"interval": s.interval.String(),
	})
	s.logg.Info(ctx, "cron service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !acquired {
		s.logg.Info(s.withHolder(ctx), "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	started := time.Now()
	var failed []string
	jobs := s.registry.Jobs()
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			failed = append(failed, job.Name())
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_run":    len(jobs),
		"jobs_failed": failed,
		"duration_ms": time.Since(started).Milliseconds(),
	}), "cron cycle finished")
	return nil
}

func (s *Service) withHolder(ctx context.Context) context.Context {
	reporter, ok := s.lock.(holderReporter)
	if !ok {
		return ctx
	}
	holder, err := reporter.Holder(ctx)
	if err != nil || holder == "" {
		return ctx
	}
	return s.logg.WithField(ctx, "lock_holder", holder)
}

// runJob bounds a single job by the job timeout and turns a panic into a
// failure so the remaining jobs still run.
func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", name), s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", name, rec)
			jobCtx = s.logg.WithField(jobCtx, "stack", string(debug.Stack()))
		}
		elapsed := time.Since(start)
		s.metrics.ObserveDuration(name, elapsed)
		doneCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.metrics.IncFailure(name)
			s.logg.Error(doneCtx, "job failed", err)
			return
		}
		s.metrics.IncSuccess(name)
		s.logg.Info(doneCtx, "job completed")
	}()

	return job.Run(jobCtx)
}
