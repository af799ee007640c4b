package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger-backend/internal/cron"
	"github.com/angelmondragon/stockledger-backend/pkg/bootstrap"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	// The lock outlives one interval so a slow cycle is never run twice.
	lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), cfg.Cron.Interval+time.Hour)
	proc.Must(ctx, "cron lock", err)

	jobs, err := buildJobs(cfg, logg, dbClient)
	proc.Must(ctx, "cron jobs", err)

	promRegistry := prometheus.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(promRegistry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	proc.Must(ctx, "cron service", err)

	runCtx, stop := proc.SignalContext(logger.Fields{"interval": cfg.Cron.Interval.String()})
	defer stop()
	proc.ServeMetrics(runCtx, promRegistry)

	logg.Info(runCtx, "starting cron worker")
	proc.Finish(runCtx, service.Run(runCtx))
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
		BatchSize:     cfg.Outbox.PurgeBatchSize,
	})
	if err != nil {
		return nil, err
	}
	dlqReport, err := cron.NewDLQReportJob(logg, outbox.NewDLQRepository(dbClient.DB()), cfg.Cron.Interval)
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(retention, dlqReport), nil
}
