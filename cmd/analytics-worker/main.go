package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/stockledger-backend/internal/analytics"
	"github.com/angelmondragon/stockledger-backend/pkg/bigquery"
	"github.com/angelmondragon/stockledger-backend/pkg/bootstrap"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("analytics-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	redisClient := proc.Redis(ctx)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Must(ctx, "pubsub", err)
	proc.DeferCloser("pubsub", pubsubClient)
	proc.Must(ctx, "analytics subscription", pubsubClient.EnsureSubscription(ctx, cfg.PubSub.AnalyticsSubscription))

	subscription := pubsubClient.AnalyticsSubscriber()
	if subscription == nil {
		proc.Must(ctx, "analytics subscription", errors.New("subscription not configured"))
	}

	table := cfg.BigQuery.LedgerEventsTable
	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, analytics.LedgerEventsTable(table))
	proc.Must(ctx, "bigquery", err)
	proc.DeferCloser("bigquery", bqClient)

	dedupe, err := analytics.NewDedupe(redisClient, cfg.Analytics.DedupeTTL)
	proc.Must(ctx, "dedupe store", err)

	writer, err := analytics.NewWriter(bqClient, table, analytics.RetryPolicy{})
	proc.Must(ctx, "ledger events writer", err)

	worker, err := analytics.NewWorker(subscription, writer, dedupe, logg)
	proc.Must(ctx, "analytics worker", err)

	runCtx, stop := proc.SignalContext(logger.Fields{
		"subscription": cfg.PubSub.AnalyticsSubscription,
		"table":        table,
	})
	defer stop()

	logg.Info(runCtx, "analytics worker ready")
	proc.Finish(runCtx, worker.Run(runCtx))
}
