package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/stockledger-backend/pkg/bootstrap"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
	"github.com/angelmondragon/stockledger-backend/pkg/pubsub"
)

func main() {
	requeue := flag.String("requeue", "", "event id to move from the dead letter queue back to the outbox, then exit")
	flag.Parse()

	proc := bootstrap.Start("outbox-publisher")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	dlq := outbox.NewDLQRepository(dbClient.DB())

	if *requeue != "" {
		code := requeueEvent(logg, dlq, *requeue)
		proc.Close()
		os.Exit(code)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Must(ctx, "pubsub", err)
	proc.DeferCloser("pubsub", pubsubClient)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must(ctx, "event registry", err)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: dlq,
		Registry:      eventRegistry,
		Metrics:       metrics.NewOutboxMetrics(promRegistry),
	})
	proc.Must(ctx, "outbox publisher", err)

	runCtx, stop := proc.SignalContext(logger.Fields{"topic": cfg.PubSub.LedgerTopic})
	defer stop()
	proc.ServeMetrics(runCtx, promRegistry)

	logg.Info(logg.WithField(runCtx, "event_types", eventRegistry.Types()), "starting outbox publisher")
	proc.Finish(runCtx, service.Run(runCtx))
}

// requeueEvent returns the process exit code: 2 for a malformed id, 1 when
// the event is not dead-lettered or the move fails.
func requeueEvent(logg *logger.Logger, dlq *outbox.DLQRepository, rawID string) int {
	ctx := logg.WithField(context.Background(), "event_id", rawID)
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		logg.Error(ctx, "invalid event id", err)
		return 2
	}
	if err := dlq.Requeue(ctx, eventID); err != nil {
		logg.Error(ctx, "requeue failed", err)
		return 1
	}
	logg.Info(ctx, "dead-lettered event requeued")
	return 0
}
