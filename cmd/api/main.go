package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/stockledger-backend/api/controllers"
	"github.com/angelmondragon/stockledger-backend/api/routes"
	"github.com/angelmondragon/stockledger-backend/pkg/bootstrap"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := routes.NewServices(routes.ServicesParams{
		DB:           dbClient.DB(),
		Config:       cfg,
		Logger:       logg,
		CatalogCache: redisClient,
		Registerer:   registry,
	})
	proc.Must(ctx, "services", err)

	// PORT is set by the hosting platform and wins over config.
	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	runCtx, stop := proc.SignalContext(logger.Fields{"addr": addr})
	defer stop()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Infra{
			Store: redisClient,
			Health: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
		}, services),
		ReadHeaderTimeout: 10 * time.Second,
	}
	proc.Finish(runCtx, serve(runCtx, logg, server))
}

// serve blocks until the listener fails or ctx is canceled, then drains
// in-flight requests.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logg.Info(ctx, "draining api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}
