// Package bootstrap holds the process wiring shared by every binary: env
// loading, config, logging, the database and Redis handles, the metrics
// listener and ordered shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/instance"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/migrate"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

const metricsShutdownTimeout = 5 * time.Second

type closer struct {
	name string
	fn   func() error
}

// Process is one running binary. Resources registered with Defer are closed
// in reverse order by Close, and by Must before a fatal exit.
type Process struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger

	closers []closer
	exit    func(int)
}

// Start loads .env and config and builds the configured logger. A config
// error is fatal.
func Start(service string) *Process {
	p := &Process{
		Service: service,
		Logger:  logger.New(logger.Options{ServiceName: service}),
		exit:    os.Exit,
	}
	if err := godotenv.Load(); err != nil {
		p.Logger.Debug(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	p.Must(context.Background(), "config", err)
	p.Config = cfg
	p.Logger = logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      logger.Format(cfg.App.LogFormat),
	})
	return p
}

// Must logs err against resource and exits after closing what was opened.
func (p *Process) Must(ctx context.Context, resource string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(p.Logger.WithField(ctx, "resource", resource), fmt.Sprintf("resource not working: %s", resource), err)
	p.Close()
	p.exit(1)
}

// Defer registers fn to run on Close.
func (p *Process) Defer(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// DeferCloser registers c.Close.
func (p *Process) DeferCloser(name string, c io.Closer) {
	p.Defer(name, c.Close)
}

// Close runs registered closers newest first and logs their combined error.
func (p *Process) Close() {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if cerr := c.fn(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, cerr))
		}
	}
	p.closers = nil
	if err != nil {
		p.Logger.Error(context.Background(), "shutdown completed with errors", err)
	}
}

// Database opens the configured database and applies embedded migrations
// when the environment asks for it.
func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	p.Must(ctx, "database", err)
	p.DeferCloser("database", client)
	p.Must(ctx, "dev migrations", migrate.MaybeRunDev(ctx, p.Config, p.Logger, client))
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	p.Must(ctx, "redis", err)
	p.DeferCloser("redis", client)
	return client
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the env and
// instance fields plus any extra ones.
func (p *Process) SignalContext(extra logger.Fields) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := logger.Fields{"env": p.Config.App.Env, "instance": instance.GetID()}
	for k, v := range extra {
		fields[k] = v
	}
	return p.Logger.WithFields(ctx, fields), stop
}

// ServeMetrics exposes gatherer on the metrics port until Close.
func (p *Process) ServeMetrics(ctx context.Context, gatherer prometheus.Gatherer) {
	server := &http.Server{
		Addr:              ":" + p.Config.App.MetricsPort,
		Handler:           promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.Logger.Error(ctx, "metrics server stopped", err)
		}
	}()
	p.Defer("metrics server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// Finish closes resources and exits non-zero when err is a real failure.
// Cancellation from a shutdown signal counts as success.
func (p *Process) Finish(ctx context.Context, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, p.Service+" stopped unexpectedly", err)
		p.Close()
		p.exit(1)
		return
	}
	p.Logger.Info(ctx, p.Service+" shutting down gracefully")
	p.Close()
}
