package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const envHeader = "X-StockLedger-Env"

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every dependency answers a ping.
// Nil dependencies are skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed []string
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				failed = append(failed, name)
				logg.Warn(logg.WithField(ctx, "dependency", name), "health.ready.dependency_down")
				continue
			}
			checks[name] = "up"
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
