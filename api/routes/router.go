package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockledger-backend/api/controllers"
	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/internal/imports"
	"github.com/angelmondragon/stockledger-backend/internal/preorders"
	product "github.com/angelmondragon/stockledger-backend/internal/products"
	"github.com/angelmondragon/stockledger-backend/internal/reports"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/auth"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/stockledger-backend/pkg/redis"
)

// Store backs idempotency records and rate limit counters.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Services groups the domain services the HTTP surface exposes.
type Services struct {
	Products     product.Service
	Variants     variants.Service
	Imports      imports.Service
	Distribution distribution.Service
	Sales        sales.Service
	PreOrders    preorders.Service
	Exporter     *reports.Exporter
}

// Infra carries the shared clients. Store may be nil, which disables
// idempotency replay and rate limiting.
type Infra struct {
	Store       Store
	Health      map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, infra.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.Health))
	})
	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if infra.Store != nil {
			r.Use(middleware.RateLimit(middleware.RateLimitPolicy{
				Window: cfg.RateLimit.Window,
				Limit:  cfg.RateLimit.Requests,
			}, infra.Store, logg))
			r.Use(middleware.Idempotency(infra.Store, cfg.Idempotency.TTL, logg))
		}

		r.Get("/ping", controllers.PrivatePing())
		manager := middleware.RequireRole(auth.RoleManager, logg)

		r.Route("/v1/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(svc.Products, logg))
			r.Post("/", controllers.CreateProduct(svc.Products, logg))
			r.Get("/{productId}", controllers.GetProduct(svc.Products, logg))
			r.Patch("/{productId}", controllers.UpdateProduct(svc.Products, logg))
			r.Delete("/{productId}", controllers.DeleteProduct(svc.Products, logg))
		})

		r.Route("/v1/variants", func(r chi.Router) {
			r.Get("/", controllers.ListVariants(svc.Variants, logg))
			r.Post("/", controllers.CreateVariant(svc.Variants, logg))
			r.Get("/serial/{serial}", controllers.GetVariantBySerial(svc.Variants, logg))
			r.Get("/{variantId}", controllers.GetVariant(svc.Variants, logg))
			r.Patch("/{variantId}", controllers.UpdateVariant(svc.Variants, logg))
			r.Post("/{variantId}/archive", controllers.ArchiveVariant(svc.Variants, logg))
			r.Post("/{variantId}/unarchive", controllers.UnarchiveVariant(svc.Variants, logg))
		})

		r.With(manager).Post("/v1/imports", controllers.ImportInventory(svc.Imports, logg))

		r.Route("/v1/avatars", func(r chi.Router) {
			r.Get("/", controllers.ListAvatars(svc.Distribution, logg))
			r.Post("/", controllers.CreateAvatar(svc.Distribution, logg))
			r.Put("/{avatarId}/active", controllers.SetAvatarActive(svc.Distribution, logg))
		})

		r.Route("/v1/distribution-templates", func(r chi.Router) {
			r.Get("/", controllers.ListTemplates(svc.Distribution, logg))
			r.Post("/", controllers.CreateTemplate(svc.Distribution, logg))
			r.Get("/{templateId}", controllers.GetTemplate(svc.Distribution, logg))
			r.Delete("/{templateId}", controllers.DeleteTemplate(svc.Distribution, logg))
		})

		r.Route("/v1/sales", func(r chi.Router) {
			r.Get("/", controllers.ListSales(svc.Sales, logg))
			r.Post("/", controllers.RecordSale(svc.Sales, logg))
			r.Get("/export", controllers.ExportSales(svc.Exporter, logg))
			r.Get("/{saleId}", controllers.GetSale(svc.Sales, logg))
			r.With(manager).Delete("/{saleId}", controllers.DeleteSale(svc.Sales, logg))
			r.Get("/{saleId}/receipt", controllers.GetReceipt(svc.Sales, logg))
			r.Post("/{saleId}/settle", controllers.SettleSale(svc.Sales, logg))
		})

		r.Route("/v1/preorders", func(r chi.Router) {
			r.Get("/", controllers.ListPreOrders(svc.PreOrders, logg))
			r.Post("/", controllers.CreatePreOrder(svc.PreOrders, logg))
			r.Get("/{preOrderId}", controllers.GetPreOrder(svc.PreOrders, logg))
			r.Patch("/{preOrderId}", controllers.UpdatePreOrder(svc.PreOrders, logg))
			r.With(manager).Delete("/{preOrderId}", controllers.DeletePreOrder(svc.PreOrders, logg))
			r.Post("/{preOrderId}/status", controllers.UpdatePreOrderStatus(svc.PreOrders, logg))
			r.Post("/{preOrderId}/link", controllers.LinkPreOrderVariant(svc.PreOrders, logg))
			r.Post("/{preOrderId}/fulfil", controllers.FulfilPreOrder(svc.PreOrders, logg))
			r.Post("/{preOrderId}/cancel", controllers.CancelPreOrder(svc.PreOrders, logg))
			r.Post("/{preOrderId}/void", controllers.VoidPreOrder(svc.PreOrders, logg))
			r.With(manager).Post("/{preOrderId}/restore", controllers.RestorePreOrder(svc.PreOrders, logg))
		})
	})

	return r
}
