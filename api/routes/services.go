package routes

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/internal/distribution"
	"github.com/angelmondragon/stockledger-backend/internal/imports"
	"github.com/angelmondragon/stockledger-backend/internal/preorders"
	product "github.com/angelmondragon/stockledger-backend/internal/products"
	"github.com/angelmondragon/stockledger-backend/internal/quota"
	"github.com/angelmondragon/stockledger-backend/internal/reports"
	"github.com/angelmondragon/stockledger-backend/internal/sales"
	"github.com/angelmondragon/stockledger-backend/internal/sequence"
	"github.com/angelmondragon/stockledger-backend/internal/variants"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

// ServicesParams collects what the domain graph needs. CatalogCache and
// Registerer are optional.
type ServicesParams struct {
	DB           *gorm.DB
	Config       *config.Config
	Logger       *logger.Logger
	CatalogCache catalog.Cache
	Registerer   prometheus.Registerer
}

// NewServices builds every domain service over one database handle.
func NewServices(p ServicesParams) (Services, error) {
	if p.DB == nil || p.Config == nil {
		return Services{}, fmt.Errorf("database and config required")
	}
	cfg := p.Config
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	allocatorMetrics := metrics.NewAllocatorMetrics(p.Registerer)
	sagaMetrics := metrics.NewSagaMetrics(p.Registerer)

	enricher, err := newEnricher(cfg.Catalog, p.CatalogCache, logg)
	if err != nil {
		return Services{}, err
	}
	productRepo := product.NewRepository(p.DB)
	productSvc, err := product.NewService(productRepo, enricher, logg)
	if err != nil {
		return Services{}, err
	}

	variantRepo := variants.NewRepository(p.DB)
	serials, err := sequence.NewAllocator(sequence.Options{
		Name:        "serial",
		Ceiling:     cfg.Allocator.SerialCeiling,
		MaxAttempts: cfg.Allocator.MaxAttempts,
		Constraints: []string{"ux_variants_tenant_serial", "variants.serial_number"},
	}, variantRepo, allocatorMetrics, logg)
	if err != nil {
		return Services{}, err
	}
	checker, err := quota.NewPlanChecker(cfg.Quota.MaxUnits, variantRepo)
	if err != nil {
		return Services{}, err
	}
	variantSvc, err := variants.NewService(variantRepo, serials, checker, cfg.Allocator.SerialCeiling)
	if err != nil {
		return Services{}, err
	}

	distributionSvc, err := distribution.NewService(distribution.NewRepository(p.DB))
	if err != nil {
		return Services{}, err
	}

	events, err := outbox.NewService(outbox.NewRepository(p.DB), logg)
	if err != nil {
		return Services{}, err
	}

	salesRepo := sales.NewRepository(p.DB)
	saleNumbers, err := sequence.NewAllocator(sequence.Options{
		Name:        "sale_number",
		MaxAttempts: cfg.Allocator.MaxAttempts,
		Constraints: []string{"ux_sales_tenant_number", "sales.sale_number"},
	}, salesRepo, allocatorMetrics, logg)
	if err != nil {
		return Services{}, err
	}
	preOrderRepo := preorders.NewRepository(p.DB)
	salesSvc, err := sales.NewService(sales.ServiceParams{
		Repo:        salesRepo,
		Variants:    variantSvc,
		Distributor: distributionSvc,
		Numbers:     saleNumbers,
		PreOrders:   preOrderRepo,
		Options: sales.Options{
			RevertVariantsOnDistributionFailure: cfg.Sales.RevertVariantsOnDistributionFailure,
		},
		Events:  events,
		Logger:  logg,
		Metrics: sagaMetrics,
	})
	if err != nil {
		return Services{}, err
	}

	preOrderSvc, err := preorders.NewService(preorders.ServiceParams{
		Repo:       preOrderRepo,
		Variants:   variantSvc,
		Sales:      salesSvc,
		Ledger:     salesRepo,
		Strategies: distributionSvc,
		Products:   productSvc,
		Events:     events,
		Logger:     logg,
		Metrics:    sagaMetrics,
	})
	if err != nil {
		return Services{}, err
	}

	importSvc, err := imports.NewService(productSvc, variantSvc, logg)
	if err != nil {
		return Services{}, err
	}
	exporter, err := reports.NewExporter(salesRepo)
	if err != nil {
		return Services{}, err
	}

	return Services{
		Products:     productSvc,
		Variants:     variantSvc,
		Imports:      importSvc,
		Distribution: distributionSvc,
		Sales:        salesSvc,
		PreOrders:    preOrderSvc,
		Exporter:     exporter,
	}, nil
}

func newEnricher(cfg config.CatalogConfig, cache catalog.Cache, logg *logger.Logger) (catalog.Enricher, error) {
	if !cfg.Enabled() {
		return catalog.Noop{}, nil
	}
	client, err := catalog.NewClient(cfg.BaseURL, catalog.WithAPIKey(cfg.APIKey), catalog.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return client, nil
	}
	return catalog.NewCached(client, cache, cfg.CacheTTL, logg)
}
