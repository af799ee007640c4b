package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOCKLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "STOCKLEDGER_APP_ENV"
	EnvPort        = "STOCKLEDGER_APP_PORT"
	EnvDBDSN       = "STOCKLEDGER_DB_DSN"
	EnvDBHost      = "STOCKLEDGER_DB_HOST"
	EnvDBUser      = "STOCKLEDGER_DB_USER"
	EnvDBName      = "STOCKLEDGER_DB_NAME"
	EnvRedisURL    = "STOCKLEDGER_REDIS_URL"
	EnvJWTSecret   = "STOCKLEDGER_JWT_SECRET"
	EnvJWTIssuer   = "STOCKLEDGER_JWT_ISSUER"
	EnvSerialLimit = "STOCKLEDGER_ALLOCATOR_SERIAL_CEILING"
	EnvMaxAttempts = "STOCKLEDGER_ALLOCATOR_MAX_ATTEMPTS"
	EnvRevertUnits = "STOCKLEDGER_SALES_REVERT_VARIANTS_ON_DISTRIBUTION_FAILURE"
	EnvQuotaUnits  = "STOCKLEDGER_QUOTA_MAX_UNITS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Allocator    AllocatorConfig
	Sales        SalesConfig
	Quota        QuotaConfig
	Idempotency  IdempotencyConfig
	Catalog      CatalogConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	BigQuery     BigQueryConfig
	Analytics    AnalyticsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Allocator.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOCKLEDGER_LOG_FORMAT"`
	CORSOrigins  string `envconfig:"STOCKLEDGER_CORS_ORIGINS"`
	// MetricsPort serves /metrics for the background workers.
	MetricsPort string `envconfig:"STOCKLEDGER_METRICS_PORT" default:"9090"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOCKLEDGER_SQLITE_PATH" default:"stockledger.db"`

	MaxOpenConns    int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyNamespace string        `envconfig:"STOCKLEDGER_REDIS_KEY_NAMESPACE" default:"sl"`
}

// JWTConfig only covers verification; tokens are minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"STOCKLEDGER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOCKLEDGER_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`
}

// AllocatorConfig bounds the max+1 number allocators.
type AllocatorConfig struct {
	SerialCeiling int64 `envconfig:"STOCKLEDGER_ALLOCATOR_SERIAL_CEILING" default:"32767"`
	MaxAttempts   int   `envconfig:"STOCKLEDGER_ALLOCATOR_MAX_ATTEMPTS" default:"5"`
}

func (a AllocatorConfig) validate() error {
	if a.SerialCeiling <= 0 {
		return fmt.Errorf("%s must be positive", EnvSerialLimit)
	}
	if a.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxAttempts)
	}
	return nil
}

type SalesConfig struct {
	// RevertVariantsOnDistributionFailure releases units marked sold when the
	// distribution step fails and the sale is compensated.
	RevertVariantsOnDistributionFailure bool `envconfig:"STOCKLEDGER_SALES_REVERT_VARIANTS_ON_DISTRIBUTION_FAILURE" default:"false"`
}

type QuotaConfig struct {
	// MaxUnits caps active units per tenant. Zero disables the check.
	MaxUnits int64 `envconfig:"STOCKLEDGER_QUOTA_MAX_UNITS" default:"0"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"STOCKLEDGER_IDEMPOTENCY_TTL" default:"24h"`
}

// CatalogConfig points at the external product catalog. An empty base URL
// disables enrichment.
type CatalogConfig struct {
	BaseURL  string        `envconfig:"STOCKLEDGER_CATALOG_BASE_URL"`
	APIKey   string        `envconfig:"STOCKLEDGER_CATALOG_API_KEY"`
	Timeout  time.Duration `envconfig:"STOCKLEDGER_CATALOG_TIMEOUT" default:"5s"`
	CacheTTL time.Duration `envconfig:"STOCKLEDGER_CATALOG_CACHE_TTL" default:"24h"`
}

func (c CatalogConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

type RateLimitConfig struct {
	Requests int64         `envconfig:"STOCKLEDGER_RATE_LIMIT_REQUESTS" default:"120"`
	Window   time.Duration `envconfig:"STOCKLEDGER_RATE_LIMIT_WINDOW" default:"1m"`
}

// GCPConfig, PubSubConfig and BigQueryConfig are only read by the outbox
// publisher and the analytics worker.
type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOCKLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic           string `envconfig:"STOCKLEDGER_PUBSUB_LEDGER_TOPIC" default:"ledger-events"`
	AnalyticsSubscription string `envconfig:"STOCKLEDGER_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"ledger-events-analytics"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"STOCKLEDGER_BIGQUERY_DATASET" default:"stockledger"`
	LedgerEventsTable string `envconfig:"STOCKLEDGER_BIGQUERY_LEDGER_EVENTS_TABLE" default:"ledger_events"`
	CreateTables      bool   `envconfig:"STOCKLEDGER_BIGQUERY_CREATE_TABLES" default:"false"`
}

type AnalyticsConfig struct {
	// DedupeTTL bounds how long a consumed event id is remembered.
	DedupeTTL time.Duration `envconfig:"STOCKLEDGER_ANALYTICS_DEDUPE_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKLEDGER_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKLEDGER_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOCKLEDGER_OUTBOX_RETENTION_DAYS" default:"30"`
	PurgeBatchSize int `envconfig:"STOCKLEDGER_OUTBOX_PURGE_BATCH_SIZE" default:"5000"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"STOCKLEDGER_CRON_INTERVAL" default:"24h"`
	JobTimeout time.Duration `envconfig:"STOCKLEDGER_CRON_JOB_TIMEOUT" default:"30m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = "sqlite"
		db.DSN = db.SQLitePath
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
