package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Paystack     PaystackConfig
	Fees         FeesConfig
	Housekeeping HousekeepingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GRUNDY_APP_ENV" required:"true"`
	Port         string `envconfig:"GRUNDY_APP_PORT" required:"true"`
	FrontendURL  string `envconfig:"GRUNDY_FRONTEND_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"GRUNDY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GRUNDY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"GRUNDY_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GRUNDY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"GRUNDY_DB_DSN"`
	Driver     string `envconfig:"GRUNDY_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"GRUNDY_SQLITE_PATH" default:"grundy.db"`

	Host     string `envconfig:"GRUNDY_DB_HOST"`
	Port     int    `envconfig:"GRUNDY_DB_PORT" default:"5432"`
	User     string `envconfig:"GRUNDY_DB_USER"`
	Password string `envconfig:"GRUNDY_DB_PASSWORD"`
	Name     string `envconfig:"GRUNDY_DB_NAME"`
	SSLMode  string `envconfig:"GRUNDY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GRUNDY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GRUNDY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GRUNDY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GRUNDY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"GRUNDY_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GRUNDY_REDIS_URL"`
	Address      string        `envconfig:"GRUNDY_REDIS_ADDR"`
	Password     string        `envconfig:"GRUNDY_REDIS_PASSWORD"`
	DB           int           `envconfig:"GRUNDY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GRUNDY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GRUNDY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GRUNDY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GRUNDY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GRUNDY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"GRUNDY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GRUNDY_JWT_ISSUER" default:"grundy"`
	ExpirationMinutes int    `envconfig:"GRUNDY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GRUNDY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GRUNDY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookInFlightTTL   time.Duration `envconfig:"GRUNDY_WEBHOOK_INFLIGHT_TTL" default:"2m"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"GRUNDY_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	NotificationsEnabled bool          `envconfig:"GRUNDY_NOTIFICATIONS_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GRUNDY_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GRUNDY_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"GRUNDY_PUBSUB_NOTIFICATION_TOPIC" default:"grundy-notifications"`
	AlertsTopic       string `envconfig:"GRUNDY_PUBSUB_ALERTS_TOPIC" default:"grundy-operator-alerts"`
	PaymentsTopic     string `envconfig:"GRUNDY_PUBSUB_PAYMENTS_TOPIC" default:"grundy-payments"`
	// AutoCreateTopics creates missing topics at startup. Meant for the
	// emulator; production topics are provisioned by infrastructure.
	AutoCreateTopics bool `envconfig:"GRUNDY_PUBSUB_AUTO_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"GRUNDY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"GRUNDY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"GRUNDY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsPort    string `envconfig:"GRUNDY_OUTBOX_METRICS_PORT" default:"9091"`
}

// HousekeepingConfig drives the retention worker. The webhook window must stay
// well beyond the processor's redelivery horizon.
type HousekeepingConfig struct {
	Interval         time.Duration `envconfig:"GRUNDY_HOUSEKEEPING_INTERVAL" default:"6h"`
	OutboxRetention  time.Duration `envconfig:"GRUNDY_HOUSEKEEPING_OUTBOX_RETENTION" default:"720h"`
	WebhookRetention time.Duration `envconfig:"GRUNDY_HOUSEKEEPING_WEBHOOK_RETENTION" default:"2160h"`
	LockTTL          time.Duration `envconfig:"GRUNDY_HOUSEKEEPING_LOCK_TTL" default:"30m"`
	MetricsPort      string        `envconfig:"GRUNDY_HOUSEKEEPING_METRICS_PORT" default:"9092"`
}

type PaystackConfig struct {
	SecretKey        string        `envconfig:"GRUNDY_PAYSTACK_SECRET_KEY"`
	WebhookSecret    string        `envconfig:"GRUNDY_PAYSTACK_WEBHOOK_SECRET"`
	BaseURL          string        `envconfig:"GRUNDY_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	Timeout          time.Duration `envconfig:"GRUNDY_PAYSTACK_TIMEOUT" default:"15s"`
	PreferredBank    string        `envconfig:"GRUNDY_PAYSTACK_PREFERRED_BANK" default:"wema-bank"`
	BreakerFailures  uint32        `envconfig:"GRUNDY_PAYSTACK_BREAKER_FAILURES" default:"5"`
	BreakerOpenFor   time.Duration `envconfig:"GRUNDY_PAYSTACK_BREAKER_OPEN_FOR" default:"30s"`
	BreakerInterval  time.Duration `envconfig:"GRUNDY_PAYSTACK_BREAKER_INTERVAL" default:"60s"`
	DefaultTerminal  string        `envconfig:"GRUNDY_PAYSTACK_DEFAULT_TERMINAL"`
	CallbackPath     string        `envconfig:"GRUNDY_PAYSTACK_CALLBACK_PATH" default:"/payment/verify"`
	Currency         string        `envconfig:"GRUNDY_PAYSTACK_CURRENCY" default:"NGN"`
}

// WebhookSigningSecret falls back to the API secret key, which is what the
// processor signs webhooks with unless a dedicated secret is configured.
func (p PaystackConfig) WebhookSigningSecret() string {
	if s := strings.TrimSpace(p.WebhookSecret); s != "" {
		return s
	}
	return strings.TrimSpace(p.SecretKey)
}

type FeesConfig struct {
	PlatformSharePercent decimal.Decimal `envconfig:"GRUNDY_FEES_PLATFORM_SHARE_PERCENT" default:"10"`
	ProcessorPercent     decimal.Decimal `envconfig:"GRUNDY_FEES_PROCESSOR_PERCENT" default:"1.5"`
	ProcessorFlatFee     decimal.Decimal `envconfig:"GRUNDY_FEES_PROCESSOR_FLAT_FEE" default:"100"`
	ProcessorFeeCap      decimal.Decimal `envconfig:"GRUNDY_FEES_PROCESSOR_FEE_CAP" default:"2000"`
	FeeBearer            string          `envconfig:"GRUNDY_FEES_BEARER" default:"subaccount"`
}

func (f FeesConfig) validate() error {
	hundred := decimal.NewFromInt(100)
	if f.PlatformSharePercent.IsNegative() || f.PlatformSharePercent.GreaterThan(hundred) {
		return fmt.Errorf("%s must be between 0 and 100", EnvFeesPlatformShare)
	}
	if f.ProcessorPercent.IsNegative() || f.ProcessorFlatFee.IsNegative() || f.ProcessorFeeCap.IsNegative() {
		return fmt.Errorf("processor fee settings must not be negative")
	}
	return nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = DriverSQLite
		db.DSN = db.SQLitePath
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
