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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Order        OrderConfig
	Payout       PayoutConfig
	Provider     ProviderConfig
	Scheduler    SchedulerConfig
	Admin        AdminConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	// NotificationTopic is optional; notifications are dropped when empty.
	NotificationTopic string        `envconfig:"MARKETPLACE_PUBSUB_NOTIFICATION_TOPIC"`
	PublishTimeout    time.Duration `envconfig:"MARKETPLACE_PUBSUB_PUBLISH_TIMEOUT" default:"5s"`
}

type OrderConfig struct {
	AutoApprovalWindow time.Duration `envconfig:"MARKETPLACE_ORDER_AUTO_APPROVAL_WINDOW" default:"1h"`
	ReturnWindow       time.Duration `envconfig:"MARKETPLACE_ORDER_RETURN_WINDOW" default:"24h"`
	SweepBatchSize     int           `envconfig:"MARKETPLACE_ORDER_SWEEP_BATCH_SIZE" default:"200"`
}

type PayoutConfig struct {
	CommissionRatePct   string        `envconfig:"MARKETPLACE_PAYOUT_COMMISSION_RATE_PCT" default:"8"`
	GSTRatePct          string        `envconfig:"MARKETPLACE_PAYOUT_GST_RATE_PCT" default:"18"`
	MinimumPayoutAmount string        `envconfig:"MARKETPLACE_PAYOUT_MINIMUM_AMOUNT" default:"100"`
	PayoutDelayDays     int           `envconfig:"MARKETPLACE_PAYOUT_DELAY_DAYS" default:"3"`
	MaxAttempts         int           `envconfig:"MARKETPLACE_PAYOUT_MAX_ATTEMPTS" default:"3"`
	TransferPrefix      string        `envconfig:"MARKETPLACE_PAYOUT_TRANSFER_PREFIX" default:"ORDER_"`
	SubmitTimeout       time.Duration `envconfig:"MARKETPLACE_PAYOUT_SUBMIT_TIMEOUT" default:"30s"`
	PendingGrace        time.Duration `envconfig:"MARKETPLACE_PAYOUT_PENDING_GRACE" default:"15m"`
}

// CommissionRate returns the platform commission percentage as a decimal.
func (p PayoutConfig) CommissionRate() decimal.Decimal {
	return decimal.RequireFromString(p.CommissionRatePct)
}

func (p PayoutConfig) GSTRate() decimal.Decimal {
	return decimal.RequireFromString(p.GSTRatePct)
}

func (p PayoutConfig) MinimumAmount() decimal.Decimal {
	return decimal.RequireFromString(p.MinimumPayoutAmount)
}

func (p PayoutConfig) PayoutDelay() time.Duration {
	return time.Duration(p.PayoutDelayDays) * 24 * time.Hour
}

func (p PayoutConfig) validate() error {
	fields := map[string]string{
		EnvPayoutCommissionRate: p.CommissionRatePct,
		EnvPayoutGSTRate:        p.GSTRatePct,
		EnvPayoutMinimumAmount:  p.MinimumPayoutAmount,
	}
	for _, env := range payoutDecimalEnvVars {
		value, err := decimal.NewFromString(strings.TrimSpace(fields[env]))
		if err != nil {
			return fmt.Errorf("%s must be a decimal: %w", env, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s must not be negative", env)
		}
	}
	if p.PayoutDelayDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvPayoutDelayDays)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvPayoutMaxAttempts)
	}
	if strings.TrimSpace(p.TransferPrefix) == "" {
		return fmt.Errorf("%s is required", EnvPayoutTransferPrefix)
	}
	if p.PendingGrace < p.SubmitTimeout {
		return fmt.Errorf("%s must not be shorter than the submit timeout", EnvPayoutPendingGrace)
	}
	return nil
}

type ProviderConfig struct {
	BaseURL       string        `envconfig:"MARKETPLACE_PROVIDER_BASE_URL" default:"https://payout-api.example.invalid"`
	ClientID      string        `envconfig:"MARKETPLACE_PROVIDER_CLIENT_ID"`
	ClientSecret  string        `envconfig:"MARKETPLACE_PROVIDER_CLIENT_SECRET"`
	WebhookSecret string        `envconfig:"MARKETPLACE_PROVIDER_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"MARKETPLACE_PROVIDER_TIMEOUT" default:"30s"`
	StatusRetries uint64        `envconfig:"MARKETPLACE_PROVIDER_STATUS_RETRIES" default:"3"`
	StatusBackoff time.Duration `envconfig:"MARKETPLACE_PROVIDER_STATUS_BACKOFF" default:"500ms"`

	// WebhookDedupeTTL bounds how long a delivered transfer/status pair is remembered.
	WebhookDedupeTTL time.Duration `envconfig:"MARKETPLACE_PROVIDER_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

// AdminConfig guards the operator routes. They are disabled when APIKey is empty.
type AdminConfig struct {
	APIKey string `envconfig:"MARKETPLACE_ADMIN_API_KEY"`
}

type SchedulerConfig struct {
	AutoApprovalSpec string        `envconfig:"MARKETPLACE_CRON_AUTO_APPROVAL_SPEC" default:"*/5 * * * *"`
	EligibilitySpec  string        `envconfig:"MARKETPLACE_CRON_ELIGIBILITY_SPEC" default:"15 * * * *"`
	DailyBatchSpec   string        `envconfig:"MARKETPLACE_CRON_DAILY_BATCH_SPEC" default:"0 0 * * *"`
	StatusPollSpec   string        `envconfig:"MARKETPLACE_CRON_STATUS_POLL_SPEC" default:"0 * * * *"`
	RetrySweepSpec   string        `envconfig:"MARKETPLACE_CRON_RETRY_SPEC" default:"*/30 * * * *"`
	LockTTL          time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"25m"`
	Timezone         string        `envconfig:"MARKETPLACE_CRON_TIMEZONE" default:"Asia/Kolkata"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
