package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Webhooks     WebhookConfig
	Sweeper      SweeperConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Sweeper.validate(cfg.Webhooks); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPLY_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLY_DB_DSN"`
	Driver string `envconfig:"SHOPLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPLY_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPLY_DB_USER"`
	LegacyPassword string `envconfig:"SHOPLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPLY_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPLY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPLY_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SHOPLY_STRIPE_API_KEY"`
	Secret string `envconfig:"SHOPLY_STRIPE_SECRET"`
	Env    string `envconfig:"SHOPLY_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	Currency string `envconfig:"SHOPLY_CHECKOUT_CURRENCY" default:"usd"`
}

type WebhookConfig struct {
	// IdempotencyTTL bounds how long processed event ids are remembered. It
	// must cover the provider's full redelivery window.
	IdempotencyTTL time.Duration `envconfig:"SHOPLY_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	// MaxRedeliveryDelay is the longest gap we expect between a charge and
	// its final webhook redelivery attempt.
	MaxRedeliveryDelay time.Duration `envconfig:"SHOPLY_WEBHOOK_MAX_REDELIVERY_DELAY" default:"72h"`
}

type SweeperConfig struct {
	// GracePeriod is how long a pending transaction survives before the
	// sweep reclaims it. Must exceed WebhookConfig.MaxRedeliveryDelay so the
	// sweep never races a late webhook.
	GracePeriod time.Duration `envconfig:"SHOPLY_SWEEPER_GRACE_PERIOD" default:"96h"`
	Interval    time.Duration `envconfig:"SHOPLY_SWEEPER_INTERVAL" default:"1h"`
}

func (s SweeperConfig) validate(webhooks WebhookConfig) error {
	if s.GracePeriod <= webhooks.MaxRedeliveryDelay {
		return fmt.Errorf("sweeper grace period (%s) must exceed the webhook max redelivery delay (%s)",
			s.GracePeriod, webhooks.MaxRedeliveryDelay)
	}
	return nil
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
