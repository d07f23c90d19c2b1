package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "RENTORA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "RENTORA_DB_DSN"
	EnvDBHost = "RENTORA_DB_HOST"
	EnvDBUser = "RENTORA_DB_USER"
	EnvDBName = "RENTORA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Razorpay RazorpayConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Eventing EventingConfig
	Outbox   OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RENTORA_APP_ENV" required:"true"`
	Port         string `envconfig:"RENTORA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RENTORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RENTORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RENTORA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RENTORA_DB_DSN"`
	Driver string `envconfig:"RENTORA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RENTORA_DB_HOST"`
	LegacyPort     int    `envconfig:"RENTORA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RENTORA_DB_USER"`
	LegacyPassword string `envconfig:"RENTORA_DB_PASSWORD"`
	LegacyName     string `envconfig:"RENTORA_DB_NAME"`
	LegacySSLMode  string `envconfig:"RENTORA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RENTORA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RENTORA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RENTORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RENTORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"RENTORA_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RENTORA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RENTORA_REDIS_ADDR"`
	Password     string        `envconfig:"RENTORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"RENTORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RENTORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RENTORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RENTORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RENTORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RENTORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RENTORA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RENTORA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RENTORA_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RazorpayConfig holds the gateway credentials plus the per-transaction
// ceiling enforced before orders are created.
type RazorpayConfig struct {
	KeyID     string `envconfig:"RENTORA_RAZORPAY_KEY_ID"`
	KeySecret string `envconfig:"RENTORA_RAZORPAY_KEY_SECRET"`
	BaseURL   string `envconfig:"RENTORA_RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
	MaxAmount int64  `envconfig:"RENTORA_RAZORPAY_MAX_AMOUNT" default:"100000"`
	Currency  string `envconfig:"RENTORA_RAZORPAY_CURRENCY" default:"INR"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RENTORA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RENTORA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RENTORA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"RENTORA_PUBSUB_DOMAIN_TOPIC" default:"rentora-domain-events"`
	DomainSubscription string `envconfig:"RENTORA_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"RENTORA_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	PaymentConfirmTTL    time.Duration `envconfig:"RENTORA_PAYMENT_CONFIRM_TTL" default:"24h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RENTORA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RENTORA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RENTORA_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
