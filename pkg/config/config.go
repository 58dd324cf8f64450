package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	AdminJWT AdminJWTConfig
	Webhook  WebhookConfig
	Delivery DeliveryConfig
	SLA      SLAConfig
	Abuse    AbuseConfig
	OpenAI   OpenAIConfig
	GCP      GCPConfig
	GCS      GCSConfig
	Sendgrid SendgridConfig
	Square   SquareConfig
	Sentry   SentryConfig
	Flags    FeatureFlagsConfig
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
	Env          string `envconfig:"KETOPLAN_APP_ENV" required:"true"`
	Port         string `envconfig:"KETOPLAN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KETOPLAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KETOPLAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KETOPLAN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KETOPLAN_DB_DSN"`
	Driver string `envconfig:"KETOPLAN_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"KETOPLAN_DB_HOST"`
	Port     int    `envconfig:"KETOPLAN_DB_PORT" default:"5432"`
	User     string `envconfig:"KETOPLAN_DB_USER"`
	Password string `envconfig:"KETOPLAN_DB_PASSWORD"`
	Name     string `envconfig:"KETOPLAN_DB_NAME"`
	SSLMode  string `envconfig:"KETOPLAN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KETOPLAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KETOPLAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KETOPLAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KETOPLAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KETOPLAN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KETOPLAN_REDIS_ADDR"`
	Password     string        `envconfig:"KETOPLAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"KETOPLAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KETOPLAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KETOPLAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KETOPLAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KETOPLAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KETOPLAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminJWTConfig gates the manual-resolution admin surface.
type AdminJWTConfig struct {
	Secret            string `envconfig:"KETOPLAN_ADMIN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KETOPLAN_ADMIN_JWT_ISSUER" default:"ketoplan-admin"`
	ExpirationMinutes int    `envconfig:"KETOPLAN_ADMIN_JWT_EXPIRATION_MINUTES" default:"60"`
}

// WebhookConfig carries the payment-provider webhook verification settings.
type WebhookConfig struct {
	Secret          string        `envconfig:"KETOPLAN_WEBHOOK_SECRET" required:"true"`
	Tolerance       time.Duration `envconfig:"KETOPLAN_WEBHOOK_TOLERANCE" default:"5m"`
	EventGuardTTL   time.Duration `envconfig:"KETOPLAN_WEBHOOK_EVENT_GUARD_TTL" default:"72h"`
	RateLimitWindow time.Duration `envconfig:"KETOPLAN_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMax    int64         `envconfig:"KETOPLAN_WEBHOOK_RATE_LIMIT_MAX" default:"120"`
}

// DeliveryConfig bounds the orchestration retries.
type DeliveryConfig struct {
	GenerationAttempts   int           `envconfig:"KETOPLAN_DELIVERY_GENERATION_ATTEMPTS" default:"3"`
	NotificationAttempts int           `envconfig:"KETOPLAN_DELIVERY_NOTIFICATION_ATTEMPTS" default:"3"`
	NotificationBackoff  time.Duration `envconfig:"KETOPLAN_DELIVERY_NOTIFICATION_BACKOFF" default:"2s"`
	DefaultCalorieTarget int           `envconfig:"KETOPLAN_DELIVERY_DEFAULT_CALORIES" default:"1800"`
}

// SLAConfig drives the background breach monitor.
type SLAConfig struct {
	Budget       time.Duration `envconfig:"KETOPLAN_SLA_BUDGET" default:"4h"`
	PollInterval time.Duration `envconfig:"KETOPLAN_SLA_POLL_INTERVAL" default:"15m"`
	Cooldown     time.Duration `envconfig:"KETOPLAN_SLA_COOLDOWN" default:"30s"`
	LockTTL      time.Duration `envconfig:"KETOPLAN_SLA_LOCK_TTL" default:"20m"`
}

// AbuseConfig holds refund-abuse thresholds and blacklist retention.
type AbuseConfig struct {
	FlagThreshold  int           `envconfig:"KETOPLAN_ABUSE_FLAG_THRESHOLD" default:"2"`
	BlockThreshold int           `envconfig:"KETOPLAN_ABUSE_BLOCK_THRESHOLD" default:"3"`
	BlacklistTTL   time.Duration `envconfig:"KETOPLAN_ABUSE_BLACKLIST_TTL" default:"2160h"`
}

type OpenAIConfig struct {
	APIKey string `envconfig:"KETOPLAN_OPENAI_API_KEY"`
	Model  string `envconfig:"KETOPLAN_OPENAI_MODEL" default:"gpt-4o-mini"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KETOPLAN_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"KETOPLAN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"KETOPLAN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"KETOPLAN_GCS_BUCKET_NAME" required:"true"`
	DownloadURLExpiry time.Duration `envconfig:"KETOPLAN_GCS_DOWNLOAD_URL_EXPIRY" default:"24h"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"KETOPLAN_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"KETOPLAN_SENDGRID_FROM_EMAIL" default:"plans@ketoplan.app"`
	FromName    string `envconfig:"KETOPLAN_SENDGRID_FROM_NAME" default:"KetoPlan"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"KETOPLAN_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"KETOPLAN_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SentryConfig struct {
	DSN string `envconfig:"KETOPLAN_SENTRY_DSN"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KETOPLAN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KETOPLAN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range componentDBEnvVars {
		if values[env] == "" {
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
