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
	DB           DBConfig
	Redis        RedisConfig
	Webhook      WebhookConfig
	Download     DownloadConfig
	Store        StoreConfig
	Dispatch     DispatchConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Mail         MailConfig
	Admin        AdminConfig
	FeatureFlags FeatureFlagsConfig
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
	Env           string `envconfig:"RECEIPTS_APP_ENV" required:"true"`
	Port          string `envconfig:"RECEIPTS_APP_PORT" required:"true"`
	LogLevel      string `envconfig:"RECEIPTS_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"RECEIPTS_LOG_WARN_STACK" default:"false"`
	PublicBaseURL string `envconfig:"RECEIPTS_PUBLIC_BASE_URL"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// ResolvePublicBaseURL returns the configured public base URL, defaulting to
// localhost outside production. In production an unset base URL stays empty so
// callers can refuse to mint absolute links.
func (a AppConfig) ResolvePublicBaseURL() string {
	if a.PublicBaseURL != "" {
		return strings.TrimRight(a.PublicBaseURL, "/")
	}
	if a.IsProd() {
		return ""
	}
	port := a.Port
	if port == "" {
		port = "4000"
	}
	return "http://localhost:" + port
}

type DBConfig struct {
	DSN    string `envconfig:"RECEIPTS_DB_DSN"`
	Driver string `envconfig:"RECEIPTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RECEIPTS_DB_HOST"`
	LegacyPort     int    `envconfig:"RECEIPTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RECEIPTS_DB_USER"`
	LegacyPassword string `envconfig:"RECEIPTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"RECEIPTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"RECEIPTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RECEIPTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RECEIPTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RECEIPTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RECEIPTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RECEIPTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RECEIPTS_REDIS_ADDR"`
	Password     string        `envconfig:"RECEIPTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"RECEIPTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RECEIPTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RECEIPTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RECEIPTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RECEIPTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RECEIPTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type WebhookConfig struct {
	// Secret signs and verifies the x-webhook-signature header. Leaving it
	// empty switches verification into the audited "skipped" mode.
	Secret       string        `envconfig:"RECEIPTS_WEBHOOK_SECRET"`
	ReceiverURL  string        `envconfig:"RECEIPTS_WEBHOOK_RECEIVER_URL"`
	SendTimeout  time.Duration `envconfig:"RECEIPTS_WEBHOOK_SEND_TIMEOUT" default:"10s"`
	ToleranceSec int64         `envconfig:"RECEIPTS_WEBHOOK_TOLERANCE_SEC" default:"300"`
}

type DownloadConfig struct {
	Secret string        `envconfig:"RECEIPTS_DOWNLOAD_SECRET"`
	TTL    time.Duration `envconfig:"RECEIPTS_DOWNLOAD_URL_TTL" default:"15m"`
}

type StoreConfig struct {
	Name    string `envconfig:"RECEIPTS_STORE_NAME" default:"My E-commerce Store"`
	Address string `envconfig:"RECEIPTS_STORE_ADDRESS" default:"Store Address"`
	Phone   string `envconfig:"RECEIPTS_STORE_PHONE" default:"+000-000-0000"`
}

type DispatchConfig struct {
	MaxAttempts    int           `envconfig:"RECEIPTS_DISPATCH_MAX_ATTEMPTS" default:"5"`
	BackoffBase    time.Duration `envconfig:"RECEIPTS_DISPATCH_BACKOFF_BASE" default:"2s"`
	Concurrency    int           `envconfig:"RECEIPTS_DISPATCH_CONCURRENCY" default:"2"`
	PollInterval   time.Duration `envconfig:"RECEIPTS_DISPATCH_POLL_INTERVAL" default:"500ms"`
	AttemptTimeout time.Duration `envconfig:"RECEIPTS_DISPATCH_ATTEMPT_TIMEOUT" default:"60s"`
	DedupTTL       time.Duration `envconfig:"RECEIPTS_DISPATCH_DEDUP_TTL" default:"1m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RECEIPTS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RECEIPTS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RECEIPTS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"RECEIPTS_GCS_BUCKET_NAME"`
	DownloadURLExpiry time.Duration `envconfig:"RECEIPTS_GCS_DOWNLOAD_URL_EXPIRY" default:"15m"`
	CallTimeout       time.Duration `envconfig:"RECEIPTS_GCS_CALL_TIMEOUT" default:"15s"`
}

// Configured reports whether cloud storage is usable; when false the pipeline
// falls back to the local artifact store.
func (g GCSConfig) Configured() bool {
	return strings.TrimSpace(g.BucketName) != ""
}

type MailConfig struct {
	SendgridAPIKey string        `envconfig:"RECEIPTS_SENDGRID_API_KEY"`
	From           string        `envconfig:"RECEIPTS_MAIL_FROM"`
	SendTimeout    time.Duration `envconfig:"RECEIPTS_MAIL_SEND_TIMEOUT" default:"15s"`
}

func (m MailConfig) Configured() bool {
	return strings.TrimSpace(m.SendgridAPIKey) != "" && strings.TrimSpace(m.From) != ""
}

type AdminConfig struct {
	Key string `envconfig:"RECEIPTS_ADMIN_KEY"`
	// AllowUnauthenticated grants admin access to every caller when no key is
	// configured. It exists for local development only and must never be set
	// in production; startup logs a loud warning when it is on.
	AllowUnauthenticated bool `envconfig:"RECEIPTS_ALLOW_UNAUTHENTICATED_ADMIN" default:"false"`
}

type FeatureFlagsConfig struct {
	AutoMigrate  bool   `envconfig:"RECEIPTS_AUTO_MIGRATE" default:"false"`
	LocalPDFRoot string `envconfig:"RECEIPTS_LOCAL_PDF_ROOT" default:"logs/receipts"`
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
