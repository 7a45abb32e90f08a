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
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Razorpay     RazorpayConfig
	OpenAI       OpenAIConfig
	Files        FilesConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"SEMANTICPDF_APP_ENV" required:"true"`
	Port         string `envconfig:"SEMANTICPDF_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SEMANTICPDF_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SEMANTICPDF_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SEMANTICPDF_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SEMANTICPDF_DB_DSN"`
	Driver string `envconfig:"SEMANTICPDF_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SEMANTICPDF_DB_HOST"`
	LegacyPort     int    `envconfig:"SEMANTICPDF_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SEMANTICPDF_DB_USER"`
	LegacyPassword string `envconfig:"SEMANTICPDF_DB_PASSWORD"`
	LegacyName     string `envconfig:"SEMANTICPDF_DB_NAME"`
	LegacySSLMode  string `envconfig:"SEMANTICPDF_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SEMANTICPDF_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SEMANTICPDF_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SEMANTICPDF_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SEMANTICPDF_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SEMANTICPDF_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SEMANTICPDF_REDIS_ADDR"`
	Password     string        `envconfig:"SEMANTICPDF_REDIS_PASSWORD"`
	DB           int           `envconfig:"SEMANTICPDF_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SEMANTICPDF_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SEMANTICPDF_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SEMANTICPDF_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SEMANTICPDF_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SEMANTICPDF_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SEMANTICPDF_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SEMANTICPDF_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SEMANTICPDF_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SEMANTICPDF_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SEMANTICPDF_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SEMANTICPDF_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SEMANTICPDF_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SEMANTICPDF_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SEMANTICPDF_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SEMANTICPDF_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SEMANTICPDF_AUTO_MIGRATE" default:"false"`
}

type RazorpayConfig struct {
	KeyID      string        `envconfig:"SEMANTICPDF_RAZORPAY_KEY_ID" required:"true"`
	KeySecret  string        `envconfig:"SEMANTICPDF_RAZORPAY_KEY_SECRET" required:"true"`
	PlanID     string        `envconfig:"SEMANTICPDF_RAZORPAY_PLAN_ID" required:"true"`
	BaseURL    string        `envconfig:"SEMANTICPDF_RAZORPAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	Timeout    time.Duration `envconfig:"SEMANTICPDF_RAZORPAY_TIMEOUT" default:"10s"`
	TotalCount int           `envconfig:"SEMANTICPDF_RAZORPAY_TOTAL_COUNT" default:"12"`
}

type OpenAIConfig struct {
	APIKey         string `envconfig:"SEMANTICPDF_OPENAI_API_KEY"`
	ChatModel      string `envconfig:"SEMANTICPDF_OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	EmbeddingBatch int    `envconfig:"SEMANTICPDF_OPENAI_EMBEDDING_BATCH" default:"64"`
}

type FilesConfig struct {
	MaxUploadMB  int `envconfig:"SEMANTICPDF_MAX_UPLOAD_MB" default:"25"`
	ChunkSize    int `envconfig:"SEMANTICPDF_FILE_CHUNK_SIZE" default:"1200"`
	ChunkOverlap int `envconfig:"SEMANTICPDF_FILE_CHUNK_OVERLAP" default:"200"`
}

type CronConfig struct {
	ReconcileInterval  time.Duration `envconfig:"SEMANTICPDF_CRON_RECONCILE_INTERVAL" default:"1h"`
	ReconcileBatchSize int           `envconfig:"SEMANTICPDF_CRON_RECONCILE_BATCH_SIZE" default:"100"`
	FileCleanupMaxAge  time.Duration `envconfig:"SEMANTICPDF_CRON_FILE_CLEANUP_MAX_AGE" default:"24h"`
	LockTTL            time.Duration `envconfig:"SEMANTICPDF_CRON_LOCK_TTL" default:"10m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SEMANTICPDF_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SEMANTICPDF_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SEMANTICPDF_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic        string `envconfig:"SEMANTICPDF_PUBSUB_BILLING_TOPIC" required:"true"`
	BillingSubscription string `envconfig:"SEMANTICPDF_PUBSUB_BILLING_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SEMANTICPDF_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SEMANTICPDF_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SEMANTICPDF_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
