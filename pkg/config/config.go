package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	CORS          CORSConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Tables        TablesConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.ensureDSN(),
		cfg.JWT.validate(),
		cfg.Tables.validate(),
		cfg.Cron.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLESIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLESIDE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TABLESIDE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TABLESIDE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TABLESIDE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// CORSConfig lists the browser origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"TABLESIDE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173,https://tableside.app"`
	MaxAge         int      `envconfig:"TABLESIDE_CORS_MAX_AGE" default:"300"`
}

type ServiceConfig struct {
	Kind string `envconfig:"TABLESIDE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TABLESIDE_DB_DSN"`
	Driver string `envconfig:"TABLESIDE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TABLESIDE_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLESIDE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLESIDE_DB_USER"`
	LegacyPassword string `envconfig:"TABLESIDE_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLESIDE_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLESIDE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLESIDE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLESIDE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLESIDE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLESIDE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TABLESIDE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLESIDE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TABLESIDE_REDIS_ADDR"`
	Password     string        `envconfig:"TABLESIDE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLESIDE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLESIDE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLESIDE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLESIDE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLESIDE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLESIDE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"TABLESIDE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"TABLESIDE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"TABLESIDE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"TABLESIDE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TABLESIDE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TABLESIDE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TABLESIDE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TABLESIDE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TABLESIDE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"TABLESIDE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"TABLESIDE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"TABLESIDE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"TABLESIDE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"TABLESIDE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"TABLESIDE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"TABLESIDE_AUTO_MIGRATE" default:"false"`
	SeedLocations bool `envconfig:"TABLESIDE_SEED_LOCATIONS" default:"false"`
}

// TablesConfig bounds the table lifecycle and the room session timings.
type TablesConfig struct {
	StatusCacheTTL        time.Duration `envconfig:"TABLESIDE_TABLE_STATUS_CACHE_TTL" default:"10s"`
	MinSeats              int           `envconfig:"TABLESIDE_TABLE_MIN_SEATS" default:"2"`
	MaxSeats              int           `envconfig:"TABLESIDE_TABLE_MAX_SEATS" default:"12"`
	PromptMaxLength       int           `envconfig:"TABLESIDE_TABLE_PROMPT_MAX_LENGTH" default:"200"`
	EndedRedirectDelay    time.Duration `envconfig:"TABLESIDE_ROOM_ENDED_REDIRECT_DELAY" default:"3s"`
	InactiveRedirectDelay time.Duration `envconfig:"TABLESIDE_ROOM_INACTIVE_REDIRECT_DELAY" default:"5s"`
	DeletedRedirectDelay  time.Duration `envconfig:"TABLESIDE_ROOM_DELETED_REDIRECT_DELAY" default:"2s"`
	ReconcileBatchSize    int           `envconfig:"TABLESIDE_TABLE_RECONCILE_BATCH_SIZE" default:"200"`
}

func (t TablesConfig) validate() error {
	if t.MinSeats < 1 || t.MaxSeats < t.MinSeats {
		return fmt.Errorf("invalid seat bounds: min=%d max=%d", t.MinSeats, t.MaxSeats)
	}
	if t.StatusCacheTTL < 0 {
		return fmt.Errorf("%s must not be negative", EnvTableStatusCacheTTL)
	}
	return nil
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TABLESIDE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TABLESIDE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TABLESIDE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TABLESIDE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TableEventsTopic        string `envconfig:"TABLESIDE_PUBSUB_TABLE_EVENTS_TOPIC" default:"ts-table-events"`
	TableEventsSubscription string `envconfig:"TABLESIDE_PUBSUB_TABLE_EVENTS_SUBSCRIPTION" default:"ts-table-events-analytics"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"TABLESIDE_BIGQUERY_DATASET" default:"tableside"`
	TableEventsTable string `envconfig:"TABLESIDE_BIGQUERY_TABLE_EVENTS_TABLE" default:"table_events"`
	AutoCreate       bool   `envconfig:"TABLESIDE_BIGQUERY_AUTO_CREATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TABLESIDE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"TABLESIDE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"TABLESIDE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"TABLESIDE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"TABLESIDE_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"TABLESIDE_CRON_LOCK_TTL" default:"55s"`
	ReconcileEvery time.Duration `envconfig:"TABLESIDE_CRON_RECONCILE_EVERY" default:"5m"`
	PruneEvery     time.Duration `envconfig:"TABLESIDE_CRON_PRUNE_EVERY" default:"24h"`
}

// ensureDSN assembles a postgres URL from the discrete TABLESIDE_DB_* fields
// when TABLESIDE_DB_DSN is unset.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		u.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}

func (j JWTConfig) validate() error {
	if j.ExpirationMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvJWTExpMins)
	}
	if j.RefreshTokenTTLMinutes > 0 && j.RefreshTokenTTLMinutes <= j.ExpirationMinutes {
		return fmt.Errorf("%s must exceed %s", EnvRefreshTokenTTLMinutes, EnvJWTExpMins)
	}
	return nil
}

// validate rejects a lock that outlives the tick, which would skip every other run.
func (c CronConfig) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%s must be positive", EnvCronInterval)
	}
	if c.LockTTL <= 0 || c.LockTTL >= c.Interval {
		return fmt.Errorf("%s must be positive and shorter than %s", EnvCronLockTTL, EnvCronInterval)
	}
	return nil
}
