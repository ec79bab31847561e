package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Store         StoreConfig
	Market        MarketConfig
	Assistant     AssistantConfig
	Cron          CronConfig
	Admin         AdminConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"LOCALLINK_APP_ENV" required:"true"`
	Port           string   `envconfig:"LOCALLINK_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"LOCALLINK_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"LOCALLINK_LOG_WARN_STACK" default:"false"`
	LogFormat      string   `envconfig:"LOCALLINK_LOG_FORMAT" default:"json"`
	LogDebugSample uint32   `envconfig:"LOCALLINK_LOG_DEBUG_SAMPLE" default:"0"`
	AllowedOrigins []string `envconfig:"LOCALLINK_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOCALLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOCALLINK_DB_DSN"`
	Driver string `envconfig:"LOCALLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOCALLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"LOCALLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOCALLINK_DB_USER"`
	LegacyPassword string `envconfig:"LOCALLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOCALLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOCALLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOCALLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOCALLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOCALLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOCALLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LOCALLINK_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LOCALLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOCALLINK_REDIS_ADDR"`
	Password     string        `envconfig:"LOCALLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOCALLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOCALLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOCALLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOCALLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOCALLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOCALLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOCALLINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOCALLINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOCALLINK_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LOCALLINK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LOCALLINK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LOCALLINK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LOCALLINK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LOCALLINK_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"LOCALLINK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginPhoneLimit    int           `envconfig:"LOCALLINK_AUTH_RATE_LIMIT_LOGIN_PHONE_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"LOCALLINK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"LOCALLINK_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterPhoneLimit int           `envconfig:"LOCALLINK_AUTH_RATE_LIMIT_REGISTER_PHONE_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"LOCALLINK_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LOCALLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LOCALLINK_AUTO_MIGRATE" default:"false"`
	MemoryStore bool `envconfig:"LOCALLINK_MEMORY_STORE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"LOCALLINK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LOCALLINK_GCP_PROJECT_ID"`
}

// PubSubConfig is optional; an empty DomainTopic disables event publishing.
type PubSubConfig struct {
	DomainTopic              string `envconfig:"LOCALLINK_PUBSUB_DOMAIN_TOPIC"`
	NotificationSubscription string `envconfig:"LOCALLINK_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
	CreateMissing            bool   `envconfig:"LOCALLINK_PUBSUB_CREATE_MISSING" default:"false"`
}

// Enabled reports whether domain events should be published.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.DomainTopic) != ""
}

type StoreConfig struct {
	ChangeChannel  string        `envconfig:"LOCALLINK_STORE_CHANGE_CHANNEL" default:"ll:docstore:changes"`
	ResyncInterval time.Duration `envconfig:"LOCALLINK_STORE_RESYNC_INTERVAL" default:"30s"`
	WriteRetries   int           `envconfig:"LOCALLINK_STORE_WRITE_RETRIES" default:"3"`
}

type MarketConfig struct {
	DeadLeadGrace     time.Duration `envconfig:"LOCALLINK_MARKET_DEAD_LEAD_GRACE" default:"10m"`
	UpdateTTL         time.Duration `envconfig:"LOCALLINK_MARKET_UPDATE_TTL" default:"24h"`
	UpdatesLimit      int           `envconfig:"LOCALLINK_MARKET_UPDATES_LIMIT" default:"20"`
	NotificationLimit int           `envconfig:"LOCALLINK_MARKET_NOTIFICATION_LIMIT" default:"50"`
	StreamHeartbeat   time.Duration `envconfig:"LOCALLINK_MARKET_STREAM_HEARTBEAT" default:"25s"`
}

type AssistantConfig struct {
	Endpoint         string        `envconfig:"LOCALLINK_ASSISTANT_ENDPOINT"`
	TranscribeURL    string        `envconfig:"LOCALLINK_ASSISTANT_TRANSCRIBE_URL"`
	APIKey           string        `envconfig:"LOCALLINK_ASSISTANT_API_KEY"`
	Timeout          time.Duration `envconfig:"LOCALLINK_ASSISTANT_TIMEOUT" default:"60s"`
	FallbackResponse string        `envconfig:"LOCALLINK_ASSISTANT_FALLBACK" default:"Sorry, main abhi connect nahi kar pa raha. Thodi der baad try karein."`
}

// AdminConfig provisions the founder console login. An empty secret
// disables it.
type AdminConfig struct {
	ID     string `envconfig:"LOCALLINK_ADMIN_ID" default:"founder_001"`
	Name   string `envconfig:"LOCALLINK_ADMIN_NAME" default:"The Founder"`
	Phone  string `envconfig:"LOCALLINK_ADMIN_PHONE" default:"007"`
	City   string `envconfig:"LOCALLINK_ADMIN_CITY" default:"Global"`
	Secret string `envconfig:"LOCALLINK_ADMIN_SECRET"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"LOCALLINK_CRON_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"LOCALLINK_CRON_LOCK_TTL" default:"5m"`
	AcceptanceStale time.Duration `envconfig:"LOCALLINK_CRON_ACCEPTANCE_STALE" default:"2m"`
	DeadLeadEvery   time.Duration `envconfig:"LOCALLINK_CRON_DEAD_LEAD_EVERY" default:"5m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
