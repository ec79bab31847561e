package config

const (
	EnvPrefix = "LOCALLINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:locallink.db?cache=shared&_busy_timeout=5000"
)

const (
	EnvAppEnv      = "LOCALLINK_APP_ENV"
	EnvPort        = "LOCALLINK_APP_PORT"
	EnvDBDSN       = "LOCALLINK_DB_DSN"
	EnvDBDriver    = "LOCALLINK_DB_DRIVER"
	EnvDBHost      = "LOCALLINK_DB_HOST"
	EnvDBUser      = "LOCALLINK_DB_USER"
	EnvDBName      = "LOCALLINK_DB_NAME"
	EnvRedisURL    = "LOCALLINK_REDIS_URL"
	EnvJWTSecret   = "LOCALLINK_JWT_SECRET"
	EnvJWTIssuer   = "LOCALLINK_JWT_ISSUER"
	EnvJWTExpMins  = "LOCALLINK_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite   = "LOCALLINK_USE_SQLITE"
	EnvDomainTopic = "LOCALLINK_PUBSUB_DOMAIN_TOPIC"
	EnvGCPProject  = "LOCALLINK_GCP_PROJECT_ID"
	EnvLogFormat   = "LOCALLINK_LOG_FORMAT"
	EnvGraceWindow = "LOCALLINK_MARKET_DEAD_LEAD_GRACE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
