package config

const (
	EnvPrefix = "PORTAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "PORTAL_APP_ENV"
	EnvPort         = "PORTAL_APP_PORT"
	EnvLogLevel     = "PORTAL_LOG_LEVEL"
	EnvLogWarnStack = "PORTAL_LOG_WARN_STACK"

	EnvDBDSN      = "PORTAL_DB_DSN"
	EnvDBDriver   = "PORTAL_DB_DRIVER"
	EnvDBHost     = "PORTAL_DB_HOST"
	EnvDBPort     = "PORTAL_DB_PORT"
	EnvDBUser     = "PORTAL_DB_USER"
	EnvDBPassword = "PORTAL_DB_PASSWORD"
	EnvDBName     = "PORTAL_DB_NAME"

	EnvBackendKind    = "PORTAL_BACKEND_KIND"
	EnvBackendURL     = "PORTAL_BACKEND_URL"
	EnvBackendAnonKey = "PORTAL_BACKEND_ANON_KEY"
	EnvBackendTimeout = "PORTAL_BACKEND_TIMEOUT"

	EnvRedisURL = "PORTAL_REDIS_URL"

	EnvJWTSecret  = "PORTAL_JWT_SECRET"
	EnvJWTIssuer  = "PORTAL_JWT_ISSUER"
	EnvJWTExpMins = "PORTAL_JWT_EXPIRATION_MINUTES"

	EnvRefreshInterval = "PORTAL_REFRESH_INTERVAL"
	EnvRefreshLimit    = "PORTAL_REFRESH_LIMIT"

	EnvNotifySinks       = "PORTAL_NOTIFY_SINKS"
	EnvNotifyPubSubTopic = "PORTAL_NOTIFY_PUBSUB_TOPIC"
	EnvNotifyCreateTopic = "PORTAL_NOTIFY_PUBSUB_CREATE_TOPIC"

	EnvGCPProjectID       = "PORTAL_GCP_PROJECT_ID"
	EnvGCPCredentialsJSON = "PORTAL_GCP_CREDENTIALS_JSON"

	EnvAutoMigrate         = "PORTAL_AUTO_MIGRATE"
	EnvOptimisticMutations = "PORTAL_OPTIMISTIC_MUTATIONS"
)

const (
	BackendKindSQL       = "sql"
	BackendKindPostgREST = "postgrest"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
