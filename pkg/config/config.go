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
	Backend      BackendConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Refresh      RefreshConfig
	Notify       NotifyConfig
	GCP          GCPConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	if cfg.Backend.UsesSQL() {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if cfg.Notify.Has(NotifySinkPubSub) && strings.TrimSpace(cfg.GCP.ProjectID) == "" {
		return nil, fmt.Errorf("%s is required when the pubsub notify sink is enabled", EnvGCPProjectID)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PORTAL_APP_ENV" required:"true"`
	Port         string `envconfig:"PORTAL_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PORTAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PORTAL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PORTAL_DB_DSN"`
	Driver string `envconfig:"PORTAL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PORTAL_DB_HOST"`
	LegacyPort     int    `envconfig:"PORTAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PORTAL_DB_USER"`
	LegacyPassword string `envconfig:"PORTAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"PORTAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"PORTAL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PORTAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PORTAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PORTAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PORTAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the SQLite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

// BackendConfig selects the remote data backend the resource views talk to.
type BackendConfig struct {
	Kind    string        `envconfig:"PORTAL_BACKEND_KIND" default:"sql"`
	URL     string        `envconfig:"PORTAL_BACKEND_URL"`
	AnonKey string        `envconfig:"PORTAL_BACKEND_ANON_KEY"`
	Timeout time.Duration `envconfig:"PORTAL_BACKEND_TIMEOUT" default:"10s"`
	// ServiceToken is forwarded by background processes that have no caller.
	ServiceToken string `envconfig:"PORTAL_BACKEND_SERVICE_TOKEN"`
}

func (b BackendConfig) UsesSQL() bool {
	return b.normalizedKind() == BackendKindSQL
}

func (b BackendConfig) UsesPostgREST() bool {
	return b.normalizedKind() == BackendKindPostgREST
}

func (b BackendConfig) normalizedKind() string {
	kind := strings.ToLower(strings.TrimSpace(b.Kind))
	if kind == "" {
		return BackendKindSQL
	}
	return kind
}

func (b BackendConfig) validate() error {
	switch b.normalizedKind() {
	case BackendKindSQL:
		return nil
	case BackendKindPostgREST:
		if strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("%s is required for the %s backend", EnvBackendURL, BackendKindPostgREST)
		}
		if strings.TrimSpace(b.AnonKey) == "" {
			return fmt.Errorf("%s is required for the %s backend", EnvBackendAnonKey, BackendKindPostgREST)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvBackendKind, b.Kind)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"PORTAL_REDIS_URL"`
	Address      string        `envconfig:"PORTAL_REDIS_ADDR"`
	Password     string        `envconfig:"PORTAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"PORTAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PORTAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PORTAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PORTAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PORTAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PORTAL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"PORTAL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PORTAL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PORTAL_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RefreshConfig drives the auto-refresh loop of monitoring views.
type RefreshConfig struct {
	Interval time.Duration `envconfig:"PORTAL_REFRESH_INTERVAL" default:"30s"`
	Limit    int           `envconfig:"PORTAL_REFRESH_LIMIT" default:"100"`
	// RetentionDays bounds how long resolved system logs are kept by the purge job.
	RetentionDays int           `envconfig:"PORTAL_LOG_RETENTION_DAYS" default:"30"`
	CronInterval  time.Duration `envconfig:"PORTAL_CRON_INTERVAL" default:"1h"`
}

const (
	NotifySinkLog    = "log"
	NotifySinkPubSub = "pubsub"
)

type NotifyConfig struct {
	Sinks       []string `envconfig:"PORTAL_NOTIFY_SINKS" default:"log"`
	PubSubTopic string   `envconfig:"PORTAL_NOTIFY_PUBSUB_TOPIC" default:"portal-notifications"`
	// CreateTopic creates a missing topic at startup, for emulators and dev projects.
	CreateTopic bool `envconfig:"PORTAL_NOTIFY_PUBSUB_CREATE_TOPIC" default:"false"`
}

// Has reports whether the named sink is enabled.
func (n NotifyConfig) Has(sink string) bool {
	for _, candidate := range n.Sinks {
		if strings.EqualFold(strings.TrimSpace(candidate), sink) {
			return true
		}
	}
	return false
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PORTAL_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PORTAL_GCP_CREDENTIALS_JSON"`
}

type RateLimitConfig struct {
	InviteWindow time.Duration `envconfig:"PORTAL_RATE_LIMIT_INVITE_WINDOW" default:"1m"`
	InviteLimit  int64         `envconfig:"PORTAL_RATE_LIMIT_INVITE_LIMIT" default:"20"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PORTAL_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	AutoMigrate         bool `envconfig:"PORTAL_AUTO_MIGRATE" default:"false"`
	OptimisticMutations bool `envconfig:"PORTAL_OPTIMISTIC_MUTATIONS" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
