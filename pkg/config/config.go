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
	Ledger       LedgerConfig
	Submission   SubmissionConfig
	Wallet       WalletConfig
	Booking      BookingConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EXPERIENCES_APP_ENV" required:"true"`
	Port         string `envconfig:"EXPERIENCES_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"EXPERIENCES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EXPERIENCES_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists browser origins allowed to read the catalog.
	CORSOrigins []string `envconfig:"EXPERIENCES_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EXPERIENCES_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EXPERIENCES_DB_DSN"`
	Driver string `envconfig:"EXPERIENCES_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"EXPERIENCES_DB_HOST"`
	Port     int    `envconfig:"EXPERIENCES_DB_PORT" default:"5432"`
	User     string `envconfig:"EXPERIENCES_DB_USER"`
	Password string `envconfig:"EXPERIENCES_DB_PASSWORD"`
	Name     string `envconfig:"EXPERIENCES_DB_NAME"`
	SSLMode  string `envconfig:"EXPERIENCES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EXPERIENCES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EXPERIENCES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EXPERIENCES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EXPERIENCES_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EXPERIENCES_REDIS_URL"`
	Address      string        `envconfig:"EXPERIENCES_REDIS_ADDR"`
	Password     string        `envconfig:"EXPERIENCES_REDIS_PASSWORD"`
	DB           int           `envconfig:"EXPERIENCES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EXPERIENCES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EXPERIENCES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EXPERIENCES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EXPERIENCES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EXPERIENCES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LedgerConfig points the ledger client at the escrow contract.
type LedgerConfig struct {
	RPCURL              string        `envconfig:"EXPERIENCES_LEDGER_RPC_URL" required:"true"`
	ContractAddress     string        `envconfig:"EXPERIENCES_LEDGER_CONTRACT_ADDRESS" required:"true"`
	ChainID             int64         `envconfig:"EXPERIENCES_LEDGER_CHAIN_ID" default:"84532"`
	Decimals            int32         `envconfig:"EXPERIENCES_LEDGER_DECIMALS" default:"18"`
	ConfirmationTimeout time.Duration `envconfig:"EXPERIENCES_LEDGER_CONFIRMATION_TIMEOUT" default:"2m"`
	SettleDelay         time.Duration `envconfig:"EXPERIENCES_LEDGER_SETTLE_DELAY" default:"2s"`
	CounterFallback     bool          `envconfig:"EXPERIENCES_LEDGER_COUNTER_FALLBACK" default:"true"`
	OperatorKey         string        `envconfig:"EXPERIENCES_LEDGER_OPERATOR_KEY"`
}

func (l LedgerConfig) validate() error {
	if l.Decimals < 0 || l.Decimals > 36 {
		return fmt.Errorf("%s must be between 0 and 36", EnvLedgerDecimals)
	}
	if l.ChainID <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerChainID)
	}
	return nil
}

// SubmissionConfig tunes the transaction submission retry loop.
type SubmissionConfig struct {
	MaxAttempts int           `envconfig:"EXPERIENCES_SUBMISSION_MAX_ATTEMPTS" default:"3"`
	BaseBackoff time.Duration `envconfig:"EXPERIENCES_SUBMISSION_BASE_BACKOFF" default:"2s"`
	Deadline    time.Duration `envconfig:"EXPERIENCES_SUBMISSION_DEADLINE" default:"0s"`
	InFlightTTL time.Duration `envconfig:"EXPERIENCES_SUBMISSION_IN_FLIGHT_TTL" default:"3m"`
}

type WalletConfig struct {
	Network        string        `envconfig:"EXPERIENCES_WALLET_NETWORK" default:"base-sepolia"`
	CustodyURL     string        `envconfig:"EXPERIENCES_WALLET_CUSTODY_URL"`
	CustodyAPIKey  string        `envconfig:"EXPERIENCES_WALLET_CUSTODY_API_KEY"`
	FaucetToken    string        `envconfig:"EXPERIENCES_WALLET_FAUCET_TOKEN" default:"eth"`
	RemoteURL      string        `envconfig:"EXPERIENCES_WALLET_REMOTE_URL"`
	ServiceSecret  string        `envconfig:"EXPERIENCES_WALLET_SERVICE_SECRET"`
	ServiceIssuer  string        `envconfig:"EXPERIENCES_WALLET_SERVICE_ISSUER" default:"experiences"`
	ServiceTTL     time.Duration `envconfig:"EXPERIENCES_WALLET_SERVICE_TTL" default:"1m"`
	NameCacheTTL   time.Duration `envconfig:"EXPERIENCES_WALLET_NAME_CACHE_TTL" default:"720h"`
	RequestTimeout time.Duration `envconfig:"EXPERIENCES_WALLET_REQUEST_TIMEOUT" default:"15s"`
}

// UseRemote reports whether provisioning should go through the wallet backend.
func (w WalletConfig) UseRemote() bool {
	return strings.TrimSpace(w.RemoteURL) != ""
}

type BookingConfig struct {
	SessionTTL time.Duration `envconfig:"EXPERIENCES_BOOKING_SESSION_TTL" default:"2h"`
}

// RateLimitConfig sets fixed-window limits per client IP for the public surface.
type RateLimitConfig struct {
	Window         time.Duration `envconfig:"EXPERIENCES_RATE_LIMIT_WINDOW" default:"1m"`
	ProvisionLimit int           `envconfig:"EXPERIENCES_RATE_LIMIT_PROVISION" default:"30"`
	ReadLimit      int           `envconfig:"EXPERIENCES_RATE_LIMIT_READ" default:"300"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EXPERIENCES_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EXPERIENCES_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"EXPERIENCES_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"EXPERIENCES_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"EXPERIENCES_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	ExperiencesTopic        string `envconfig:"EXPERIENCES_PUBSUB_EXPERIENCES_TOPIC" default:"experience-events"`
	ExperiencesSubscription string `envconfig:"EXPERIENCES_PUBSUB_EXPERIENCES_SUBSCRIPTION"`
	BookingsTopic           string `envconfig:"EXPERIENCES_PUBSUB_BOOKINGS_TOPIC" default:"booking-events"`
	BookingsSubscription    string `envconfig:"EXPERIENCES_PUBSUB_BOOKINGS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EXPERIENCES_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EXPERIENCES_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EXPERIENCES_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MaintenanceConfig drives the retention sweeps run by the maintenance worker.
type MaintenanceConfig struct {
	Interval         time.Duration `envconfig:"EXPERIENCES_MAINTENANCE_INTERVAL" default:"1h"`
	LockTTL          time.Duration `envconfig:"EXPERIENCES_MAINTENANCE_LOCK_TTL" default:"55m"`
	OutboxRetention  time.Duration `envconfig:"EXPERIENCES_MAINTENANCE_OUTBOX_RETENTION" default:"720h"`
	AttemptRetention time.Duration `envconfig:"EXPERIENCES_MAINTENANCE_ATTEMPT_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:experiences.db?cache=shared"
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
