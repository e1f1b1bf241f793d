package config

// EnvPrefix is handed to envconfig; every field carries its full name explicitly.
const EnvPrefix = "EXPERIENCES"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "EXPERIENCES_APP_ENV"
	EnvPort               = "EXPERIENCES_APP_PORT"
	EnvDBDSN              = "EXPERIENCES_DB_DSN"
	EnvDBHost             = "EXPERIENCES_DB_HOST"
	EnvDBUser             = "EXPERIENCES_DB_USER"
	EnvDBName             = "EXPERIENCES_DB_NAME"
	EnvRedisURL           = "EXPERIENCES_REDIS_URL"
	EnvLedgerRPCURL       = "EXPERIENCES_LEDGER_RPC_URL"
	EnvLedgerContract     = "EXPERIENCES_LEDGER_CONTRACT_ADDRESS"
	EnvLedgerChainID      = "EXPERIENCES_LEDGER_CHAIN_ID"
	EnvLedgerDecimals     = "EXPERIENCES_LEDGER_DECIMALS"
	EnvSubmissionAttempts = "EXPERIENCES_SUBMISSION_MAX_ATTEMPTS"
	EnvSubmissionBackoff  = "EXPERIENCES_SUBMISSION_BASE_BACKOFF"
	EnvWalletRemoteURL    = "EXPERIENCES_WALLET_REMOTE_URL"
	EnvUseSQLite          = "EXPERIENCES_USE_SQLITE"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
