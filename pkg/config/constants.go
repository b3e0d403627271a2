package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "RECEIPTS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv     = "RECEIPTS_APP_ENV"
	EnvPort       = "RECEIPTS_APP_PORT"
	EnvDBDSN      = "RECEIPTS_DB_DSN"
	EnvDBHost     = "RECEIPTS_DB_HOST"
	EnvDBUser     = "RECEIPTS_DB_USER"
	EnvDBName     = "RECEIPTS_DB_NAME"
	EnvRedisURL   = "RECEIPTS_REDIS_URL"
	EnvStoreName  = "RECEIPTS_STORE_NAME"
	EnvAdminKey   = "RECEIPTS_ADMIN_KEY"
	EnvGCSBucket  = "RECEIPTS_GCS_BUCKET_NAME"
	EnvMailAPIKey = "RECEIPTS_SENDGRID_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
