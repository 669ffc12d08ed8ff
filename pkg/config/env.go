package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "WDIR_APP_ENV"
	EnvPort          = "WDIR_APP_PORT"
	EnvDBDSN         = "WDIR_DB_DSN"
	EnvDBHost        = "WDIR_DB_HOST"
	EnvDBUser        = "WDIR_DB_USER"
	EnvDBName        = "WDIR_DB_NAME"
	EnvRedisURL      = "WDIR_REDIS_URL"
	EnvJWTSecret     = "WDIR_JWT_SECRET"
	EnvAdminEmails   = "WDIR_ADMIN_EMAILS"
	EnvCodePepper    = "WDIR_VERIFY_CODE_PEPPER"
	EnvDeviceAttempt = "WDIR_VERIFY_DEVICE_MAX_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
