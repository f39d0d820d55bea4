package config

const (
	EnvPrefix = "GRUNDY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv            = "GRUNDY_APP_ENV"
	EnvPort              = "GRUNDY_APP_PORT"
	EnvDBDSN             = "GRUNDY_DB_DSN"
	EnvDBHost            = "GRUNDY_DB_HOST"
	EnvDBUser            = "GRUNDY_DB_USER"
	EnvDBName            = "GRUNDY_DB_NAME"
	EnvUseSQLite         = "GRUNDY_USE_SQLITE"
	EnvRedisURL          = "GRUNDY_REDIS_URL"
	EnvJWTSecret         = "GRUNDY_JWT_SECRET"
	EnvPaystackSecretKey = "GRUNDY_PAYSTACK_SECRET_KEY"
	EnvPaystackTimeout   = "GRUNDY_PAYSTACK_TIMEOUT"
	EnvFeesPlatformShare = "GRUNDY_FEES_PLATFORM_SHARE_PERCENT"
	EnvFeesProcessorCap  = "GRUNDY_FEES_PROCESSOR_FEE_CAP"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
