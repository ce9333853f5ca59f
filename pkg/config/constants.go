package config

// EnvPrefix namespaces every environment variable the app reads.
const EnvPrefix = "SHOPLY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "SHOPLY_APP_ENV"
	EnvPort     = "SHOPLY_APP_PORT"
	EnvDBDSN    = "SHOPLY_DB_DSN"
	EnvDBHost   = "SHOPLY_DB_HOST"
	EnvDBUser   = "SHOPLY_DB_USER"
	EnvDBName   = "SHOPLY_DB_NAME"
	EnvRedisURL = "SHOPLY_REDIS_URL"

	EnvStripeAPIKey = "SHOPLY_STRIPE_API_KEY"
	EnvStripeSecret = "SHOPLY_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
