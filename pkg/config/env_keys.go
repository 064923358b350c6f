package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names so
// the prefix only matters for fields without a tag.
const EnvPrefix = "SHOPLINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "SHOPLINE_APP_ENV"
	EnvPort   = "SHOPLINE_APP_PORT"

	EnvDBDSN  = "SHOPLINE_DB_DSN"
	EnvDBHost = "SHOPLINE_DB_HOST"
	EnvDBUser = "SHOPLINE_DB_USER"
	EnvDBName = "SHOPLINE_DB_NAME"

	EnvRedisURL = "SHOPLINE_REDIS_URL"

	EnvJWTSecret              = "SHOPLINE_JWT_SECRET"
	EnvJWTIssuer              = "SHOPLINE_JWT_ISSUER"
	EnvJWTExpMins             = "SHOPLINE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SHOPLINE_REFRESH_TOKEN_TTL_MINUTES"

	EnvGCPProjectID = "SHOPLINE_GCP_PROJECT_ID"
	EnvGCSBucket    = "SHOPLINE_GCS_BUCKET_NAME"

	EnvFirebaseWebAPIKey = "SHOPLINE_FIREBASE_WEB_API_KEY"

	EnvPubSubOrdersTopic = "SHOPLINE_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
