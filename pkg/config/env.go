package config

// EnvPrefix is the envconfig prefix shared by every variable below.
const EnvPrefix = "SEMANTICPDF"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "SEMANTICPDF_APP_ENV"
	EnvPort     = "SEMANTICPDF_APP_PORT"
	EnvLogLevel = "SEMANTICPDF_LOG_LEVEL"

	EnvDBDSN  = "SEMANTICPDF_DB_DSN"
	EnvDBHost = "SEMANTICPDF_DB_HOST"
	EnvDBUser = "SEMANTICPDF_DB_USER"
	EnvDBName = "SEMANTICPDF_DB_NAME"

	EnvRedisURL = "SEMANTICPDF_REDIS_URL"

	EnvJWTSecret              = "SEMANTICPDF_JWT_SECRET"
	EnvJWTIssuer              = "SEMANTICPDF_JWT_ISSUER"
	EnvJWTExpMins             = "SEMANTICPDF_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SEMANTICPDF_REFRESH_TOKEN_TTL_MINUTES"

	EnvRazorpayKeyID     = "SEMANTICPDF_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret = "SEMANTICPDF_RAZORPAY_KEY_SECRET"
	EnvRazorpayPlanID    = "SEMANTICPDF_RAZORPAY_PLAN_ID"

	EnvOpenAIAPIKey = "SEMANTICPDF_OPENAI_API_KEY"

	EnvGCPProjectID = "SEMANTICPDF_GCP_PROJECT_ID"

	EnvPubSubBillingTopic        = "SEMANTICPDF_PUBSUB_BILLING_TOPIC"
	EnvPubSubBillingSubscription = "SEMANTICPDF_PUBSUB_BILLING_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{
	EnvDBHost,
	EnvDBUser,
	EnvDBName,
}
