package config

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "MARKETPLACE_APP_ENV"
	EnvPort   = "MARKETPLACE_APP_PORT"

	EnvDBDSN  = "MARKETPLACE_DB_DSN"
	EnvDBHost = "MARKETPLACE_DB_HOST"
	EnvDBUser = "MARKETPLACE_DB_USER"
	EnvDBName = "MARKETPLACE_DB_NAME"

	EnvRedisURL = "MARKETPLACE_REDIS_URL"

	EnvPayoutCommissionRate = "MARKETPLACE_PAYOUT_COMMISSION_RATE_PCT"
	EnvPayoutGSTRate        = "MARKETPLACE_PAYOUT_GST_RATE_PCT"
	EnvPayoutMinimumAmount  = "MARKETPLACE_PAYOUT_MINIMUM_AMOUNT"
	EnvPayoutDelayDays      = "MARKETPLACE_PAYOUT_DELAY_DAYS"
	EnvPayoutMaxAttempts    = "MARKETPLACE_PAYOUT_MAX_ATTEMPTS"
	EnvPayoutTransferPrefix = "MARKETPLACE_PAYOUT_TRANSFER_PREFIX"
	EnvPayoutPendingGrace   = "MARKETPLACE_PAYOUT_PENDING_GRACE"

	EnvProviderWebhookSecret = "MARKETPLACE_PROVIDER_WEBHOOK_SECRET"
	EnvCronDailyBatchSpec    = "MARKETPLACE_CRON_DAILY_BATCH_SPEC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

var payoutDecimalEnvVars = []string{EnvPayoutCommissionRate, EnvPayoutGSTRate, EnvPayoutMinimumAmount}
