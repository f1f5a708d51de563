package config

const EnvPrefix = "TABLESIDE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "TABLESIDE_APP_ENV"
	EnvPort                   = "TABLESIDE_APP_PORT"
	EnvLogLevel               = "TABLESIDE_LOG_LEVEL"
	EnvDBDSN                  = "TABLESIDE_DB_DSN"
	EnvDBHost                 = "TABLESIDE_DB_HOST"
	EnvDBUser                 = "TABLESIDE_DB_USER"
	EnvDBName                 = "TABLESIDE_DB_NAME"
	EnvRedisURL               = "TABLESIDE_REDIS_URL"
	EnvJWTSecret              = "TABLESIDE_JWT_SECRET"
	EnvJWTIssuer              = "TABLESIDE_JWT_ISSUER"
	EnvJWTExpMins             = "TABLESIDE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "TABLESIDE_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "TABLESIDE_GCP_PROJECT_ID"
	EnvPubSubTableEventsTopic = "TABLESIDE_PUBSUB_TABLE_EVENTS_TOPIC"
	EnvPubSubTableEventsSub   = "TABLESIDE_PUBSUB_TABLE_EVENTS_SUBSCRIPTION"
	EnvTableStatusCacheTTL    = "TABLESIDE_TABLE_STATUS_CACHE_TTL"
	EnvTableMinSeats          = "TABLESIDE_TABLE_MIN_SEATS"
	EnvTableMaxSeats          = "TABLESIDE_TABLE_MAX_SEATS"
	EnvRoomEndedRedirectDelay = "TABLESIDE_ROOM_ENDED_REDIRECT_DELAY"
	EnvRoomInactiveRedirect   = "TABLESIDE_ROOM_INACTIVE_REDIRECT_DELAY"
	EnvSeedLocations          = "TABLESIDE_SEED_LOCATIONS"
	EnvAutoMigrate            = "TABLESIDE_AUTO_MIGRATE"
	EnvCronInterval           = "TABLESIDE_CRON_INTERVAL"
	EnvCronLockTTL            = "TABLESIDE_CRON_LOCK_TTL"
)
