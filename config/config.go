package config

import "time"

type Config struct {
	AppName                       string        `env:"APP_NAME" env-default:"poppy-api"`
	Version                       string        `env:"APP_VERSION" env-default:"dev"`
	Port                          int           `env:"PORT" env-default:"8080"`
	LogLevel                      string        `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool          `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int           `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int           `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int           `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int           `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeout               time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	// Timezone used for "now" when a search omits the time
	Timezone string `env:"TIMEZONE" env-default:"Asia/Seoul"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:"postgres"`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"poppy"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated); empty disables job events
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:""`
	// Kafka topic for batch job lifecycle events
	KafkaJobTopic string `env:"KAFKA_JOB_TOPIC" env-default:"poppy.batch-jobs"`

	// Places API
	PlacesBaseURL        string        `env:"PLACES_BASE_URL" env-default:"https://places.googleapis.com"`
	PlacesAPIKey         string        `env:"PLACES_API_KEY" env-default:""`
	PlacesLanguageCode   string        `env:"PLACES_LANGUAGE_CODE" env-default:"ko"`
	PlacesIncludedTypes  []string      `env:"PLACES_INCLUDED_TYPES" env-default:"cafe"`
	PlacesMaxResultCount int           `env:"PLACES_MAX_RESULT_COUNT" env-default:"20"`
	PlacesTimeout        time.Duration `env:"PLACES_TIMEOUT" env-default:"10s"`
	PlacesMaxAttempts    int           `env:"PLACES_MAX_ATTEMPTS" env-default:"3"`

	// Grid collection
	GridPointsFile        string        `env:"GRID_POINTS_FILE" env-default:""`
	CollectorRadius       float64       `env:"COLLECTOR_RADIUS" env-default:"3000"`
	CollectorConcurrency  int           `env:"COLLECTOR_CONCURRENCY" env-default:"3"`
	CollectorRequestDelay time.Duration `env:"COLLECTOR_REQUEST_DELAY" env-default:"1s"`

	// Raw data processing
	ProcessorPageSize  int           `env:"PROCESSOR_PAGE_SIZE" env-default:"100"`
	ProcessorPageDelay time.Duration `env:"PROCESSOR_PAGE_DELAY" env-default:"100ms"`

	// Batch jobs
	BatchStuckTimeout time.Duration `env:"BATCH_STUCK_TIMEOUT" env-default:"6h"`

	// Search
	SearchCacheTTL   time.Duration `env:"SEARCH_CACHE_TTL" env-default:"5m"`
	SearchRateLimit  int           `env:"SEARCH_RATE_LIMIT" env-default:"120"`
	SearchRateWindow time.Duration `env:"SEARCH_RATE_WINDOW" env-default:"1m"`

	// Scheduler settings
	// Enable/disable the scheduler
	SchedulerEnabled bool `env:"SCHEDULER_ENABLED" env-default:"false"`
	// Scheduler poll interval
	SchedulerPollInterval        time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"30s"`
	SchedulerCollectInterval     time.Duration `env:"SCHEDULER_COLLECT_INTERVAL" env-default:"720h"`
	SchedulerProcessInterval     time.Duration `env:"SCHEDULER_PROCESS_INTERVAL" env-default:"24h"`
	SchedulerRetryFailedInterval time.Duration `env:"SCHEDULER_RETRY_FAILED_INTERVAL" env-default:"24h"`
	SchedulerCleanupInterval     time.Duration `env:"SCHEDULER_CLEANUP_INTERVAL" env-default:"1h"`
	SchedulerGaugesInterval      time.Duration `env:"SCHEDULER_GAUGES_INTERVAL" env-default:"1m"`
	SchedulerLockTTL             time.Duration `env:"SCHEDULER_LOCK_TTL" env-default:"30m"`

	// Tracing settings
	// Span exporter: otlp, log or none
	TraceExporter string `env:"TRACE_EXPORTER" env-default:"none"`
	// Fraction of traces sampled
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" env-default:"1"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}
