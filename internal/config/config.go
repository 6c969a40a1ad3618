package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRewardConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// SnowflakeNode must be unique per running process.
	SnowflakeNode int64

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Network NetworkConfig

	JWTSecret string

	Redis RedisConfig

	RateLimit RateLimitConfig

	Notification NotificationConfig

	Webhooks WebhookSecrets

	Scheduler SchedulerConfig
}

// TelemetryConfig feeds logging, tracing and OTLP metrics.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OTLPEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// NetworkConfig controls the placement tree shape.
type NetworkConfig struct {
	TreeMode            string
	PlacementMaxDepth   int
	PlacementMaxRetries int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// RateLimitConfig bounds webhook deliveries per provider and source address.
type RateLimitConfig struct {
	WebhookRate  float64
	WebhookBurst int
}

type NotificationConfig struct {
	AMQPURL    string
	Queue      string
	MaxRetries int
}

type WebhookSecrets struct {
	MobileMoneySecret string
	FlutterwaveHash   string
}

type SchedulerConfig struct {
	Interval          time.Duration
	JobTimeout        time.Duration
	BatchSize         int
	PaymentStaleAfter time.Duration
	EnabledJobs       string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "sponsornet"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTLPEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sponsornet"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		Network: NetworkConfig{
			TreeMode:            strings.ToLower(getenv("TREE_MODE", "ternary")),
			PlacementMaxDepth:   int(getenvInt64("PLACEMENT_MAX_DEPTH", 64)),
			PlacementMaxRetries: int(getenvInt64("PLACEMENT_MAX_RETRIES", 3)),
		},
		JWTSecret: strings.TrimSpace(getenv("JWT_SECRET", "")),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			WebhookRate:  getenvFloat("WEBHOOK_RATE_LIMIT", 20),
			WebhookBurst: int(getenvInt64("WEBHOOK_RATE_BURST", 40)),
		},
		Notification: NotificationConfig{
			AMQPURL:    strings.TrimSpace(getenv("AMQP_URL", "")),
			Queue:      getenv("NOTIFICATION_QUEUE", "sponsornet.notifications"),
			MaxRetries: int(getenvInt64("NOTIFICATION_MAX_RETRIES", 3)),
		},
		Webhooks: WebhookSecrets{
			MobileMoneySecret: strings.TrimSpace(getenv("MOBILEMONEY_WEBHOOK_SECRET", "")),
			FlutterwaveHash:   strings.TrimSpace(getenv("FLUTTERWAVE_WEBHOOK_HASH", "")),
		},
		Scheduler: SchedulerConfig{
			Interval:          getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			JobTimeout:        getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
			BatchSize:         int(getenvInt64("SCHEDULER_BATCH_SIZE", 200)),
			PaymentStaleAfter: getenvDuration("PAYMENT_STALE_AFTER", 24*time.Hour),
			EnabledJobs:       getenv("SCHEDULER_JOBS", ""),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
