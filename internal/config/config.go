package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides application configuration.
var Module = fx.Module("config", fx.Provide(Load))

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType        string
	DBHost        string
	DBPort        string
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	DBMaxIdleConn int
	DBMaxOpenConn int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Kafka       KafkaConfig
	Payment     PaymentConfig
	Suppliers   SupplierConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
	Outbox      OutboxConfig
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type PaymentConfig struct {
	Provider       string
	StripeAPIKey   string
	StripeEndpoint string
	Timeout        time.Duration
	MaxRetries     int
}

type SupplierConfig struct {
	// Endpoints maps a supplier code to its base URL. Codes without an
	// endpoint resolve to the static sandbox adapter.
	Endpoints  map[string]string
	APIKeys    map[string]string
	Timeout    time.Duration
	MaxRetries int
}

type IdempotencyConfig struct {
	TTL           time.Duration
	InFlightStale time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "reserva"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "reserva"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn: getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 50),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_OUTBOX_TOPIC", "reservation-events"),
		},
		Payment: PaymentConfig{
			Provider:       strings.ToLower(getenv("PAYMENT_PROVIDER", "sandbox")),
			StripeAPIKey:   strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			StripeEndpoint: getenv("STRIPE_ENDPOINT", "https://api.stripe.com"),
			Timeout:        getenvDuration("PAYMENT_TIMEOUT", 10*time.Second),
			MaxRetries:     getenvInt("PAYMENT_MAX_RETRIES", 2),
		},
		Suppliers: SupplierConfig{
			Endpoints:  splitMap(getenv("SUPPLIER_ENDPOINTS", "")),
			APIKeys:    splitMap(getenv("SUPPLIER_API_KEYS", "")),
			Timeout:    getenvDuration("SUPPLIER_TIMEOUT", 15*time.Second),
			MaxRetries: getenvInt("SUPPLIER_MAX_RETRIES", 2),
		},
		Idempotency: IdempotencyConfig{
			TTL:           getenvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			InFlightStale: getenvDuration("IDEMPOTENCY_IN_FLIGHT_STALE", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvFloat("RATE_LIMIT_RATE", 5),
			Burst:   getenvInt("RATE_LIMIT_BURST", 10),
		},
		Outbox: OutboxConfig{
			PollInterval: getenvDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    getenvInt("OUTBOX_BATCH_SIZE", 100),
			MaxRetries:   getenvInt("OUTBOX_MAX_RETRIES", 5),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitMap parses "code=value,code2=value2" pairs.
func splitMap(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range splitList(raw) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return out
}
