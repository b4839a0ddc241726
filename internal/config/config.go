package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds notification worker configuration loaded from the environment.
type Config struct {
	AppName     string
	LogLevel    string
	HTTPPort    string
	RabbitURL   string
	DatabaseURL string
	RedisURL    string

	DeliveryQueue   string
	WaitQueue       string
	DeadLetterQueue string
	PrefetchCount   int
	WorkerCount     int

	SettingsTable   string
	DeliveriesTable string

	// MasterKey is the hex-encoded 32-byte credential encryption key. When
	// empty the vault degrades: encryption fails loudly, decryption yields
	// empty credentials.
	MasterKey string

	// SecretMaxPlaintextLen is the ciphertext-detection threshold applied to
	// every credential field unless overridden per field.
	SecretMaxPlaintextLen int

	ProviderTimeout time.Duration
	SuppressionTTL  time.Duration

	RetryMaxAttempts int
	RetryBackoff     []time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:     getEnv("APP_NAME", "notification_service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:    getEnv("HTTP_PORT", "8084"),
		RabbitURL:   getEnv("RABBITMQ_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		DeliveryQueue:   getEnv("DELIVERY_QUEUE", "deliveries.queue"),
		WaitQueue:       getEnv("DELIVERY_WAIT_QUEUE", "deliveries.wait"),
		DeadLetterQueue: getEnv("DELIVERY_DLQ", "deliveries.dead"),
		PrefetchCount:   getEnvAsInt("DELIVERY_PREFETCH", 50),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 5),

		SettingsTable:   getEnv("SETTINGS_TABLE", "tenant_channel_settings"),
		DeliveriesTable: getEnv("DELIVERIES_TABLE", "notification_deliveries"),

		MasterKey:             getEnv("NOTIFY_MASTER_KEY", ""),
		SecretMaxPlaintextLen: getEnvAsInt("SECRET_MAX_PLAINTEXT_LEN", 48),

		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
		SuppressionTTL:  getEnvAsDuration("SUPPRESSION_TTL", 24*time.Hour),

		RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoff: []time.Duration{
			getEnvAsDuration("RETRY_BACKOFF_1", 60*time.Second),
			getEnvAsDuration("RETRY_BACKOFF_2", 300*time.Second),
			getEnvAsDuration("RETRY_BACKOFF_3", 900*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.MasterKey == "" {
		missing = append(missing, "NOTIFY_MASTER_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
