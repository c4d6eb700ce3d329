package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	// StorageDriverMemory — in-memory хранилище для разработки и тестов.
	StorageDriverMemory StorageDriver = "memory"
	// StorageDriverPostgres — PostgreSQL через pgx stdlib driver.
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	APIAddr string
	OpsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	// KafkaConsumerGroup включает consumer аудита опубликованных событий.
	// Пустая группа означает работу без consumer.
	KafkaConsumerGroup string

	AdminToken       string
	ProcessorBaseURL string
	// CredentialKey — 32-байтовый ключ AES-GCM для учётных данных процессора
	// в хранилище. Пустой ключ отключает admin processor-config API.
	CredentialKey string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	LedgerCleanupInterval time.Duration
	LedgerCleanupBatch    int
}

// DefaultConfig возвращает базовые настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		APIAddr:               ":8080",
		OpsAddr:               ":9090",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      50 * time.Millisecond,
		LedgerCleanupInterval: time.Hour,
		LedgerCleanupBatch:    500,
	}
}

// LoadConfig читает настройки из окружения поверх значений по умолчанию.
// .env подхватывается при наличии, для локальной разработки.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.APIAddr = getEnv("COMMERCE_API_ADDR", cfg.APIAddr)
	cfg.OpsAddr = getEnv("COMMERCE_OPS_ADDR", cfg.OpsAddr)
	cfg.StorageDriver = StorageDriver(getEnv("COMMERCE_STORAGE_DRIVER", string(cfg.StorageDriver)))
	cfg.PostgresDSN = getEnv("COMMERCE_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = getEnvBool("COMMERCE_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)
	cfg.KafkaBrokers = getEnv("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.AdminToken = getEnv("COMMERCE_ADMIN_TOKEN", cfg.AdminToken)
	cfg.ProcessorBaseURL = getEnv("COMMERCE_PROCESSOR_BASE_URL", cfg.ProcessorBaseURL)
	cfg.CredentialKey = getEnv("COMMERCE_CREDENTIAL_KEY", cfg.CredentialKey)
	cfg.OutboxPollInterval = getEnvDuration("COMMERCE_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = getEnvInt("COMMERCE_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = getEnvInt("COMMERCE_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = getEnvDuration("COMMERCE_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)
	cfg.LedgerCleanupInterval = getEnvDuration("COMMERCE_LEDGER_CLEANUP_INTERVAL", cfg.LedgerCleanupInterval)
	cfg.LedgerCleanupBatch = getEnvInt("COMMERCE_LEDGER_CLEANUP_BATCH", cfg.LedgerCleanupBatch)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
