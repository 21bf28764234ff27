package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	DatabaseURL string
	TablePrefix string

	// Envelope encryption
	ChunkSize int // plaintext bytes per encrypted chunk

	// Key provider
	Keys KeysConfig

	// Rotation worker
	RotationBatchSize   int
	RotationInterval    time.Duration
	RotationRatePerSec  float64
	RotationConcurrency int // tenants rewrapped in parallel

	MetricsAddr string
	Debug       bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	cfg := &Config{
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),

		ChunkSize: getEnvInt("STREAM_CHUNK_SIZE", 64*1024),

		RotationBatchSize:   getEnvInt("ROTATION_BATCH_SIZE", 200),
		RotationInterval:    getEnvDuration("ROTATION_INTERVAL", time.Minute),
		RotationRatePerSec:  getEnvFloat("ROTATION_BATCHES_PER_SEC", 5),
		RotationConcurrency: getEnvInt("ROTATION_TENANT_CONCURRENCY", 4),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		Debug:       getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}

	cfg.Keys = loadKeysConfig()
	return cfg
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
