package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Server
	Port        string
	FrontendURL string

	// Redis (shared document store)
	RedisURL string

	// Database (optional game-result archive)
	DatabaseURL string

	// Game Settings
	AppID               string
	ClaimGraceSeconds   int
	CallRetryLimit      int
	SubscribeBufferSize int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Database (empty disables the game-result archive)
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Game Settings
		AppID:               getEnv("APP_ID", "playbingo"),
		ClaimGraceSeconds:   getEnvInt("CLAIM_GRACE_SECONDS", 3),
		CallRetryLimit:      getEnvInt("CALL_RETRY_LIMIT", 5),
		SubscribeBufferSize: getEnvInt("SUBSCRIBE_BUFFER_SIZE", 16),
	}
}

// ClaimGrace is the delay before a failed bingo claim may be retried.
func (c *Config) ClaimGrace() time.Duration {
	return time.Duration(c.ClaimGraceSeconds) * time.Second
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
