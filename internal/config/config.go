package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port            string
	Env             string
	DBPath          string
	Secret          string
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DBPath:          getEnv("EASEL_DB_PATH", "./data/easel.db"),
		Secret:          os.Getenv("EASEL_SECRET"),
		CleanupInterval: getDuration("EASEL_CLEANUP_INTERVAL", 10*time.Minute),
	}

	if cfg.Env == "production" && cfg.Secret == "" {
		panic("EASEL_SECRET is required in production")
	}
	if cfg.Secret == "" {
		cfg.Secret = "dev-only-secret"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
