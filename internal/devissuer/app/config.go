package app

import (
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/service"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
)

type Config struct {
	Issuer       string // issuer claim for tokens (default: dealerdesk-dev)
	KeyID        string // kid header on signed tokens (default: devissuer-1)
	KeyFile      string // Optional: PEM Ed25519 private key, generated per start when empty
	DatabaseFile string // SQLite database path (default: devissuer.db)
	PepperFile   string // Optional: file holding the password pepper
	SeedPassword string // Optional: password for seeded users, generated when empty

	AccessTTL  time.Duration // default: 15m
	RefreshTTL time.Duration // default: 7d
	ResetTTL   time.Duration // default: 30m

	Env                  string        // dev, test, prod (default: dev)
	LogLevel             string        // debug, info, warn, error (default: info)
	LogFormat            string        // json, text (default: json)
	Port                 int           // HTTP port (default: 8080)
	ShutdownGracePeriod  time.Duration // default: 10s
	HousekeepingInterval time.Duration // default: 1h
}

func LoadConfig() Config {
	return Config{
		Issuer:       getEnvOrDefault("ISSUER_NAME", "dealerdesk-dev"),
		KeyID:        getEnvOrDefault("ISSUER_KEY_ID", "devissuer-1"),
		KeyFile:      os.Getenv("ISSUER_KEY_FILE"),
		DatabaseFile: getEnvOrDefault("ISSUER_DATABASE_FILE", "devissuer.db"),
		PepperFile:   os.Getenv("ISSUER_PEPPER_FILE"),
		SeedPassword: os.Getenv("ISSUER_SEED_PASSWORD"),

		AccessTTL:  getEnvDurationOrDefault("ISSUER_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("ISSUER_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		ResetTTL:   getEnvDurationOrDefault("ISSUER_RESET_TTL", service.DefaultResetTTL),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
