package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
)

// Store backends selectable through DEALERDESK_STORE.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	APIURL           string        // issuer and backend base URL (default: http://localhost:8080)
	RefreshThreshold time.Duration // default: 5m
	RefreshTimeout   time.Duration // default: 10s
	HTTPTimeout      time.Duration // default: 10s

	StoreKind     string // file, sqlite, redis, memory (default: file)
	StorePath     string // file or sqlite path (default: under the user config dir)
	StoreKey      string // record key for sqlite and redis
	RedisAddr     string // default: localhost:6379
	RedisPassword string

	Env       string // default: dev
	LogLevel  string // default: warn
	LogFormat string // default: text
}

func LoadConfig() Config {
	return Config{
		APIURL:           getEnvOrDefault("DEALERDESK_API_URL", "http://localhost:8080"),
		RefreshThreshold: getEnvDurationOrDefault("DEALERDESK_REFRESH_THRESHOLD", sessionsdk.DefaultRefreshThreshold),
		RefreshTimeout:   getEnvDurationOrDefault("DEALERDESK_REFRESH_TIMEOUT", sessionsdk.DefaultRefreshTimeout),
		HTTPTimeout:      getEnvDurationOrDefault("DEALERDESK_HTTP_TIMEOUT", sessionsdk.DefaultTimeout),

		StoreKind:     getEnvOrDefault("DEALERDESK_STORE", StoreFile),
		StorePath:     os.Getenv("DEALERDESK_STORE_PATH"),
		StoreKey:      getEnvOrDefault("DEALERDESK_STORE_KEY", tokenstore.DefaultKey),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// storePath resolves the default location of file backed stores.
func (c Config) storePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}

	name := "session.json"
	if c.StoreKind == StoreSQLite {
		name = "session.db"
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dealerdesk", name)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
