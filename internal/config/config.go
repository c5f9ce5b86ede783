package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type APIConfig struct {
	Addr               string
	StoreDriver        string
	DatabaseURL        string
	DBMaxConns         int32
	MigrateOnStart     bool
	RedisURL           string
	StartingCash       int64
	BaseRevenue        int64
	StartupSeedCatalog bool
	BulkConcurrency    int
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	LogLevel           slog.Level
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadDotEnv reads .env from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("GREENLEDGER_API_ADDR", ":8000")
	}

	cfg := APIConfig{
		Addr:               addr,
		StoreDriver:        strings.ToLower(envDefault("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:         int32(envIntDefault("DB_MAX_CONNS", 20)),
		MigrateOnStart:     envBoolDefault("MIGRATE_ON_START", true),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		StartingCash:       int64(envIntDefault("STARTING_CASH", 1500)),
		BaseRevenue:        int64(envIntDefault("BASE_REVENUE", 1000)),
		StartupSeedCatalog: envBoolDefault("STARTUP_SEED_CATALOG", true),
		BulkConcurrency:    envIntDefault("BULK_CONCURRENCY", 8),
		RequestTimeout:     envDurationDefault("REQUEST_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins: envListDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:           envLevelDefault("LOG_LEVEL", slog.LevelInfo),
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return cfg, fmt.Errorf("STORE_DRIVER must be %s or %s", DriverPostgres, DriverMemory)
	}
	if cfg.StartingCash <= 0 {
		return cfg, fmt.Errorf("STARTING_CASH must be > 0")
	}
	if cfg.BulkConcurrency <= 0 {
		return cfg, fmt.Errorf("BULK_CONCURRENCY must be > 0")
	}
	return cfg, nil
}

// LoadMigrateFromEnv returns the database url for the migration binary.
func LoadMigrateFromEnv() (string, error) {
	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return url, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("GLCTL_API_BASE_URL", "http://localhost:8000"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envLevelDefault(key string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
