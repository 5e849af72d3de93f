package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const maxLeadHours = 72

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	StorageDriver   string
	DatabaseURL     string
	HTTPAddr        string
	TelegramToken   string // Empty disables the bot; reminders are only logged
	AdminTelegramID int64
	LogLevel        string
	LogFile         string // Optional rotated log file in addition to stdout
	Environment     string

	CronSpecDispatch  string // Due-notification sweep
	CronSpecRetention string // Daily retention purge

	DispatchBatchSize int
	DeliveryTimeout   time.Duration
	RetentionPeriod   time.Duration
	SoftDeleteGrace   time.Duration
	DefaultLeadHours  int
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.StorageDriver = strings.ToLower(envOr("STORAGE_DRIVER", StoragePostgres))
	switch cfg.StorageDriver {
	case StoragePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", cfg.StorageDriver, StoragePostgres, StorageMemory)
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", "info"))
	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.Environment = strings.ToLower(envOr("ENVIRONMENT", "development"))

	cfg.CronSpecDispatch = envOr("CRON_SPEC_DISPATCH", "@every 1m")
	cfg.CronSpecRetention = envOr("CRON_SPEC_RETENTION", "0 3 * * *") // Default: 03:00 daily

	if cfg.DispatchBatchSize, err = envInt("DISPATCH_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.DefaultLeadHours, err = envInt("DEFAULT_LEAD_HOURS", 12); err != nil {
		return nil, err
	}
	if cfg.DefaultLeadHours > maxLeadHours {
		return nil, fmt.Errorf("invalid DEFAULT_LEAD_HOURS: %d exceeds %d", cfg.DefaultLeadHours, maxLeadHours)
	}
	if cfg.DeliveryTimeout, err = envDuration("DELIVERY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetentionPeriod, err = envDuration("RETENTION_PERIOD", 2*365*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SoftDeleteGrace, err = envDuration("SOFT_DELETE_GRACE", 30*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
