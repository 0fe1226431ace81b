package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Auth
	JWTSecret string

	// Database
	SQLiteDBPath string

	// Caching
	CacheSize int
	CacheTTL  time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export
	ExportBackend       string
	ExportConcurrency   int
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Attachments
	AttachmentDir       string
	AttachmentURLPrefix string

	// Maintenance
	RecalcSweepInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/festa.db"),

		CacheSize: getEnvInt("CACHE_SIZE", 1000),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "festa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_exports"),

		ExportBackend:       getEnv("EXPORT_BACKEND", "memory"),
		ExportConcurrency:   getEnvInt("EXPORT_CONCURRENCY", 4),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Budgets"),

		AttachmentDir:       getEnv("ATTACHMENT_DIR", "./data/attachments"),
		AttachmentURLPrefix: getEnv("ATTACHMENT_URL_PREFIX", "/attachments"),

		RecalcSweepInterval: getEnvDuration("RECALC_SWEEP_INTERVAL", time.Hour),
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET must be set")
	} else if len(c.JWTSecret) < 32 {
		errors = append(errors, fmt.Sprintf("JWT secret too short (%d chars): must be at least 32", len(c.JWTSecret)))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.ExportBackend {
	case "memory":
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets export backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google sheet name is required when using sheets export backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of [memory sheets]", c.ExportBackend))
	}

	if c.ExportConcurrency < 1 || c.ExportConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid export concurrency %d: must be between 1 and 64", c.ExportConcurrency))
	}

	if c.AttachmentDir == "" {
		errors = append(errors, "attachment directory cannot be empty")
	}
	if !strings.HasPrefix(c.AttachmentURLPrefix, "/") {
		errors = append(errors, fmt.Sprintf("invalid attachment URL prefix '%s': must start with /", c.AttachmentURLPrefix))
	}

	if c.RecalcSweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recalc sweep interval %v: must be at least 1 minute", c.RecalcSweepInterval))
	} else if c.RecalcSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recalc sweep interval %v: must be at most 24 hours", c.RecalcSweepInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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
