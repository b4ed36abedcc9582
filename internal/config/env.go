package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv overrides configuration from RECLAIMER_* environment variables
func LoadFromEnv(cfg *Config) {
	setString(&cfg.Log.Level, "RECLAIMER_LOG_LEVEL")
	setString(&cfg.Log.Format, "RECLAIMER_LOG_FORMAT")

	// Store settings
	setString(&cfg.Store.Mode, "RECLAIMER_STORE_MODE")
	setString(&cfg.Store.Local.Path, "RECLAIMER_LOCAL_PATH")
	setString(&cfg.Store.S3.Endpoint, "RECLAIMER_S3_ENDPOINT")
	setString(&cfg.Store.S3.Region, "RECLAIMER_S3_REGION")
	setString(&cfg.Store.S3.Bucket, "RECLAIMER_S3_BUCKET")
	setString(&cfg.Store.S3.AccessKey, "RECLAIMER_S3_ACCESS_KEY")
	setString(&cfg.Store.S3.SecretKey, "RECLAIMER_S3_SECRET_KEY")
	setBool(&cfg.Store.S3.PathStyle, "RECLAIMER_S3_PATH_STYLE")
	setInt(&cfg.Store.RetryAttempts, "RECLAIMER_STORE_RETRIES")

	// Database settings
	setString(&cfg.Database.Host, "RECLAIMER_DB_HOST")
	setInt(&cfg.Database.Port, "RECLAIMER_DB_PORT")
	setString(&cfg.Database.Database, "RECLAIMER_DB_NAME")
	setString(&cfg.Database.User, "RECLAIMER_DB_USER")
	setString(&cfg.Database.Password, "RECLAIMER_DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "RECLAIMER_DB_SSLMODE")

	setInt(&cfg.Engine.Workers, "RECLAIMER_WORKERS")
	setDuration(&cfg.Engine.ProtectTTL, "RECLAIMER_PROTECT_TTL")

	// Advisory settings
	setBool(&cfg.Advisory.Enabled, "RECLAIMER_ADVISORY_ENABLED")
	setString(&cfg.Advisory.Endpoint, "RECLAIMER_ADVISORY_ENDPOINT")
	setString(&cfg.Advisory.Model, "RECLAIMER_ADVISORY_MODEL")
	cfg.Advisory.APIKey = GetEnvOrDefault("RECLAIMER_ADVISORY_API_KEY",
		GetEnvOrDefault("ANTHROPIC_API_KEY", cfg.Advisory.APIKey))

	setString(&cfg.Policies.File, "RECLAIMER_POLICIES_FILE")
	setString(&cfg.Schedule.Cron, "RECLAIMER_SCHEDULE")
	if scopes := os.Getenv("RECLAIMER_SCHEDULE_SCOPES"); scopes != "" {
		cfg.Schedule.Scopes = splitList(scopes)
	}
	if v := os.Getenv("RECLAIMER_SCHEDULE_DRY_RUN"); v != "" {
		if dryRun, err := strconv.ParseBool(v); err == nil {
			cfg.Schedule.DryRun = &dryRun
		}
	}
	setString(&cfg.Metrics.Listen, "RECLAIMER_METRICS_LISTEN")
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
