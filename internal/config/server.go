// Package config provides configuration management for the rollout server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string
	DatabaseURL string

	// RedisURL enables the Redis-backed rate limiter store when set.
	RedisURL string
	// RateLimit is the per-client request budget, limiter format (e.g. "100-M").
	RateLimit string

	// MonitorInterval is how often the health monitor evaluates rollouts.
	MonitorInterval time.Duration
	// MonitorMinSamples is the minimum operations before error rates count.
	MonitorMinSamples int

	// GitHubToken authenticates the events backfill worker.
	GitHubToken string
	// BackfillSchedule is the cron spec for the events backfill, empty disables it.
	BackfillSchedule string
	// BackfillDays is how far back the worker fetches events.
	BackfillDays int

	// ArchiveSchedule is the cron spec for history archival, empty disables it.
	ArchiveSchedule string
	// ArchiveRetentionDays is how long history stays in the hot table.
	ArchiveRetentionDays int

	// S3 settings for the history archiver.
	S3Endpoint        string
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Notification channels.
	SlackWebhookURL string
	WebhookURL      string
	WebhookSecret   string

	// SwaggerEnabled serves the interactive API docs at /api/docs.
	SwaggerEnabled bool
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	monitorInterval := getEnvInt("MONITOR_INTERVAL_SECONDS", 60)
	if monitorInterval <= 0 {
		monitorInterval = 60
	}

	minSamples := getEnvInt("MONITOR_MIN_SAMPLES", 10)
	if minSamples < 0 {
		minSamples = 10
	}

	backfillDays := getEnvInt("BACKFILL_DAYS", 30)
	if backfillDays <= 0 {
		backfillDays = 30
	}

	retentionDays := getEnvInt("ARCHIVE_RETENTION_DAYS", 90)
	if retentionDays <= 0 {
		retentionDays = 90
	}

	return ServerConfig{
		Environment: env,
		ListenAddr:  getEnvString("LISTEN_ADDR", ":8090"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisURL:  os.Getenv("REDIS_URL"),
		RateLimit: getEnvString("RATE_LIMIT", "100-M"),

		MonitorInterval:   time.Duration(monitorInterval) * time.Second,
		MonitorMinSamples: minSamples,

		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
		BackfillSchedule: os.Getenv("BACKFILL_SCHEDULE"),
		BackfillDays:     backfillDays,

		ArchiveSchedule:      os.Getenv("ARCHIVE_SCHEDULE"),
		ArchiveRetentionDays: retentionDays,

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Prefix:          os.Getenv("S3_PREFIX"),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		WebhookURL:      os.Getenv("NOTIFY_WEBHOOK_URL"),
		WebhookSecret:   os.Getenv("NOTIFY_WEBHOOK_SECRET"),

		SwaggerEnabled: getEnvBool("SWAGGER_ENABLED", true),
	}
}

// ArchiveEnabled reports whether all settings required for archival are present.
func (c ServerConfig) ArchiveEnabled() bool {
	return c.ArchiveSchedule != "" && c.S3Bucket != "" &&
		c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// getEnvString reads a string from an environment variable, returning the default if unset.
func getEnvString(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
