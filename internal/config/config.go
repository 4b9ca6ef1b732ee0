// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gamification  GamificationConfig  `mapstructure:"gamification"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RateLimit is the number of write requests allowed per second per client.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN returns the key/value connection string used by the gorm driver.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// form used by golang-migrate.
func (c *PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MigrationsConfig selects between golang-migrate and gorm AutoMigrate.
type MigrationsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// GamificationConfig contains streak and badge engine settings.
type GamificationConfig struct {
	// Timezone defines calendar day boundaries for streaks.
	Timezone        string `mapstructure:"timezone"`
	CatalogFile     string `mapstructure:"catalog_file"`
	CatalogCacheTTL int    `mapstructure:"catalog_cache_ttl"` // seconds
	LockTTL         int    `mapstructure:"lock_ttl"`          // seconds
	AsyncTimeout    int    `mapstructure:"async_timeout"`     // seconds
}

// Location returns the configured streak timezone.
func (c *GamificationConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CatalogCacheDuration returns the badge catalog cache TTL.
func (c *GamificationConfig) CatalogCacheDuration() time.Duration {
	return time.Duration(c.CatalogCacheTTL) * time.Second
}

// LockDuration returns the per-user lock TTL.
func (c *GamificationConfig) LockDuration() time.Duration {
	return time.Duration(c.LockTTL) * time.Second
}

// AsyncTimeoutDuration bounds a fire-and-forget gamification run.
func (c *GamificationConfig) AsyncTimeoutDuration() time.Duration {
	return time.Duration(c.AsyncTimeout) * time.Second
}

// LeaderboardConfig contains leaderboard presentation settings.
type LeaderboardConfig struct {
	DefaultLimit  int  `mapstructure:"default_limit"`
	MaskUsernames bool `mapstructure:"mask_usernames"`
}

// SchedulerConfig contains cron job settings.
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	CleanupTime         string `mapstructure:"cleanup_time"`          // HH:MM
	BadgeEvaluationTime string `mapstructure:"badge_evaluation_time"` // cron expression
	Timezone            string `mapstructure:"timezone"`
	ProofRetentionDays  int    `mapstructure:"proof_retention_days"`
}

// ProofRetention returns how long uploaded proofs are kept.
func (c *SchedulerConfig) ProofRetention() time.Duration {
	return time.Duration(c.ProofRetentionDays) * 24 * time.Hour
}

// NotificationsConfig contains badge announcement webhook settings.
type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
	Enabled    bool   `mapstructure:"enabled"`
}

// MetricsConfig contains metrics exposure settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("database.migrations.enabled", true)

	v.SetDefault("gamification.timezone", "UTC")
	v.SetDefault("gamification.catalog_cache_ttl", 300)
	v.SetDefault("gamification.lock_ttl", 10)
	v.SetDefault("gamification.async_timeout", 15)

	v.SetDefault("leaderboard.default_limit", 50)
	v.SetDefault("leaderboard.mask_usernames", true)

	// Notifications defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.username", "Refo Rewards")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cleanup_time", "02:00")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.proof_retention_days", 7)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/refo-gamification/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.migrations.enabled", "MIGRATIONS_ENABLED")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")

	// Gamification configuration
	_ = v.BindEnv("gamification.timezone", "GAMIFICATION_TIMEZONE")
	_ = v.BindEnv("gamification.catalog_file", "BADGE_CATALOG_FILE")

	// Notifications configuration
	_ = v.BindEnv("notifications.webhook_url", "NOTIFICATIONS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")
	_ = v.BindEnv("notifications.channel", "NOTIFICATIONS_CHANNEL")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.cleanup_time", "SCHEDULER_CLEANUP_TIME")
	_ = v.BindEnv("scheduler.badge_evaluation_time", "SCHEDULER_BADGE_EVALUATION_TIME")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if _, err := c.Gamification.Location(); err != nil {
		return fmt.Errorf("gamification.timezone %q is invalid: %w", c.Gamification.Timezone, err)
	}
	if c.Gamification.LockTTL <= 0 {
		return fmt.Errorf("gamification.lock_ttl must be positive")
	}
	if c.Gamification.AsyncTimeout <= 0 {
		return fmt.Errorf("gamification.async_timeout must be positive")
	}
	if c.Gamification.CatalogCacheTTL < 0 {
		return fmt.Errorf("gamification.catalog_cache_ttl cannot be negative")
	}
	if c.Scheduler.Enabled {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone %q is invalid: %w", c.Scheduler.Timezone, err)
		}
		if c.Scheduler.ProofRetentionDays < 1 {
			return fmt.Errorf("scheduler.proof_retention_days must be at least 1")
		}
	}
	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("notifications.webhook_url is required when notifications are enabled")
	}

	return nil
}
