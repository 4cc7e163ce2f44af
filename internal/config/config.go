package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Monitor     MonitorConfig    `mapstructure:"monitor"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	DatabaseURL     string        `mapstructure:"database_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// AutoMigrate creates the watchlist tables on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns DatabaseURL when set, otherwise a keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	if d.DatabaseURL != "" {
		return d.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ViewCacheTTL bounds how long a cached list view may be served.
	ViewCacheTTL time.Duration `mapstructure:"view_cache_ttl"`
	// JobTTL is how long refresh job records are kept.
	JobTTL time.Duration `mapstructure:"job_ttl"`
	// BarCacheTTL is how long daily bars fetched from the provider are reused.
	BarCacheTTL time.Duration `mapstructure:"bar_cache_ttl"`
}

type MarketDataConfig struct {
	ServiceURL     string  `mapstructure:"service_url"`
	Timeout        int     `mapstructure:"timeout"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// BarLookback is the number of daily bars requested per ticker.
	BarLookback int `mapstructure:"bar_lookback"`
}

type MonitorConfig struct {
	ArchiveRetention    time.Duration `mapstructure:"archive_retention"`
	MaxBatchSize        int           `mapstructure:"max_batch_size"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	HealthCheckWorkers  int           `mapstructure:"health_check_workers"`
	EvaluatorTimeout    time.Duration `mapstructure:"evaluator_timeout"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	// PivotProximityPercent is how close below the pivot a price counts as "at pivot".
	PivotProximityPercent float64 `mapstructure:"pivot_proximity_percent"`
	// FreshnessMaxDays is the oldest pivot still considered fresh.
	FreshnessMaxDays int `mapstructure:"freshness_max_days"`
	// LeadershipBenchmark is the ticker whose return a leader must beat. Empty disables leadership scoring.
	LeadershipBenchmark string `mapstructure:"leadership_benchmark"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	LogLevel       string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := v.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the values the monitor cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Monitor.ArchiveRetention <= 0 {
		return fmt.Errorf("monitor.archive_retention must be positive, got %s", c.Monitor.ArchiveRetention)
	}
	if c.Monitor.MaxBatchSize <= 0 {
		return fmt.Errorf("monitor.max_batch_size must be positive, got %d", c.Monitor.MaxBatchSize)
	}
	if c.Monitor.HealthCheckWorkers <= 0 {
		return fmt.Errorf("monitor.health_check_workers must be positive, got %d", c.Monitor.HealthCheckWorkers)
	}
	if c.Monitor.HealthCheckInterval < 0 {
		return errors.New("monitor.health_check_interval cannot be negative")
	}
	if c.Monitor.EvaluatorTimeout <= 0 {
		return fmt.Errorf("monitor.evaluator_timeout must be positive, got %s", c.Monitor.EvaluatorTimeout)
	}
	if c.Redis.ViewCacheTTL <= 0 {
		return fmt.Errorf("redis.view_cache_ttl must be positive, got %s", c.Redis.ViewCacheTTL)
	}
	if c.Redis.JobTTL <= 0 {
		return fmt.Errorf("redis.job_ttl must be positive, got %s", c.Redis.JobTTL)
	}
	if c.MarketData.RateLimitRPS <= 0 {
		return fmt.Errorf("market_data.rate_limit_rps must be positive, got %v", c.MarketData.RateLimitRPS)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when a bot token is configured")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "stock_monitor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.auto_migrate", true)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.view_cache_ttl", "30s")
	v.SetDefault("redis.job_ttl", "24h")
	v.SetDefault("redis.bar_cache_ttl", "15m")

	// Market data provider
	v.SetDefault("market_data.service_url", "http://localhost:3001")
	v.SetDefault("market_data.timeout", 30)
	v.SetDefault("market_data.rate_limit_rps", 5.0)
	v.SetDefault("market_data.rate_limit_burst", 5)
	v.SetDefault("market_data.bar_lookback", 260)

	// Monitor
	v.SetDefault("monitor.archive_retention", "720h")
	v.SetDefault("monitor.max_batch_size", 1000)
	v.SetDefault("monitor.health_check_interval", "0s")
	v.SetDefault("monitor.health_check_workers", 4)
	v.SetDefault("monitor.evaluator_timeout", "30s")
	v.SetDefault("monitor.cleanup_interval", "1h")
	v.SetDefault("monitor.pivot_proximity_percent", 5.0)
	v.SetDefault("monitor.freshness_max_days", 90)
	v.SetDefault("monitor.leadership_benchmark", "SPY")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "stock-monitor")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.log_level", "info")
}
