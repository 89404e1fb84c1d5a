// Package config provides configuration management for the arcade aggregation service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Sources  SourcesConfig
	Poll     PollConfig
	Session  SessionConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port              string
	Host              string
	RequestsPerSecond int // per client
	Burst             int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration (pin store)
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by migrations
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration (activity store)
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// ActivityBackend selects where on-chain call events are read from
type ActivityBackend string

const (
	// ActivityFromIndexer reads call events from the per-project indexer
	ActivityFromIndexer ActivityBackend = "indexer"
	// ActivityFromClickHouse reads call events from the ClickHouse activity table
	ActivityFromClickHouse ActivityBackend = "clickhouse"
)

// SourcesConfig holds the data source configuration
type SourcesConfig struct {
	IndexerURL        string
	Projects          []string
	Timeout           time.Duration
	RequestsPerSecond int
	PageSize          int
	MaxWorkers        int
	ActivityBackend   ActivityBackend
	ActivitySummaries bool // ask the indexer for pre-aggregated sessions
	ArchiveActivity   bool // copy indexer call events into ClickHouse
}

// PollConfig holds poller configuration
type PollConfig struct {
	Interval time.Duration
}

// SessionConfig holds session grouping configuration
type SessionConfig struct {
	BreakThreshold time.Duration
	Window         time.Duration // how far back activity is fetched
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),

			RequestsPerSecond: getEnvAsInt("API_RPS", 20),
			Burst:             getEnvAsInt("API_BURST", 40),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "arcade"),
				User:           getEnv("POSTGRES_USER", "arcade"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "arcade"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 30*time.Second),
		},
		Sources: SourcesConfig{
			IndexerURL:        strings.TrimRight(getEnv("INDEXER_URL", "https://api.cartridge.gg/x"), "/"),
			Projects:          getEnvAsList("ARCADE_PROJECTS"),
			Timeout:           getEnvAsDuration("SOURCE_TIMEOUT", 20*time.Second),
			RequestsPerSecond: getEnvAsInt("SOURCE_RPS", 20),
			PageSize:          getEnvAsInt("SOURCE_PAGE_SIZE", 1000),
			MaxWorkers:        getEnvAsInt("SOURCE_MAX_WORKERS", 8),
			ActivityBackend:   ActivityBackend(getEnv("ACTIVITY_BACKEND", string(ActivityFromIndexer))),
			ActivitySummaries: getEnvAsBool("ACTIVITY_SUMMARIES", false),
			ArchiveActivity:   getEnvAsBool("ARCHIVE_ACTIVITY", false),
		},
		Poll: PollConfig{
			Interval: getEnvAsDuration("POLL_INTERVAL", 60*time.Second),
		},
		Session: SessionConfig{
			BreakThreshold: getEnvAsDuration("SESSION_BREAK_THRESHOLD", time.Hour),
			Window:         getEnvAsDuration("ACTIVITY_WINDOW", 7*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would make the pipeline misbehave
func (c *Config) Validate() error {
	if c.Session.BreakThreshold <= 0 {
		return fmt.Errorf("SESSION_BREAK_THRESHOLD must be positive, got %v", c.Session.BreakThreshold)
	}
	if c.Sources.PageSize <= 0 {
		return fmt.Errorf("SOURCE_PAGE_SIZE must be positive, got %d", c.Sources.PageSize)
	}
	if c.Sources.MaxWorkers <= 0 {
		return fmt.Errorf("SOURCE_MAX_WORKERS must be positive, got %d", c.Sources.MaxWorkers)
	}
	switch c.Sources.ActivityBackend {
	case ActivityFromIndexer, ActivityFromClickHouse:
	default:
		return fmt.Errorf("unknown ACTIVITY_BACKEND %q", c.Sources.ActivityBackend)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, skipping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
