// Package config loads application configuration from environment variables.
package config

import (
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env           string // application environment (dev, test, prod)
	Port          string // HTTP port to listen on
	StorageDriver string // mysql or memory
	DBUser        string // database username
	DBPass        string // database password (optional)
	DBHost        string // database host address
	DBPort        string // database port number
	DBName        string // database name
	JWTSecret     string // secret used to verify bearer tokens
	LogLevel      string // debug, info, warn, error
	RabbitMQURL   string // empty disables publishing and consuming

	CheckIn   CheckInConfig
	Outbox    OutboxConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
}

// CheckInConfig tunes the business rules around check-in.
type CheckInConfig struct {
	DefaultTimezone string        // zone used when a tenant has none
	OpensBefore     time.Duration // window opens this long before the class starts
	ClosesAfter     time.Duration // window closes this long after the class ends
	BlockedStatuses []string      // financial statuses refused at check-in
}

// Load reads configuration values from environment variables and returns a
// Config.  Database variables are required only for the mysql driver.
func Load() Config {
	cfg := Config{
		Env:           must("APP_ENV"),
		Port:          envStr("APP_PORT", "8080"),
		StorageDriver: strings.ToLower(envStr("STORAGE_DRIVER", DriverMySQL)),
		JWTSecret:     must("JWT_SECRET"),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		RabbitMQURL:   envStr("RABBITMQ_URL", ""),
		CheckIn:       LoadCheckInConfig(),
		Outbox:        LoadOutboxConfig(),
		Cache:         LoadCacheConfig(),
		RateLimit:     LoadRateLimitConfig(),
		Redis:         LoadRedisConfig(),
	}
	if cfg.StorageDriver == DriverMySQL {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = envStr("DB_PASS", "") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// LoadCheckInConfig reads the CHECKIN_* variables and the default timezone.
func LoadCheckInConfig() CheckInConfig {
	c := CheckInConfig{
		DefaultTimezone: envStr("DEFAULT_TIMEZONE", "UTC"),
		OpensBefore:     envDur("CHECKIN_OPENS_BEFORE", 15*time.Minute),
		ClosesAfter:     envDur("CHECKIN_CLOSES_AFTER", 20*time.Minute),
		BlockedStatuses: envList("FINANCIAL_BLOCKED_STATUSES", []string{"overdue", "delinquent"}),
	}
	if c.OpensBefore < 0 {
		c.OpensBefore = 0
	}
	if c.ClosesAfter < 0 {
		c.ClosesAfter = 0
	}
	return c
}
