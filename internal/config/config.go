package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Log    LogConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	Coupon CouponConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host        string `envconfig:"DB_HOST" default:"localhost"`
	Port        int    `envconfig:"DB_PORT" default:"5432"`
	User        string `envconfig:"DB_USER" default:"postgres"`
	Password    string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name        string `envconfig:"DB_NAME" default:"homestay_coupons"`
	SSLMode     string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns    int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns    int    `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxRetries  int    `envconfig:"DB_MAX_RETRIES" default:"5"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// DSN returns the PostgreSQL connection string. Pool sizing parameters are
// only appended when set.
func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
	if c.MaxConns > 0 {
		dsn += fmt.Sprintf("&pool_max_conns=%d", c.MaxConns)
	}
	if c.MinConns > 0 {
		dsn += fmt.Sprintf("&pool_min_conns=%d", c.MinConns)
	}
	return dsn
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// RedisConfig holds the coupon cache configuration. An empty Addr disables
// the cache.
type RedisConfig struct {
	Addr      string        `envconfig:"REDIS_ADDR"`
	Password  string        `envconfig:"REDIS_PASSWORD"`
	DB        int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize  int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	CouponTTL time.Duration `envconfig:"REDIS_COUPON_TTL" default:"5m"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// KafkaConfig holds event publishing and consuming configuration. No
// brokers disables both.
type KafkaConfig struct {
	Brokers      []string `envconfig:"KAFKA_BROKERS"`
	CouponTopic  string   `envconfig:"KAFKA_COUPON_TOPIC" default:"coupon.events"`
	BookingTopic string   `envconfig:"KAFKA_BOOKING_TOPIC" default:"booking.events"`
	GroupID      string   `envconfig:"KAFKA_GROUP_ID" default:"homestay-coupon-service"`
}

// Enabled reports whether at least one broker is configured.
func (c KafkaConfig) Enabled() bool {
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

// maxCurrencyScale matches the four decimal places of the money columns.
const maxCurrencyScale = 4

// CouponConfig holds the redemption policy.
type CouponConfig struct {
	// CurrencyScale is the number of minor-unit digits discounts are rounded to.
	CurrencyScale int32 `envconfig:"COUPON_CURRENCY_SCALE" default:"2"`
	// Timezone decides which calendar day "today" is for validity windows.
	Timezone string `envconfig:"COUPON_TIMEZONE" default:"UTC"`
	// NewUserWindow is how long after registration a user counts as new.
	NewUserWindow time.Duration `envconfig:"COUPON_NEW_USER_WINDOW" default:"720h"`
	// MaxBestCodes bounds how many codes one best-coupon request may carry.
	MaxBestCodes int `envconfig:"COUPON_MAX_BEST_CODES" default:"10"`
}

// Location resolves Timezone.
func (c CouponConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load parses environment variables into the Config struct. A .env file in
// the working directory is read first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Coupon.CurrencyScale < 0 || cfg.Coupon.CurrencyScale > maxCurrencyScale {
		return nil, fmt.Errorf("COUPON_CURRENCY_SCALE must be between 0 and %d, got %d", maxCurrencyScale, cfg.Coupon.CurrencyScale)
	}
	return &cfg, nil
}
