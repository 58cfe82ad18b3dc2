package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "parkinglot/backend/libs/config"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config defines parking service configuration.
type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	History   HistoryConfig   `yaml:"history"`
}

type HTTPConfig struct {
	Port         string        `yaml:"port" env:"PARKING_HTTP_PORT"`
	CORSOrigins  []string      `yaml:"corsOrigins" env:"PARKING_CORS_ORIGINS"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"PARKING_HTTP_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	DSN            string `yaml:"dsn" env:"PARKING_POSTGRES_DSN"`
	MigrateOnStart bool   `yaml:"migrateOnStart" env:"PARKING_MIGRATE_ON_START"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"PARKING_STORAGE_DRIVER"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"PARKING_REDIS_ENABLED"`
	Addr     string `yaml:"addr" env:"PARKING_REDIS_ADDR"`
	Password string `yaml:"password" env:"PARKING_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"PARKING_REDIS_DB"`
	Channel  string `yaml:"channel" env:"PARKING_REDIS_CHANNEL"`
}

type JWTConfig struct {
	Secret string `yaml:"secret" env:"JWT_SECRET"`
}

type DashboardConfig struct {
	Timezone string `yaml:"timezone" env:"PARKING_DASHBOARD_TIMEZONE"`
}

type DefaultsConfig struct {
	HourlyRate    string `yaml:"hourlyRate" env:"PARKING_DEFAULT_HOURLY_RATE"`
	Currency      string `yaml:"currency" env:"PARKING_DEFAULT_CURRENCY"`
	AutoCalculate bool   `yaml:"autoCalculate" env:"PARKING_DEFAULT_AUTO_CALCULATE"`
}

type WhatsAppConfig struct {
	Provider string        `yaml:"provider" env:"WHATSAPP_PROVIDER"`
	Timeout  time.Duration `yaml:"timeout" env:"WHATSAPP_TIMEOUT"`
	Twilio   TwilioConfig  `yaml:"twilio"`
	Meta     MetaConfig    `yaml:"meta"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"accountSid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"authToken" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"fromNumber" env:"TWILIO_WHATSAPP_NUMBER"`
}

type MetaConfig struct {
	AccessToken   string `yaml:"accessToken" env:"META_WHATSAPP_TOKEN"`
	PhoneNumberID string `yaml:"phoneNumberId" env:"META_PHONE_NUMBER_ID"`
	APIVersion    string `yaml:"apiVersion" env:"META_API_VERSION"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute" env:"PARKING_RATE_LIMIT_RPM"`
	Burst             int `yaml:"burst" env:"PARKING_RATE_LIMIT_BURST"`
}

type HistoryConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"PARKING_HISTORY_TIMEOUT"`
}

// Defaults returns the configuration used before file and env overrides.
func Defaults() *Config {
	return &Config{
		Env: "production",
		HTTP: HTTPConfig{
			Port:         "8080",
			WriteTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Driver: StoragePostgres},
		Redis:   RedisConfig{Channel: "parking:events"},
		Dashboard: DashboardConfig{
			Timezone: "UTC",
		},
		Defaults: DefaultsConfig{
			HourlyRate:    "5.00",
			Currency:      "USD",
			AutoCalculate: true,
		},
		WhatsApp: WhatsAppConfig{
			Provider: "auto",
			Timeout:  10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             30,
		},
		History: HistoryConfig{Timeout: 2 * time.Second},
	}
}

// Load configuration from file/env.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and normalises enumerations.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case StoragePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis addr required when redis is enabled")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	rate, err := c.DefaultHourlyRate()
	if err != nil {
		return err
	}
	if rate.IsNegative() {
		return errors.New("config: default hourly rate must not be negative")
	}
	if len(strings.TrimSpace(c.Defaults.Currency)) != 3 {
		return fmt.Errorf("config: default currency %q must be a 3-letter code", c.Defaults.Currency)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate limit must not be negative")
	}
	return nil
}

// Development reports whether env explicitly names a development environment.
// An empty env is treated as production.
func (c *Config) Development() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}

// Location resolves the dashboard time zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Dashboard.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: dashboard timezone: %w", err)
	}
	return loc, nil
}

// DefaultHourlyRate parses the fallback hourly rate.
func (c *Config) DefaultHourlyRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Defaults.HourlyRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: default hourly rate: %w", err)
	}
	return rate, nil
}

// HTTPAddress returns :port style string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
