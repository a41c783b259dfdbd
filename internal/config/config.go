package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration loaded from environment variables and
// an optional .env file in the working directory.
type Config struct {
	Port     int    `mapstructure:"PORT"`
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Local store. Empty DataPath keeps everything in memory.
	DataPath string `mapstructure:"DATA_PATH"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	AdminUsername   string        `mapstructure:"ADMIN_USERNAME"`
	AdminPassword   string        `mapstructure:"ADMIN_PASSWORD"`
	CashierUsername string        `mapstructure:"CASHIER_USERNAME"`
	CashierPassword string        `mapstructure:"CASHIER_PASSWORD"`
	AllowedOrigins  string        `mapstructure:"ALLOWED_ORIGINS"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	SummaryTTL    time.Duration `mapstructure:"SUMMARY_TTL"`

	// Remotes. Each one is enabled only when its URL is set.
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	SheetsURL   string `mapstructure:"SHEETS_URL"`
	SheetsToken string `mapstructure:"SHEETS_TOKEN"`
	SeedURL     string `mapstructure:"SEED_URL"`

	ReplicationQueueSize int           `mapstructure:"REPLICATION_QUEUE_SIZE"`
	ReplicationWorkers   int           `mapstructure:"REPLICATION_WORKERS"`
	ReplicationTimeout   time.Duration `mapstructure:"REPLICATION_TIMEOUT"`

	ReminderInterval time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ReminderHour     int           `mapstructure:"REMINDER_HOUR"`
	Timezone         string        `mapstructure:"TZ_NAME"`
}

var defaults = map[string]any{
	"PORT":                   8080,
	"APP_ENV":                "development",
	"LOG_LEVEL":              "info",
	"DATA_PATH":              "vendinha.db",
	"JWT_SECRET":             "",
	"TOKEN_TTL":              "8h",
	"ADMIN_USERNAME":         "admin",
	"ADMIN_PASSWORD":         "",
	"CASHIER_USERNAME":       "caixa",
	"CASHIER_PASSWORD":       "",
	"ALLOWED_ORIGINS":        "http://127.0.0.1:3000",
	"REDIS_ADDR":             "",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"SUMMARY_TTL":            "30s",
	"POSTGRES_URL":           "",
	"SHEETS_URL":             "",
	"SHEETS_TOKEN":           "",
	"SEED_URL":               "",
	"REPLICATION_QUEUE_SIZE": 256,
	"REPLICATION_WORKERS":    2,
	"REPLICATION_TIMEOUT":    "10s",
	"REMINDER_INTERVAL":      "15m",
	"REMINDER_HOUR":          9,
	"TZ_NAME":                "",
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key gets a default, even an empty one.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	if cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		return nil, fmt.Errorf("REMINDER_HOUR must be between 0 and 23, got %d", cfg.ReminderHour)
	}
	return cfg, nil
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// Location resolves TZ_NAME, falling back to the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
