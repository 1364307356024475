// Package config loads and validates service configuration. Required
// secrets are checked at startup so a misconfigured deployment fails
// before it takes traffic, not mid-submission.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ritetech/rcm-intake/internal/email"
	"github.com/ritetech/rcm-intake/internal/messaging"
	"github.com/ritetech/rcm-intake/internal/store/postgres"
	"github.com/ritetech/rcm-intake/internal/store/sheets"
)

const (
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StoreConfig struct {
	Backend  string          `mapstructure:"backend"`
	Postgres postgres.Config `mapstructure:"postgres"`
	Sheets   sheets.Config   `mapstructure:"sheets"`
}

type CacheConfig struct {
	Backend  string        `mapstructure:"backend"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
}

type AuthConfig struct {
	Secret      string        `mapstructure:"secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type IntakeConfig struct {
	StrictEmiratesID bool `mapstructure:"strict_emirates_id"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Store     StoreConfig      `mapstructure:"store"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Intake    IntakeConfig     `mapstructure:"intake"`
	Messaging messaging.Config `mapstructure:"messaging"`
	Email     email.Config     `mapstructure:"email"`
	Log       LogConfig        `mapstructure:"log"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("RCM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("store.backend", BackendPostgres)
	viper.SetDefault("store.postgres.port", 5432)
	viper.SetDefault("store.postgres.sslmode", "require")
	viper.SetDefault("cache.backend", CacheMemory)
	viper.SetDefault("cache.ttl", 60*time.Second)
	viper.SetDefault("auth.token_expiry", 12*time.Hour)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("rate_limit.rps", 20)
	viper.SetDefault("rate_limit.burst", 40)

	if err := viper.ReadInConfig(); err != nil {
		// Config may come entirely from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting the selected backends require.
func (c *Config) Validate() error {
	var missing []string

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Store.Postgres.Host == "" {
			missing = append(missing, "store.postgres.host")
		}
		if c.Store.Postgres.User == "" {
			missing = append(missing, "store.postgres.user")
		}
		if c.Store.Postgres.Name == "" {
			missing = append(missing, "store.postgres.name")
		}
	case BackendSheets:
		if c.Store.Sheets.BaseURL == "" {
			missing = append(missing, "store.sheets.base_url")
		}
		if c.Store.Sheets.SpreadsheetID == "" {
			missing = append(missing, "store.sheets.spreadsheet_id")
		}
		if c.Store.Sheets.Token == "" {
			missing = append(missing, "store.sheets.token")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendPostgres, BackendSheets, c.Store.Backend)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			missing = append(missing, "cache.redis_url")
		}
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", CacheMemory, CacheRedis, c.Cache.Backend)
	}

	if c.Auth.Secret == "" {
		missing = append(missing, "auth.secret")
	}

	if c.Messaging.BaseURL != "" {
		if c.Messaging.Token == "" {
			missing = append(missing, "messaging.token")
		}
		if c.Messaging.SenderID == "" {
			missing = append(missing, "messaging.sender_id")
		}
		if len(c.Messaging.Recipients) == 0 {
			missing = append(missing, "messaging.recipients")
		}
	}

	if c.Email.Host != "" {
		if c.Email.From == "" {
			missing = append(missing, "email.from")
		}
		if len(c.Email.Recipients) == 0 {
			missing = append(missing, "email.recipients")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
