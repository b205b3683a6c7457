// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"` // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver" env:"DRIVER"` // postgres | sqlite
	URL        string `yaml:"url" env:"URL"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	MaxConns   int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"URL"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET"`
	AdminAPIKey string `yaml:"admin_api_key" env:"ADMIN_API_KEY"`
}

type EntitlementConfig struct {
	CodeLength       int           `yaml:"code_length" env:"CODE_LENGTH"`
	CodeTTL          time.Duration `yaml:"code_ttl" env:"CODE_TTL"`
	MaxDurationDays  int           `yaml:"max_duration_days" env:"MAX_DURATION_DAYS"`
	MaxUsesLimit     int           `yaml:"max_uses_limit" env:"MAX_USES_LIMIT"`
	MintCooldown     time.Duration `yaml:"mint_cooldown" env:"MINT_COOLDOWN"`
	GenerateAttempts int           `yaml:"generate_attempts" env:"GENERATE_ATTEMPTS"`
	RedeemRetries    int           `yaml:"redeem_retries" env:"REDEEM_RETRIES"`
	RedeemRateLimit  int           `yaml:"redeem_rate_limit" env:"REDEEM_RATE_LIMIT"` // attempts per window per account, needs redis
	RedeemRateWindow time.Duration `yaml:"redeem_rate_window" env:"REDEEM_RATE_WINDOW"`
}

type SweeperConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Interval  time.Duration `yaml:"interval" env:"INTERVAL"`
	BatchSize int           `yaml:"batch_size" env:"BATCH_SIZE"`
	LockTTL   time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
}

type Config struct {
	HTTP        HTTPConfig        `yaml:"http" envPrefix:"HTTP_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
	Database    DatabaseConfig    `yaml:"database" envPrefix:"DB_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	Auth        AuthConfig        `yaml:"auth" envPrefix:"AUTH_"`
	Entitlement EntitlementConfig `yaml:"entitlement" envPrefix:"ENTITLEMENT_"`
	Sweeper     SweeperConfig     `yaml:"sweeper" envPrefix:"SWEEPER_"`
	Tracing     TracingConfig     `yaml:"tracing" envPrefix:"TRACING_"`

	Runtime RuntimeConfig `yaml:"-"`
}

const envPrefix = "VIP_"

// LoadConfig reads the YAML file at path, then applies VIP_* environment
// overrides (a local .env file is honoured if present) and defaults.
// A missing file is not an error when the environment supplies what is required.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	_ = godotenv.Load()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Entitlement.CodeLength <= 0 {
		c.Entitlement.CodeLength = 6
	}
	if c.Entitlement.CodeTTL <= 0 {
		c.Entitlement.CodeTTL = 30 * 24 * time.Hour
	}
	if c.Entitlement.MaxDurationDays <= 0 {
		c.Entitlement.MaxDurationDays = 366
	}
	if c.Entitlement.MaxUsesLimit <= 0 {
		c.Entitlement.MaxUsesLimit = 1000
	}
	if c.Entitlement.GenerateAttempts <= 0 {
		c.Entitlement.GenerateAttempts = 10
	}
	if c.Entitlement.RedeemRetries <= 0 {
		c.Entitlement.RedeemRetries = 3
	}
	if c.Entitlement.RedeemRateLimit <= 0 {
		c.Entitlement.RedeemRateLimit = 20
	}
	if c.Entitlement.RedeemRateWindow <= 0 {
		c.Entitlement.RedeemRateWindow = time.Minute
	}
	if c.Sweeper.Interval <= 0 {
		c.Sweeper.Interval = 7 * 24 * time.Hour
	}
	if c.Sweeper.BatchSize <= 0 {
		c.Sweeper.BatchSize = 500
	}
	if c.Sweeper.LockTTL <= 0 {
		c.Sweeper.LockTTL = 5 * time.Minute
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "vip-entitlement"
	}
}

// Validate performs minimal sanity checks on a defaulted config.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Entitlement.CodeLength < 4 {
		return errors.New("entitlement.code_length must be at least 4")
	}
	if c.Entitlement.MintCooldown < 0 {
		return errors.New("entitlement.mint_cooldown must not be negative")
	}
	return nil
}
