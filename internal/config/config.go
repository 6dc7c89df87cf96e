package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

const envPrefix = "CHECKOUT_"

type Config struct {
	Primary          Primary                `koanf:"primary"`
	Server           ServerConfig           `koanf:"server"`
	Database         DatabaseConfig         `koanf:"database"`
	FallbackDatabase FallbackDatabaseConfig `koanf:"fallback_database"`
	Gateway          GatewayConfig          `koanf:"gateway"`
	Retry            RetryConfig            `koanf:"retry"`
	Logger           LoggerConfig           `koanf:"logger"`
	Worker           WorkerConfig           `koanf:"worker"`
	Auth             AuthConfig             `koanf:"auth"`
	Kafka            KafkaConfig            `koanf:"kafka"`
	Metrics          MetricsConfig          `koanf:"metrics"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
	// PrimaryRole is assumed with SET LOCAL ROLE before customer writes so
	// row-level security policies apply. Empty keeps the login role.
	PrimaryRole string `koanf:"primary_role"`
}

// FallbackDatabaseConfig holds the elevated credential used by the order
// fallback write path. An empty user leaves the fallback path disabled.
type FallbackDatabaseConfig struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

func (f FallbackDatabaseConfig) Enabled() bool {
	return f.User != ""
}

type GatewayConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	KeyID       string        `koanf:"key_id" validate:"required"`
	KeySecret   string        `koanf:"key_secret" validate:"required"`
	ConnTimeout time.Duration `koanf:"conn_timeout" validate:"required"`
	Currency    string        `koanf:"currency" validate:"required,len=3"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int           `koanf:"max_retries" validate:"omitempty,min=1,max=10"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json text"`
}

type WorkerConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"required"`
	BatchSize  int           `koanf:"batch_size" validate:"required"`
	StaleAfter time.Duration `koanf:"stale_after" validate:"required"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`
	Issuer    string `koanf:"issuer"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type MetricsConfig struct {
	Namespace string `koanf:"namespace"`
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}
	mainConfig.applyDefaults()

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func (c *Config) applyDefaults() {
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 200 * time.Millisecond
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "checkout"
	}
	c.Gateway.Currency = strings.ToUpper(c.Gateway.Currency)
}
