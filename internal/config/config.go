package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

type Config struct {
	Environment string     `mapstructure:"environment"`
	Port        string     `mapstructure:"port"`
	LogLevelRaw string     `mapstructure:"log_level"`
	LogLevel    slog.Level `mapstructure:"-"`

	// AllowedOrigins lists the browser origins allowed by CORS and websockets.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Database DatabaseConfig `mapstructure:"database"`
	RedisURL string         `mapstructure:"redis_url"`
	Casdoor  CasdoorConfig  `mapstructure:"casdoor"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Attempt  AttemptConfig  `mapstructure:"attempt"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type CasdoorConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Cert         string `mapstructure:"cert"`
	Organization string `mapstructure:"organization"`
	Application  string `mapstructure:"application"`
}

// KafkaConfig selects the event transport. With no brokers, events stay in process.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SweeperConfig drives the job that finalizes attempts left running past their deadline.
type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Grace    time.Duration `mapstructure:"grace"`
	Batch    int           `mapstructure:"batch"`
}

type AttemptConfig struct {
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	CatalogCacheTTL  time.Duration `mapstructure:"catalog_cache_ttl"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadConfig reads an optional .env file, then an optional config.yaml, then
// environment variables (DATABASE_URL, REDIS_URL, CASDOOR_ENDPOINT, ...).
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("environment", "APP_ENV", "ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)

	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)

	if cfg.Database.URL == "" {
		return nil, ErrMissingDatabaseURL
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis_url", "")

	v.SetDefault("casdoor.endpoint", "")
	v.SetDefault("casdoor.client_id", "")
	v.SetDefault("casdoor.client_secret", "")
	v.SetDefault("casdoor.cert", "")
	v.SetDefault("casdoor.organization", "")
	v.SetDefault("casdoor.application", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "quiz.attempts")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@every 1m")
	v.SetDefault("sweeper.grace", "2m")
	v.SetDefault("sweeper.batch", 100)

	v.SetDefault("attempt.autosave_interval", "30s")
	v.SetDefault("attempt.catalog_cache_ttl", "1m")
}

// splitList expands and trims comma separated entries, which is how lists
// come in from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
