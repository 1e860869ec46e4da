package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aussiebroadwan/pizzeria/internal/payment"
	"github.com/aussiebroadwan/pizzeria/internal/tracker"
	"github.com/aussiebroadwan/pizzeria/pkg/httpx"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PIZZERIA_BASE_URL.
const EnvPrefix = "PIZZERIA"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	BaseURL      string `mapstructure:"base_url"`      // Storefront root URL (default: http://localhost:8000)
	StoreDriver  string `mapstructure:"store_driver"`  // memory, sqlite or redis (default: sqlite)
	DatabaseFile string `mapstructure:"database_file"` // SQLite file (default: <user config dir>/pizzeria/state.db)
	RedisAddr    string `mapstructure:"redis_addr"`    // Redis host:port (default: localhost:6379)
	RedisPrefix  string `mapstructure:"redis_prefix"`  // Redis key prefix (default: pizzeria)
	MasterKey    string `mapstructure:"master_key"`    // Optional: seals stored credentials when set

	Env       string `mapstructure:"env"`        // Environment (dev, prod) (default: prod)
	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error (default: warn)
	LogFormat string `mapstructure:"log_format"` // json, text (default: text)

	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`  // Per-request timeout (default: 10s)
	PollInterval time.Duration `mapstructure:"poll_interval"` // Order tracking interval (default: 10s)
	PaymentDelay time.Duration `mapstructure:"payment_delay"` // Simulated authorization time (default: 2s)

	RateLimitRequests int           `mapstructure:"rate_limit_requests"` // 0 disables client-side limiting (default: 120)
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`   // (default: 1m)
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`    // (default: 20)

	// LogOutput receives log records. Defaults to stderr.
	LogOutput io.Writer `mapstructure:"-"`
}

// RateLimit returns the outbound rate limit described by the config.
func (c Config) RateLimit() httpx.RateLimitConfig {
	return httpx.RateLimitConfig{
		RequestsPerWindow: c.RateLimitRequests,
		Window:            c.RateLimitWindow,
		Burst:             c.RateLimitBurst,
	}
}

func defaultDatabaseFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pizzeria.db"
	}
	return filepath.Join(dir, "pizzeria", "state.db")
}

// defaults lists every key with its default value. Viper only unmarshals env
// overrides for keys it knows about, so every key must appear here.
func defaults() map[string]any {
	return map[string]any{
		"base_url":            "http://localhost:8000",
		"store_driver":        DriverSQLite,
		"database_file":       defaultDatabaseFile(),
		"redis_addr":          "localhost:6379",
		"redis_prefix":        "pizzeria",
		"master_key":          "",
		"env":                 "prod",
		"log_level":           "warn",
		"log_format":          "text",
		"http_timeout":        pizzasdk.DefaultTimeout,
		"poll_interval":       tracker.DefaultInterval,
		"payment_delay":       payment.DefaultDelay,
		"rate_limit_requests": httpx.DefaultRateLimit.RequestsPerWindow,
		"rate_limit_window":   httpx.DefaultRateLimit.Window,
		"rate_limit_burst":    httpx.DefaultRateLimit.Burst,
	}
}

// flagName maps a config key to its command-line flag.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds the global configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := defaults()
	fs.String("config", "", "path to a YAML config file")
	fs.String(flagName("base_url"), d["base_url"].(string), "storefront base URL")
	fs.String(flagName("store_driver"), d["store_driver"].(string), "credential store: memory, sqlite or redis")
	fs.String(flagName("database_file"), d["database_file"].(string), "SQLite credential store file")
	fs.String(flagName("redis_addr"), d["redis_addr"].(string), "Redis address for the redis store")
	fs.String(flagName("redis_prefix"), d["redis_prefix"].(string), "Redis key prefix")
	fs.String(flagName("log_level"), d["log_level"].(string), "log level: debug, info, warn, error")
	fs.String(flagName("log_format"), d["log_format"].(string), "log format: json, text")
	fs.Duration(flagName("http_timeout"), d["http_timeout"].(time.Duration), "per-request timeout")
	fs.Duration(flagName("poll_interval"), d["poll_interval"].(time.Duration), "order tracking poll interval")
}

// LoadConfig resolves the configuration. Precedence, highest first: flags
// set on the command line, PIZZERIA_* environment variables, the config file,
// defaults. fs may be nil.
func LoadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key := range defaults() {
			if f := fs.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readConfigFile loads an explicit --config file, or pizzeria.yaml from the
// working directory or the user config directory when present.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	path := os.Getenv(EnvPrefix + "_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("pizzeria")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "pizzeria"))
	}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Validate rejects configurations that cannot produce a working client.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverSQLite && c.DatabaseFile == "" {
		return errors.New("database_file is required for the sqlite store")
	}
	if c.StoreDriver == DriverRedis && c.RedisAddr == "" {
		return errors.New("redis_addr is required for the redis store")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http_timeout must be positive")
	}
	return nil
}
