// Package config loads folio configuration from an optional YAML file and
// FOLIO_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/layer-3/folio/core"
)

// EnvPrefix prefixes every environment override: FOLIO_API_BASE_URL
const EnvPrefix = "FOLIO"

// Config is the top-level configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig configures the request client
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig configures where the session is persisted
type StorageConfig struct {
	// Path of the SQLite database; ignored when Redis is configured
	Path string `mapstructure:"path"`
}

// RedisConfig enables the Redis store and event stream
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// WalletConfig configures the key-backed wallet provider
type WalletConfig struct {
	Provider   string `mapstructure:"provider"`
	PrivateKey string `mapstructure:"private_key"`
	Network    string `mapstructure:"network"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.cache_ttl", 30*time.Second)
	v.SetDefault("storage.path", filepath.Join(home, ".folio", "folio.db"))
	v.SetDefault("redis.url", "")
	v.SetDefault("wallet.provider", string(core.ProviderMetaMask))
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.network", "1")
	v.SetDefault("log.level", "info")
}

// Load reads configFile, or folio.yaml from the working directory or
// $HOME/.folio when configFile is empty. A missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, _ := os.UserHomeDir()
		v.SetConfigName("folio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".folio"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url: invalid URL %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout: must be positive"))
	}
	if c.API.CacheTTL < 0 {
		errs = append(errs, errors.New("api.cache_ttl: must not be negative"))
	}
	if c.Redis.URL == "" && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path: required without redis.url"))
	}
	if !core.ProviderID(c.Wallet.Provider).Valid() {
		errs = append(errs, fmt.Errorf("wallet.provider: unknown provider %q", c.Wallet.Provider))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured log level
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
