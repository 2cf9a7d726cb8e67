package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/odata/internal/metacache"
)

// FileName is the base name of the configuration file, without extension
const FileName = "odata"

// EnvPrefix prefixes every environment override, e.g. ODATA_SERVICE_URL
const EnvPrefix = "ODATA"

// Config represents the odata CLI configuration
type Config struct {
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ServiceConfig describes the OData service to talk to
type ServiceConfig struct {
	URL     string            `mapstructure:"url" yaml:"url"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CacheConfig selects where fetched $metadata documents are kept
type CacheConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Prefix  string        `mapstructure:"prefix" yaml:"prefix"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	SQL     SQLConfig     `mapstructure:"sql" yaml:"sql"`
}

// RedisConfig holds the redis backend settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// SQLConfig holds the database backend settings
type SQLConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Table  string `mapstructure:"table" yaml:"table"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.url", "")
	v.SetDefault("service.timeout", 30*time.Second)
	v.SetDefault("service.headers", map[string]string{})
	v.SetDefault("cache.backend", metacache.BackendMemory)
	v.SetDefault("cache.ttl", metacache.DefaultConfig().DefaultTTL)
	v.SetDefault("cache.prefix", metacache.DefaultConfig().Prefix)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.sql.driver", "sqlite3")
	v.SetDefault("cache.sql.dsn", "")
	v.SetDefault("cache.sql.table", "odata_metadata")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads odata.yml from the current directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads odata.yml (or odata.yaml) from dir. A missing file is not an
// error; defaults and ODATA_* environment variables apply.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Save writes cfg as YAML to path
func Save(cfg *Config, path string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("service.url", cfg.Service.URL)
	v.Set("service.timeout", cfg.Service.Timeout.String())
	if len(cfg.Service.Headers) > 0 {
		v.Set("service.headers", cfg.Service.Headers)
	}
	v.Set("cache.backend", cfg.Cache.Backend)
	v.Set("cache.ttl", cfg.Cache.TTL.String())
	v.Set("cache.prefix", cfg.Cache.Prefix)
	switch cfg.Cache.Backend {
	case metacache.BackendRedis:
		v.Set("cache.redis.addr", cfg.Cache.Redis.Addr)
		v.Set("cache.redis.db", cfg.Cache.Redis.DB)
	case metacache.BackendSQL:
		v.Set("cache.sql.driver", cfg.Cache.SQL.Driver)
		v.Set("cache.sql.dsn", cfg.Cache.SQL.DSN)
		v.Set("cache.sql.table", cfg.Cache.SQL.Table)
	}
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file or environment is present
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// CacheOptions maps the cache section onto metacache.Open options
func (c *Config) CacheOptions() metacache.Options {
	return metacache.Options{
		Backend:       c.Cache.Backend,
		TTL:           c.Cache.TTL,
		Prefix:        c.Cache.Prefix,
		RedisAddr:     c.Cache.Redis.Addr,
		RedisPassword: c.Cache.Redis.Password,
		RedisDB:       c.Cache.Redis.DB,
		Driver:        c.Cache.SQL.Driver,
		DSN:           c.Cache.SQL.DSN,
		Table:         c.Cache.SQL.Table,
	}
}

// FindConfigFile looks for odata.yml or odata.yaml in the current directory
// and its parents
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{".yml", ".yaml"} {
			candidate := filepath.Join(dir, FileName+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yml found in current directory or its parents", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Service.URL != "" {
		u, err := url.Parse(cfg.Service.URL)
		if err != nil {
			return fmt.Errorf("service.url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("service.url must be an absolute http(s) URL, got: %s", cfg.Service.URL)
		}
	}
	if cfg.Service.Timeout < 0 {
		return fmt.Errorf("service.timeout must not be negative, got: %s", cfg.Service.Timeout)
	}

	known := false
	for _, b := range metacache.Backends {
		if cfg.Cache.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("cache.backend must be one of %s, got: %q", strings.Join(metacache.Backends, ", "), cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == metacache.BackendSQL && (cfg.Cache.SQL.Driver == "" || cfg.Cache.SQL.DSN == "") {
		return fmt.Errorf("cache.sql.driver and cache.sql.dsn are required for the %q backend", metacache.BackendSQL)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
