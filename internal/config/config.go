// Package config provides configuration loading and management for appdir.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stringlate/appdir/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of environment variables that override configuration
	EnvPrefix = "APPDIR"

	// DefaultCacheDir is where the minimized index is kept
	DefaultCacheDir = "./data/index"

	// DefaultStatusFileName is the status file name, placed next to the cache root
	DefaultStatusFileName = "status.yaml"

	// DefaultAddress is the API listen address
	DefaultAddress = ":8080"

	// DefaultHTTPTimeout bounds a single index download
	DefaultHTTPTimeout = 5 * time.Minute

	// DefaultMaxRetries is the number of download retries after the first attempt
	DefaultMaxRetries = 3

	// DefaultBreakerThreshold is the number of consecutive failures that opens the circuit
	DefaultBreakerThreshold = 5
)

// Keys used for viper overrides. Environment variables use EnvPrefix and
// underscores, e.g. APPDIR_INDEX_URL.
const (
	KeyCacheDir     = "cacheDir"
	KeyStatusFile   = "statusFile"
	KeyIndexURL     = "index.url"
	KeyHTTPTimeout  = "http.timeout"
	KeyHTTPRetries  = "http.maxRetries"
	KeySyncInterval = "sync.interval"
	KeyAddress      = "server.address"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path      string
	overrides *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithOverrides applies values set in v (bound flags or environment) on top
// of the file. Only keys that are explicitly set override.
func WithOverrides(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		cfg.overrides = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// CacheDir holds the persisted index. Defaults to ./data/index
	CacheDir string `yaml:"cacheDir,omitempty"`

	// StatusFile is the persisted sync status. Defaults to status.yaml next to CacheDir
	StatusFile string `yaml:"statusFile,omitempty"`

	Index     IndexConfig       `yaml:"index,omitempty"`
	HTTP      HTTPConfig        `yaml:"http,omitempty"`
	Sync      SyncConfig        `yaml:"sync,omitempty"`
	Server    ServerConfig      `yaml:"server,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// IndexConfig defines where the index archive is fetched from
type IndexConfig struct {
	// URL of the index archive. Empty means the official F-Droid repository
	URL string `yaml:"url,omitempty"`
}

// HTTPConfig defines download behaviour
type HTTPConfig struct {
	// Timeout is a duration string such as "2m"
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the number of retries after the first attempt. Nil means the default
	MaxRetries *int `yaml:"maxRetries,omitempty"`

	// BreakerThreshold is the consecutive failure count that opens the circuit breaker. Zero means the default
	BreakerThreshold int64 `yaml:"breakerThreshold,omitempty"`

	UserAgent string `yaml:"userAgent,omitempty"`
}

// SyncConfig defines synchronization settings
type SyncConfig struct {
	// Interval between periodic syncs, e.g. "24h". Empty disables periodic syncs
	Interval string `yaml:"interval,omitempty"`
}

// ServerConfig defines the API listener
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig builds a configuration from defaults, an optional YAML file and
// optional overrides, then validates it.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config

	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if loaderCfg.overrides != nil {
		config.applyOverrides(loaderCfg.overrides)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyOverrides(v *viper.Viper) {
	if v.IsSet(KeyCacheDir) {
		c.CacheDir = v.GetString(KeyCacheDir)
	}
	if v.IsSet(KeyStatusFile) {
		c.StatusFile = v.GetString(KeyStatusFile)
	}
	if v.IsSet(KeyIndexURL) {
		c.Index.URL = v.GetString(KeyIndexURL)
	}
	if v.IsSet(KeyHTTPTimeout) {
		c.HTTP.Timeout = v.GetString(KeyHTTPTimeout)
	}
	if v.IsSet(KeyHTTPRetries) {
		retries := v.GetInt(KeyHTTPRetries)
		c.HTTP.MaxRetries = &retries
	}
	if v.IsSet(KeySyncInterval) {
		c.Sync.Interval = v.GetString(KeySyncInterval)
	}
	if v.IsSet(KeyAddress) {
		c.Server.Address = v.GetString(KeyAddress)
	}
}

// GetCacheDir returns the cache root, using the default if not specified
func (c *Config) GetCacheDir() string {
	if c.CacheDir == "" {
		return DefaultCacheDir
	}
	return c.CacheDir
}

// GetStatusFile returns the status file path, defaulting to a file next to the cache root
func (c *Config) GetStatusFile() string {
	if c.StatusFile == "" {
		return filepath.Join(filepath.Dir(filepath.Clean(c.GetCacheDir())), DefaultStatusFileName)
	}
	return c.StatusFile
}

// GetAddress returns the API listen address
func (c *Config) GetAddress() string {
	if c.Server.Address == "" {
		return DefaultAddress
	}
	return c.Server.Address
}

// GetHTTPTimeout returns the download timeout, falling back to the default on invalid values
func (c *Config) GetHTTPTimeout() time.Duration {
	if c.HTTP.Timeout == "" {
		return DefaultHTTPTimeout
	}
	timeout, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil || timeout <= 0 {
		slog.Warn("Invalid http timeout, using default", "timeout", c.HTTP.Timeout, "default", DefaultHTTPTimeout)
		return DefaultHTTPTimeout
	}
	return timeout
}

// GetMaxRetries returns the number of download retries
func (c *Config) GetMaxRetries() int {
	if c.HTTP.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.HTTP.MaxRetries
}

// GetBreakerThreshold returns the circuit breaker failure threshold
func (c *Config) GetBreakerThreshold() int64 {
	if c.HTTP.BreakerThreshold <= 0 {
		return DefaultBreakerThreshold
	}
	return c.HTTP.BreakerThreshold
}

// GetSyncInterval returns the periodic sync interval; zero disables periodic syncs
func (c *Config) GetSyncInterval() time.Duration {
	if c.Sync.Interval == "" {
		return 0
	}
	interval, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		slog.Warn("Invalid sync interval, periodic sync disabled", "interval", c.Sync.Interval)
		return 0
	}
	return interval
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Index.URL != "" {
		u, err := url.Parse(c.Index.URL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("index.url: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("index.url must be an http or https URL, got %q", c.Index.URL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("index.url has no host: %q", c.Index.URL))
		}
	}

	if err := validateDuration("http.timeout", c.HTTP.Timeout, time.Nanosecond); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.MaxRetries != nil && *c.HTTP.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("http.maxRetries must not be negative, got %d", *c.HTTP.MaxRetries))
	}
	if c.HTTP.BreakerThreshold < 0 {
		errs = append(errs, fmt.Errorf("http.breakerThreshold must not be negative, got %d", c.HTTP.BreakerThreshold))
	}

	if err := validateDuration("sync.interval", c.Sync.Interval, time.Minute); err != nil {
		errs = append(errs, err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// validateDuration accepts an empty value or a duration of at least minimum
func validateDuration(field, value string, minimum time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d < minimum {
		return fmt.Errorf("%s must be at least %s, got %s", field, minimum, value)
	}
	return nil
}
