package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. UUPFETCH_API_BASE_URL
const EnvPrefix = "UUPFETCH"

// Config represents the entire application configuration
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Download  DownloadConfig  `mapstructure:"download"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Converter ConverterConfig `mapstructure:"converter"`
}

// APIConfig contains metadata API settings
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
	BaseDelay  string `mapstructure:"base_delay"`
	MaxDelay   string `mapstructure:"max_delay"`
	UserAgent  string `mapstructure:"user_agent"`
}

// DownloadConfig contains download engine settings
type DownloadConfig struct {
	OutDir           string `mapstructure:"out_dir"`
	Concurrency      int    `mapstructure:"concurrency"`
	Resume           bool   `mapstructure:"resume"`
	FailurePolicy    string `mapstructure:"failure_policy"`
	RemoveOnMismatch bool   `mapstructure:"remove_on_mismatch"`
	HeaderTimeout    string `mapstructure:"header_timeout"`
	ChunkSizeKB      int    `mapstructure:"chunk_size_kb"`
	ProgressInterval string `mapstructure:"progress_interval"`
}

// JournalConfig contains transfer journal settings
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	// Textfile is a node_exporter textfile written after each download run
	Textfile string `mapstructure:"textfile"`
}

// ConverterConfig contains settings for the external UUP converter
type ConverterConfig struct {
	Dir             string `mapstructure:"dir"`
	Compression     string `mapstructure:"compression"`
	VirtualEditions bool   `mapstructure:"virtual_editions"`
}

// flagKeys maps command line flags to config keys
var flagKeys = map[string]string{
	"base-url":           "api.base_url",
	"max-retries":        "api.max_retries",
	"out":                "download.out_dir",
	"concurrency":        "download.concurrency",
	"failure-policy":     "download.failure_policy",
	"remove-on-mismatch": "download.remove_on_mismatch",
	"journal":            "journal.path",
	"log-level":          "logging.level",
	"log-format":         "logging.format",
	"log-file":           "logging.file",
	"metrics-textfile":   "metrics.textfile",
	"convert-dir":        "converter.dir",
	"compress":           "converter.compression",
	"virtual-editions":   "converter.virtual_editions",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.uupdump.net")
	v.SetDefault("api.timeout", "60s")
	v.SetDefault("api.max_retries", 5)
	v.SetDefault("api.base_delay", "1s")
	v.SetDefault("api.max_delay", "30s")
	v.SetDefault("api.user_agent", "")
	v.SetDefault("download.out_dir", "./uup-downloads")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.resume", true)
	v.SetDefault("download.failure_policy", "drain")
	v.SetDefault("download.remove_on_mismatch", false)
	v.SetDefault("download.header_timeout", "120s")
	v.SetDefault("download.chunk_size_kb", 1024)
	v.SetDefault("download.progress_interval", "5s")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("converter.dir", "./converter")
	v.SetDefault("converter.compression", "wim")
	v.SetDefault("converter.virtual_editions", false)
}

// Load builds the configuration from defaults, an optional config file,
// UUPFETCH_* environment variables and changed command line flags, in
// increasing order of precedence. An empty configPath looks for
// uupfetch.yaml in the working directory and the user config directory;
// a missing file is not an error in that case.
func Load(configPath string, flagSets ...*pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The converter project documents UUP_CONVERTER_DIR
	if err := v.BindEnv("converter.dir", EnvPrefix+"_CONVERTER_DIR", "UUP_CONVERTER_DIR"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("uupfetch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "uupfetch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, fs := range flagSets {
		if fs == nil {
			continue
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.MaxRetries < 1 || c.API.MaxRetries > 20 {
		return fmt.Errorf("api.max_retries must be between 1 and 20")
	}

	durations := map[string]string{
		"api.timeout":                c.API.Timeout,
		"api.base_delay":             c.API.BaseDelay,
		"api.max_delay":              c.API.MaxDelay,
		"download.header_timeout":    c.Download.HeaderTimeout,
		"download.progress_interval": c.Download.ProgressInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Download.Concurrency < 1 || c.Download.Concurrency > 64 {
		return fmt.Errorf("download.concurrency must be between 1 and 64")
	}
	if c.Download.ChunkSizeKB < 1 {
		return fmt.Errorf("download.chunk_size_kb must be positive")
	}
	// Same names as engine.ParsePolicy
	switch strings.ToLower(strings.TrimSpace(c.Download.FailurePolicy)) {
	case "drain", "drain-all", "fail-fast":
	default:
		return fmt.Errorf("invalid download.failure_policy: %s", c.Download.FailurePolicy)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	switch strings.ToLower(c.Converter.Compression) {
	case "wim", "esd":
	default:
		return fmt.Errorf("invalid converter.compression: %s", c.Converter.Compression)
	}

	return nil
}

// GetTimeout returns the per-request timeout
func (c *APIConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetBaseDelay returns the initial retry backoff
func (c *APIConfig) GetBaseDelay() time.Duration {
	d, _ := time.ParseDuration(c.BaseDelay)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetMaxDelay returns the backoff cap
func (c *APIConfig) GetMaxDelay() time.Duration {
	d, _ := time.ParseDuration(c.MaxDelay)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetHeaderTimeout returns the download response header timeout
func (c *DownloadConfig) GetHeaderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.HeaderTimeout)
	if d == 0 {
		return 120 * time.Second
	}
	return d
}

// GetChunkSize returns the streaming chunk size in bytes
func (c *DownloadConfig) GetChunkSize() int {
	if c.ChunkSizeKB <= 0 {
		return 1024 * 1024 // 1MB default
	}
	return c.ChunkSizeKB * 1024
}

// GetProgressInterval returns the progress log interval
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressInterval)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// GetPath returns the journal database path, defaulting under the user state dir
func (c *JournalConfig) GetPath() string {
	if c.Path != "" {
		return c.Path
	}
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "uupfetch", "journal.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "uupfetch", "journal.db")
	}
	return "uupfetch-journal.db"
}
