package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOTXBaseURL   = "https://otx.alienvault.com"
	DefaultUserAgent    = "Mozilla/5.0"
	DefaultOTXTimeout   = 10 * time.Second
	DefaultRetryDelay   = 60 * time.Second
	DefaultRetryMaxWait = 15 * time.Minute
)

type Config struct {
	LogLevel    string        `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	LogFormat   string        `yaml:"log_format" json:"log_format" mapstructure:"log_format"`
	LogFile     string        `yaml:"log_file" json:"log_file" mapstructure:"log_file"`
	Quiet       bool          `yaml:"quiet" json:"quiet" mapstructure:"quiet"`
	OutputDir   string        `yaml:"output_dir" json:"output_dir" mapstructure:"output_dir"`
	MetricsFile string        `yaml:"metrics_file" json:"metrics_file" mapstructure:"metrics_file"`
	OTX         OTXConfig     `yaml:"otx" json:"otx" mapstructure:"otx"`
	Retry       RetryConfig   `yaml:"retry" json:"retry" mapstructure:"retry"`
	Resolve     ResolveConfig `yaml:"resolve" json:"resolve" mapstructure:"resolve"`
}

type OTXConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent" mapstructure:"user_agent"`
	APIKey            string        `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"`
}

// RetryConfig controls how a 429 from OTX is handled. MaxAttempts of zero
// keeps retrying until the API stops rate limiting or the run is cancelled.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `yaml:"delay" json:"delay" mapstructure:"delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier" mapstructure:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay" mapstructure:"max_delay"`
}

type ResolveConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Servers     []string      `yaml:"servers" json:"servers" mapstructure:"servers"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency"`
	Retries     int           `yaml:"retries" json:"retries" mapstructure:"retries"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		OutputDir: ".",
		OTX: OTXConfig{
			BaseURL:   DefaultOTXBaseURL,
			UserAgent: DefaultUserAgent,
			Timeout:   DefaultOTXTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts: 0,
			Delay:       DefaultRetryDelay,
			Multiplier:  1.0,
			MaxDelay:    DefaultRetryMaxWait,
		},
		Resolve: ResolveConfig{
			Enabled:     false,
			Timeout:     3 * time.Second,
			Concurrency: 10,
			Retries:     2,
		},
	}
}

func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, "log_level must be one of trace|debug|info|warn|error|fatal|panic")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, "log_format must be text or json")
	}
	if c.OutputDir == "" {
		errs = append(errs, "output_dir must not be empty")
	}

	if c.OTX.BaseURL == "" {
		errs = append(errs, "otx.base_url must not be empty")
	}
	if c.OTX.Timeout <= 0 {
		errs = append(errs, "otx.timeout must be > 0")
	}
	if c.OTX.RequestsPerSecond < 0 {
		errs = append(errs, "otx.requests_per_second must be >= 0")
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be >= 0")
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, "retry.delay must be >= 0")
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be >= 1")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.Delay {
		errs = append(errs, "retry.max_delay must be >= retry.delay")
	}

	if c.Resolve.Enabled {
		if c.Resolve.Timeout <= 0 {
			errs = append(errs, "resolve.timeout must be > 0 when resolution is enabled")
		}
		if c.Resolve.Concurrency <= 0 {
			errs = append(errs, "resolve.concurrency must be > 0 when resolution is enabled")
		}
		if c.Resolve.Retries < 0 {
			errs = append(errs, "resolve.retries must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	return os.Rename(tmp, path)
}

func (c *Config) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return c.Validate()
}
