package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	Device          DeviceConfig    `yaml:"device"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	API             APIConfig       `yaml:"api"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level     string   `yaml:"level"`
	Colors    bool     `yaml:"colors"`
	JSON      bool     `yaml:"json"`
	PrintJobs Duration `yaml:"print_jobs"` // Interval to print the job table (0 = disabled)
}

// DeviceConfig contains settings for talking to the relay/strip controller
type DeviceConfig struct {
	Timeout      Duration `yaml:"timeout"`        // Per-request HTTP timeout
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Outbound request budget
	DefaultURL   string   `yaml:"default_url"`    // Seeded into the config table on first start
}

// SchedulerConfig contains job engine settings
type SchedulerConfig struct {
	Timezone  string `yaml:"timezone"`
	Workers   int    `yaml:"workers"`    // Number of worker goroutines running fired jobs
	QueueSize int    `yaml:"queue_size"` // Fired job queue size
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	Enabled     *bool    `yaml:"enabled"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// IsEnabled returns whether the API server should run (default: true)
func (c APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns whether fires and device outcomes are recorded (default: true)
func (c LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Retention returns the retention window as a duration
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Location resolves the scheduler timezone, falling back to the local zone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid scheduler timezone %q", c.Timezone)
	}
	return loc, nil
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, errors.Wrapf(err, "failed to parse config %s", path)
			}
		case os.IsNotExist(err):
			// defaults only
		default:
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	applyDefaults(&cfg)

	if _, err := cfg.Scheduler.Location(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./relayd.sqlite"
	}

	// Device defaults
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(5 * time.Second)
	}
	if cfg.Device.RateLimitRPS == 0 {
		cfg.Device.RateLimitRPS = 5.0
	}
	if cfg.Device.DefaultURL == "" {
		cfg.Device.DefaultURL = "http://192.168.1.100"
	}

	// Scheduler defaults
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.QueueSize <= 0 {
		cfg.Scheduler.QueueSize = 100
	}

	// API defaults
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 5000
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// envPattern matches ${VAR} or ${VAR:default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
