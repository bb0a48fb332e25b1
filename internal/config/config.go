// ABOUTME: Configuration loading and parsing for coven-planner and fake-planner
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the default config path.
const EnvConfigPath = "COVEN_PLANNER_CONFIG"

// Defaults applied to fields left empty in the file.
const (
	DefaultBaseURL        = "http://127.0.0.1:5000/api"
	DefaultTimeout        = 60 * time.Second
	DefaultPlannerAddr    = "127.0.0.1:5000"
	DefaultSessionTTL     = 24 * time.Hour
	DefaultIdempotencyTTL = 10 * time.Minute
	DefaultIdempotencyMax = 10000
	DefaultMetricsPath    = "/metrics"
	DefaultMetricsAddr    = "127.0.0.1:9464"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config represents the complete coven-planner configuration. The client
// reads service, auth and session; the fake service reads planner.
type Config struct {
	Service ServiceConfig `yaml:"service" toml:"service"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Session SessionConfig `yaml:"session" toml:"session"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Planner PlannerConfig `yaml:"planner" toml:"planner"`
}

// ServiceConfig locates the dialogue service
type ServiceConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// AuthConfig holds client credentials. Token wins over TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// SessionConfig holds the conversation identity. An empty UserID makes the
// client prompt for one.
type SessionConfig struct {
	UserID string `yaml:"user_id" toml:"user_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration. The fake service
// mounts Path on its own listener; the client serves Path on Addr.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// PlannerConfig configures the fake dialogue service
type PlannerConfig struct {
	Addr           string        `yaml:"addr" toml:"addr"`
	JWTSecret      string        `yaml:"jwt_secret" toml:"jwt_secret"`
	IdempotencyMax int           `yaml:"idempotency_max" toml:"idempotency_max"`
	SessionTTL     time.Duration `yaml:"-" toml:"-"`
	ReplyDelay     time.Duration `yaml:"-" toml:"-"`
	IdempotencyTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SessionTTLRaw     string `yaml:"session_ttl" toml:"session_ttl"`
	ReplyDelayRaw     string `yaml:"reply_delay" toml:"reply_delay"`
	IdempotencyTTLRaw string `yaml:"idempotency_ttl" toml:"idempotency_ttl"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault resolves the config path and loads it. When the path came
// from the XDG default and no file exists there, defaults are returned.
// An explicit path (flag or environment) must exist.
func LoadOrDefault(flagPath string) (*Config, string, error) {
	path, explicit := ResolvePath(flagPath)
	if path == "" {
		return Default(), "", nil
	}

	cfg, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), "", nil
		}
		return nil, path, err
	}
	return cfg, path, nil
}

// ResolvePath picks the config path: flag, then COVEN_PLANNER_CONFIG, then
// DefaultPath. explicit is false only for the default.
func ResolvePath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return DefaultPath(), false
}

// DefaultPath returns $XDG_CONFIG_HOME/coven-planner/config.yaml, falling
// back to ~/.config. Empty when no home directory can be found.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "coven-planner", "config.yaml")
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = DefaultBaseURL
	}
	if c.Service.Timeout == 0 {
		c.Service.Timeout = DefaultTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Planner.Addr == "" {
		c.Planner.Addr = DefaultPlannerAddr
	}
	if c.Planner.SessionTTL == 0 {
		c.Planner.SessionTTL = DefaultSessionTTL
	}
	if c.Planner.IdempotencyTTL == 0 {
		c.Planner.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if c.Planner.IdempotencyMax == 0 {
		c.Planner.IdempotencyMax = DefaultIdempotencyMax
	}
}

// Validate checks that all configuration fields are valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Service.BaseURL, "http://") && !strings.HasPrefix(c.Service.BaseURL, "https://") {
		return fmt.Errorf("service.base_url must be an http or https URL, got %q", c.Service.BaseURL)
	}
	if c.Service.Timeout < 0 {
		return fmt.Errorf("service.timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.Planner.SessionTTL < 0 {
		return fmt.Errorf("planner.session_ttl must not be negative")
	}
	if c.Planner.ReplyDelay < 0 {
		return fmt.Errorf("planner.reply_delay must not be negative")
	}
	if c.Planner.IdempotencyTTL < 0 || c.Planner.IdempotencyMax < 0 {
		return fmt.Errorf("planner idempotency limits must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"service.timeout", cfg.Service.TimeoutRaw, &cfg.Service.Timeout},
		{"planner.session_ttl", cfg.Planner.SessionTTLRaw, &cfg.Planner.SessionTTL},
		{"planner.reply_delay", cfg.Planner.ReplyDelayRaw, &cfg.Planner.ReplyDelay},
		{"planner.idempotency_ttl", cfg.Planner.IdempotencyTTLRaw, &cfg.Planner.IdempotencyTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
