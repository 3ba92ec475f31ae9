// Package config loads and validates run configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.synthgen/synthgen.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version int           `yaml:"version"`
	Seed    int64         `yaml:"seed,omitempty"`
	Rows    RowsConfig    `yaml:"rows,omitempty"`
	Retry   RetryConfig   `yaml:"retry,omitempty"`
	Backend BackendConfig `yaml:"backend"`
	Output  OutputConfig  `yaml:"output,omitempty"`
	Source  SourceConfig  `yaml:"source,omitempty"`
	Logging LogConfig     `yaml:"logging,omitempty"`
}

// RowsConfig sets row counts per table plus a fallback default.
type RowsConfig struct {
	Default  int            `yaml:"default,omitempty"` // default 50
	PerTable map[string]int `yaml:"per_table,omitempty"`
}

// RetryConfig bounds backend invocation retries.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts,omitempty"` // default 3
	BaseDelay   Duration `yaml:"base_delay,omitempty"`   // default 500ms
	Multiplier  float64  `yaml:"multiplier,omitempty"`   // default 2.0
}

// BackendConfig defines the generation backend endpoint.
type BackendConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	APIKey       string   `yaml:"api_key,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty"` // default 30s
	MaxRepairs   int      `yaml:"max_repairs,omitempty"`
	FKSampleSize int      `yaml:"fk_sample_size,omitempty"`
}

// OutputConfig defines where generated data lands.
type OutputConfig struct {
	Directory        string `yaml:"directory,omitempty"` // default ./output
	ConnectionString string `yaml:"connection_string,omitempty"`
	Database         string `yaml:"database,omitempty"`
}

// SourceConfig defines the database to introspect for schema discovery.
type SourceConfig struct {
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Database       string `yaml:"database,omitempty"`
	Schema         string `yaml:"schema,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	SSL            bool   `yaml:"ssl,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 10, max 50
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.synthgen/logs/
}

// Duration wraps time.Duration so YAML values like "500ms" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Rows.Default == 0 {
		c.Rows.Default = 50
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = Duration(500 * time.Millisecond)
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(30 * time.Second)
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./output"
	}
	if c.Source.MaxConnections == 0 {
		c.Source.MaxConnections = 10
	}
	if c.Source.MaxConnections > 50 {
		c.Source.MaxConnections = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.synthgen/logs/")
	}
}

var secretPattern = regexp.MustCompile(`\$\{ENV:([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Backend.APIKey, err = ResolveValue(c.Backend.APIKey)
	if err != nil {
		return fmt.Errorf("backend api key: %w", err)
	}
	c.Source.Password, err = ResolveValue(c.Source.Password)
	if err != nil {
		return fmt.Errorf("source password: %w", err)
	}
	c.Output.ConnectionString, err = ResolveValue(c.Output.ConnectionString)
	if err != nil {
		return fmt.Errorf("output connection string: %w", err)
	}
	return nil
}

// ResolveValue resolves ${ENV:NAME} references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	v := os.Getenv(matches[1])
	if v == "" {
		return "", fmt.Errorf("environment variable %s not set", matches[1])
	}
	return v, nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
