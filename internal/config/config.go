// Package config loads the formengine CLI configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the CLI settings.
type Config struct {
	// Schema is a file path or http(s) URL of the form document.
	Schema string `yaml:"schema"`

	Endpoint EndpointConfig `yaml:"endpoint"`
	Server   ServerConfig   `yaml:"server"`
	Wizard   WizardConfig   `yaml:"wizard"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EndpointConfig configures the submission and search backend.
type EndpointConfig struct {
	BaseURL string            `yaml:"base_url"`
	Timeout string            `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	// Nonce is sent as a hidden field with every submission when set.
	NonceField string `yaml:"nonce_field"`
	Nonce      string `yaml:"nonce"`
}

// ServerConfig configures the development endpoint server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Terms is a YAML file of taxonomy terms served by the search endpoint.
	Terms    string `yaml:"terms"`
	PageSize int    `yaml:"page_size"`
	// MaxUpload bounds multipart request bodies, e.g. "32 MB".
	MaxUpload string `yaml:"max_upload"`
}

// WizardConfig configures the interactive wizard.
type WizardConfig struct {
	Draft   bool `yaml:"draft"`
	Confirm bool `yaml:"confirm"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL: "http://localhost:8090",
			Timeout: "30s",
		},
		Server: ServerConfig{
			Addr:      ":8090",
			PageSize:  20,
			MaxUpload: "32 MB",
		},
		Wizard: WizardConfig{
			Confirm: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FORMENGINE_SCHEMA"); v != "" {
		c.Schema = v
	}
	if v := os.Getenv("FORMENGINE_ENDPOINT"); v != "" {
		c.Endpoint.BaseURL = v
	}
	if v := os.Getenv("FORMENGINE_NONCE"); v != "" {
		c.Endpoint.Nonce = v
	}
	if v := os.Getenv("FORMENGINE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Timeout returns the endpoint timeout, falling back to 30s when unset or
// malformed.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.Endpoint.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Endpoint.BaseURL != "" {
		u, err := url.Parse(c.Endpoint.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid endpoint base_url %q", c.Endpoint.BaseURL)
		}
	}
	if c.Endpoint.Timeout != "" {
		if _, err := time.ParseDuration(c.Endpoint.Timeout); err != nil {
			return fmt.Errorf("config: invalid endpoint timeout %q: %w", c.Endpoint.Timeout, err)
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Logging.Format)
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	if c.Server.PageSize < 0 {
		return fmt.Errorf("config: page_size must not be negative")
	}
	return nil
}

// MaxUploadBytes parses Server.MaxUpload. An empty value means 32 MB.
func (c *Config) MaxUploadBytes() (int64, error) {
	if strings.TrimSpace(c.Server.MaxUpload) == "" {
		return 32_000_000, nil
	}
	n, err := humanize.ParseBytes(c.Server.MaxUpload)
	if err != nil {
		return 0, fmt.Errorf("config: invalid max_upload %q: %w", c.Server.MaxUpload, err)
	}
	return int64(n), nil
}

// IsRemoteSchema reports whether Schema names an http(s) URL.
func (c *Config) IsRemoteSchema() bool {
	s := strings.ToLower(c.Schema)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Logger builds a zap logger for the configured level and format. verbose
// forces debug level.
func (c *Config) Logger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("config: build logger: %w", err)
	}
	return logger, nil
}
