// Package config loads and validates the kiln configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/kiln/pkg/browser"
)

// Duration wraps time.Duration so config values can be written as "30m"
// or "90s" instead of nanosecond counts.
type Duration time.Duration

// UnmarshalYAML parses a duration string from the YAML node.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the full kiln configuration.
type Config struct {
	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Browser provisioning configuration
	Browser BrowserConfig `yaml:"browser"`

	// Session lifecycle configuration
	Sessions SessionsConfig `yaml:"sessions"`
}

// LogConfig defines logging configuration.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, or error
	Level string `yaml:"level"`
}

// BrowserConfig defines how browser contexts are launched.
type BrowserConfig struct {
	// Headless controls whether browsers run without a visible window
	Headless bool `yaml:"headless"`

	// Viewport sets the browser window dimensions
	Viewport ViewportConfig `yaml:"viewport"`

	// DefaultTimeoutMs is the default timeout for page operations
	DefaultTimeoutMs float64 `yaml:"default_timeout_ms"`

	// URL policy
	AllowedURLs []string `yaml:"allowed_urls"`
	DeniedURLs  []string `yaml:"denied_urls"`
}

// ViewportConfig defines browser viewport dimensions.
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SessionsConfig defines session lifecycle limits.
type SessionsConfig struct {
	// SweepInterval is how often idle sessions are checked for eviction.
	// Zero disables the background sweeper.
	SweepInterval Duration `yaml:"sweep_interval"`

	// MaxIdleAge is how long a session may sit unused before the sweeper
	// closes it.
	MaxIdleAge Duration `yaml:"max_idle_age"`
}

// DefaultConfig returns a default configuration suitable for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Browser: BrowserConfig{
			Headless: true,
			Viewport: ViewportConfig{
				Width:  browser.DefaultViewportWidth,
				Height: browser.DefaultViewportHeight,
			},
			DefaultTimeoutMs: browser.DefaultTimeout,
		},
		Sessions: SessionsConfig{
			SweepInterval: Duration(time.Minute),
			MaxIdleAge:    Duration(30 * time.Minute),
		},
	}
}

// Load reads a YAML configuration file, applying file values over the
// defaults. Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be 'trace', 'debug', 'info', 'warn', or 'error')", c.Log.Level)
	}

	if c.Browser.Viewport.Width < 100 || c.Browser.Viewport.Width > 5000 {
		return fmt.Errorf("viewport width must be between 100 and 5000 pixels")
	}
	if c.Browser.Viewport.Height < 100 || c.Browser.Viewport.Height > 5000 {
		return fmt.Errorf("viewport height must be between 100 and 5000 pixels")
	}

	if c.Browser.DefaultTimeoutMs < 0 {
		return fmt.Errorf("default_timeout_ms cannot be negative")
	}

	for _, pattern := range c.Browser.AllowedURLs {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid allowed_urls pattern %q: %w", pattern, err)
		}
	}
	for _, pattern := range c.Browser.DeniedURLs {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid denied_urls pattern %q: %w", pattern, err)
		}
	}

	if c.Sessions.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval cannot be negative")
	}
	if c.Sessions.MaxIdleAge < 0 {
		return fmt.Errorf("max_idle_age cannot be negative")
	}

	return nil
}

// BrowserOptions maps the browser section onto provider options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless: c.Browser.Headless,
		Viewport: &browser.Viewport{
			Width:  c.Browser.Viewport.Width,
			Height: c.Browser.Viewport.Height,
		},
		Timeout:     c.Browser.DefaultTimeoutMs,
		AllowedURLs: c.Browser.AllowedURLs,
		DeniedURLs:  c.Browser.DeniedURLs,
	}
}
