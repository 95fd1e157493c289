package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const FileName = "siteplan.yml"

// Config models siteplan.yml.
type Config struct {
	Schedule struct {
		WindowDays int      `yaml:"window_days"`
		Holidays   []string `yaml:"holidays"`
	} `yaml:"schedule"`
	Session struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"session"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Schedule.WindowDays < 1 || c.Schedule.WindowDays > 366 {
		return fmt.Errorf("schedule.window_days must be between 1 and 366, got %d", c.Schedule.WindowDays)
	}
	for _, h := range c.Schedule.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("schedule.holidays: %q is not a YYYY-MM-DD date", h)
		}
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// HolidaySet returns the configured holidays keyed by date string.
func (c *Config) HolidaySet() map[string]bool {
	set := make(map[string]bool, len(c.Schedule.Holidays))
	for _, h := range c.Schedule.Holidays {
		set[h] = true
	}
	return set
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// Load reads config from path, or from the workspace when path is empty.
// A missing workspace file yields the defaults; an explicit path must exist.
func Load(workspace, path string) (*Config, error) {
	if path != "" {
		return FromFile(path)
	}
	return LoadOptional(workspace)
}

// LoadOptional returns the defaults if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML overlays raw YAML onto the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, fmt.Errorf("default config yaml: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `schedule:
  # Gantt window length in days.
  window_days: 42
  # Non-working days shaded on the Gantt chart (South Africa, 2025).
  holidays:
    - "2025-01-01"
    - "2025-03-21"
    - "2025-04-18"
    - "2025-04-21"
    - "2025-04-28"
    - "2025-05-01"
    - "2025-06-16"
    - "2025-08-11"
    - "2025-09-24"
    - "2025-12-16"
    - "2025-12-25"
    - "2025-12-26"

session:
  ttl: 30m

log:
  level: info
  format: console

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`
