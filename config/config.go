// Package config handles Aria configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Aria configuration. The zero value is not usable; start
// from Default() and overlay a YAML file with Load.
type Config struct {
	// LoopLimit is the iteration budget per turn. Must be greater than zero.
	LoopLimit int `yaml:"loop_limit"`
	// MemoryK is the maximum number of memory fragments retrieved at turn start.
	MemoryK int `yaml:"memory_k"`
	// SelectTimeoutSec bounds each completion-service call (seconds).
	SelectTimeoutSec int `yaml:"select_timeout_sec"`
	// ToolTimeoutSec bounds each tool invocation (seconds).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// Instructions overrides the default system instructions. Supports
	// template markers ({{.UserID}}, {{.UserInput}}).
	Instructions string `yaml:"instructions"`

	Model    ModelConfig  `yaml:"model"`
	Memory   MemoryConfig `yaml:"memory"`
	LogLevel string       `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"` // "json" (default) or "text"
}

// ModelConfig selects and configures the completion-service provider.
type ModelConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider string `yaml:"provider"`
	// Name is the provider-specific model identifier.
	Name string `yaml:"name"`
	// APIKey overrides the provider's environment-based credential lookup.
	APIKey string `yaml:"api_key"`
}

// MemoryConfig selects the memory store backend.
type MemoryConfig struct {
	// Backend is "inmemory" (default) or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the database file location for the sqlite backend.
	Path string `yaml:"path"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		LoopLimit:        5,
		MemoryK:          5,
		SelectTimeoutSec: 60,
		ToolTimeoutSec:   30,
		Model:            ModelConfig{Provider: "openai"},
		Memory:           MemoryConfig{Backend: "inmemory"},
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from a -config flag) is checked first.
// Then: ./aria.yaml, ~/.config/aria/config.yaml, /etc/aria/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"aria.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aria", "config.yaml"))
	}

	paths = append(paths, "/etc/aria/config.yaml")
	return paths
}

// Find locates a config file. If explicit is non-empty, it must exist.
// Otherwise the default search paths are tried and the first that exists wins.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the core depends on.
func (c *Config) Validate() error {
	if c.LoopLimit <= 0 {
		return fmt.Errorf("loop_limit must be greater than zero, got %d", c.LoopLimit)
	}
	if c.MemoryK < 0 {
		return fmt.Errorf("memory_k must not be negative, got %d", c.MemoryK)
	}
	if c.SelectTimeoutSec <= 0 {
		return fmt.Errorf("select_timeout_sec must be greater than zero, got %d", c.SelectTimeoutSec)
	}
	if c.ToolTimeoutSec <= 0 {
		return fmt.Errorf("tool_timeout_sec must be greater than zero, got %d", c.ToolTimeoutSec)
	}
	switch c.Memory.Backend {
	case "", "inmemory":
	case "sqlite":
		if c.Memory.Path == "" {
			return fmt.Errorf("memory.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown memory backend %q", c.Memory.Backend)
	}
	return nil
}

// SelectTimeout returns the per-completion deadline as a duration.
func (c *Config) SelectTimeout() time.Duration {
	return time.Duration(c.SelectTimeoutSec) * time.Second
}

// ToolTimeout returns the per-tool deadline as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}
