// Package config provides unified configuration loading for nodenet.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/nodenet/internal/logging"
)

// DirName is the name of the per-user nodenet directory under $HOME.
const DirName = ".nodenet"

// Config contains all nodenet configuration settings.
type Config struct {
	// Logging contains settings for operational and step logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Storage locates the nodenet repository and step traces.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Runner controls continuous stepping.
	Runner RunnerConfig `json:"runner" yaml:"runner"`

	// NativeModules locates native module definition files.
	NativeModules NativeModulesConfig `json:"native_modules" yaml:"native_modules"`

	// Lock configures the nodenet lock manager.
	Lock LockConfig `json:"lock" yaml:"lock"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" and "trace" enable step tracing to <data_dir>/steps.jsonl.
	Level string `json:"level" yaml:"level"`
}

// StorageConfig configures where nodenets are persisted.
type StorageConfig struct {
	// DataDir holds nodenets.db and steps.jsonl. Supports ~ and ${VAR}.
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// RunnerConfig configures the step runner.
type RunnerConfig struct {
	// StepInterval is the pause between two steps of a running nodenet.
	StepInterval time.Duration `json:"step_interval" yaml:"step_interval"`

	// MaxSteps stops a run after this many steps. 0 runs until interrupted.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`
}

// NativeModulesConfig configures native module loading.
type NativeModulesConfig struct {
	// Dir holds *.yaml native module definitions. Empty disables native modules.
	Dir string `json:"dir" yaml:"dir"`

	// Watch reloads native modules while running when files in Dir change.
	Watch bool `json:"watch" yaml:"watch"`
}

// LockConfig configures the lock manager.
type LockConfig struct {
	// DefaultTimeout is the lifetime in steps of locks acquired without one.
	DefaultTimeout int `json:"default_timeout" yaml:"default_timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: filepath.Join("~", DirName),
		},
		Runner: RunnerConfig{
			StepInterval: 100 * time.Millisecond,
		},
		Lock: LockConfig{
			DefaultTimeout: 100,
		},
	}
}

// DefaultPath returns ~/.nodenet/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// Load loads configuration from path, or from the default location when
// path is empty, and applies environment variables.
// Order: defaults -> config file -> environment variables.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		_, statErr := os.Stat(path)
		if statErr == nil || explicit {
			fileConfig, err := LoadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	config.Storage.DataDir = ExpandPath(config.Storage.DataDir)
	config.NativeModules.Dir = ExpandPath(config.NativeModules.Dir)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Runner.StepInterval < 0 {
		return fmt.Errorf("step_interval must be non-negative, got %v", c.Runner.StepInterval)
	}
	if c.Runner.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative, got %d", c.Runner.MaxSteps)
	}
	if c.Lock.DefaultTimeout < 1 {
		return fmt.Errorf("lock.default_timeout must be at least 1 step, got %d", c.Lock.DefaultTimeout)
	}
	if c.NativeModules.Watch && c.NativeModules.Dir == "" {
		return fmt.Errorf("native_modules.watch requires native_modules.dir")
	}
	return nil
}

// Keys lists the dot-notation keys understood by Get and Set.
func Keys() []string {
	return []string{
		"logging.level",
		"storage.data_dir",
		"runner.step_interval",
		"runner.max_steps",
		"native_modules.dir",
		"native_modules.watch",
		"lock.default_timeout",
	}
}

// Get retrieves a configuration value by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "logging.level":
		return c.Logging.Level, true
	case "storage.data_dir":
		return c.Storage.DataDir, true
	case "runner.step_interval":
		return c.Runner.StepInterval.String(), true
	case "runner.max_steps":
		return c.Runner.MaxSteps, true
	case "native_modules.dir":
		return c.NativeModules.Dir, true
	case "native_modules.watch":
		return c.NativeModules.Watch, true
	case "lock.default_timeout":
		return c.Lock.DefaultTimeout, true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key, parsing value for
// the key's type. The result is not validated.
func (c *Config) Set(key, value string) error {
	switch key {
	case "logging.level":
		c.Logging.Level = value
	case "storage.data_dir":
		c.Storage.DataDir = value
	case "runner.step_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		c.Runner.StepInterval = d
	case "runner.max_steps":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		c.Runner.MaxSteps = n
	case "native_modules.dir":
		c.NativeModules.Dir = value
	case "native_modules.watch":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		c.NativeModules.Watch = b
	case "lock.default_timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		c.Lock.DefaultTimeout = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("NODENET_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("NODENET_DATA_DIR"); v != "" {
		config.Storage.DataDir = v
	}
	if v := os.Getenv("NODENET_STEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NODENET_STEP_INTERVAL: %w", err)
		}
		config.Runner.StepInterval = d
	}
	if v := os.Getenv("NODENET_NATIVE_MODULES"); v != "" {
		config.NativeModules.Dir = v
	}
	return nil
}

// ExpandPath expands a leading ~ and ${VAR} patterns.
func ExpandPath(p string) string {
	if strings.Contains(p, "${") {
		p = os.Expand(p, os.Getenv)
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}
