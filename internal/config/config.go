// Package config provides configuration management for workpipe using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the WORKPIPE_ prefix, and validation. It manages the
// pipeline pool shape (workers, queue capacity, bounded/unbounded), the
// watch-mode task source (paths, extensions, debounce), and logging.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PipelineConfig shapes the worker pool and its task queue.
type PipelineConfig struct {
	Workers       int  `yaml:"workers" mapstructure:"workers"`
	QueueCapacity int  `yaml:"queue_capacity" mapstructure:"queue_capacity"`
	Unbounded     bool `yaml:"unbounded" mapstructure:"unbounded"`
}

// WatchConfig shapes the watch-mode task source.
type WatchConfig struct {
	Paths      []string      `yaml:"paths" mapstructure:"paths"`
	Extensions []string      `yaml:"extensions" mapstructure:"extensions"`
	Ignore     []string      `yaml:"ignore" mapstructure:"ignore"`
	Debounce   time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// LogConfig shapes the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply pipeline defaults only if not explicitly set; an explicit zero
	// must surface as a validation error, not be papered over.
	if !viper.IsSet("pipeline.workers") && config.Pipeline.Workers == 0 {
		config.Pipeline.Workers = 4
	}
	if !viper.IsSet("pipeline.queue_capacity") && config.Pipeline.QueueCapacity == 0 {
		config.Pipeline.QueueCapacity = 8
	}

	// Handle booleans set via viper (workaround for viper bool handling)
	if viper.IsSet("pipeline.unbounded") {
		config.Pipeline.Unbounded = viper.GetBool("pipeline.unbounded")
	}

	// Handle watch paths set via viper (workaround for viper slice handling)
	if viper.IsSet("watch.paths") && len(config.Watch.Paths) == 0 {
		paths := viper.GetStringSlice("watch.paths")
		if len(paths) > 0 {
			config.Watch.Paths = paths
		}
	}
	if viper.IsSet("watch.extensions") && len(config.Watch.Extensions) == 0 {
		extensions := viper.GetStringSlice("watch.extensions")
		if len(extensions) > 0 {
			config.Watch.Extensions = extensions
		}
	}
	if viper.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		ignore := viper.GetStringSlice("watch.ignore")
		if len(ignore) > 0 {
			config.Watch.Ignore = ignore
		}
	}

	// Apply default values for WatchConfig if not set
	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = []string{"."}
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = []string{".git", "node_modules"}
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 300 * time.Millisecond
	}

	// Apply default values for LogConfig if not set
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for correctness and safety.
func validateConfig(config *Config) error {
	if err := validatePipelineConfig(&config.Pipeline); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

func validatePipelineConfig(config *PipelineConfig) error {
	if config.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", config.Workers)
	}

	// The pool is a fixed set of goroutines; cap it well below anything a
	// host could run so a typo cannot exhaust the scheduler.
	if config.Workers > 4096 {
		return fmt.Errorf("workers %d exceeds maximum of 4096", config.Workers)
	}

	if !config.Unbounded && config.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative, got %d", config.QueueCapacity)
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid watch path '%s': %w", path, err)
		}
	}

	for _, ext := range config.Extensions {
		if ext == "" {
			return fmt.Errorf("empty extension")
		}
	}

	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", config.Debounce)
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	switch config.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level: %s", config.Level)
	}

	switch config.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", config.Format)
	}

	return nil
}

// validatePath validates a file path for safety.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	// Reject dangerous characters
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
