package config

import (
	"time"

	"github.com/syncwave/syncwave/pkg/models"
)

// Config represents the application configuration
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	State       StateConfig       `yaml:"state"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
	Exclude     []string          `yaml:"exclude"`
	Git         GitConfig         `yaml:"git"`
}

// EngineConfig holds execution settings
type EngineConfig struct {
	MaxConcurrency  int      `yaml:"max_concurrency"` // 0 = number of CPUs, capped at 5
	MaxRetries      int      `yaml:"max_retries"`
	RetryBaseDelay  Duration `yaml:"retry_base_delay"`
	VerifyChecksums bool     `yaml:"verify_checksums"`
	CreateBackups   bool     `yaml:"create_backups"`
	Transactional   bool     `yaml:"transactional"`
	Adaptive        bool     `yaml:"adaptive"`
}

// MonitorConfig holds performance monitor tuning
type MonitorConfig struct {
	RollingWindow   int     `yaml:"rolling_window"`
	SmoothingFactor float64 `yaml:"smoothing_factor"`
	CPUWarn         float64 `yaml:"cpu_warn"`
	CPUCritical     float64 `yaml:"cpu_critical"`
	MemoryWarn      float64 `yaml:"memory_warn"`
	MemoryCritical  float64 `yaml:"memory_critical"`
}

// StateConfig holds session persistence settings
type StateConfig struct {
	Dir         string   `yaml:"dir"` // empty = platform default
	MaxAge      Duration `yaml:"max_age"`
	MaxSessions int      `yaml:"max_sessions"`
	Autosave    Duration `yaml:"autosave"`
}

// PerformanceConfig holds transfer throughput settings
type PerformanceConfig struct {
	BandwidthLimit int64 `yaml:"bandwidth_limit"` // bytes per second, 0 = unlimited
	ChunkSize      int   `yaml:"chunk_size"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format  string `yaml:"format"` // "json" or "text"
	File    string `yaml:"file"`   // Log file path (empty = platform default)
	MaxSize int64  `yaml:"max_size"`
}

// GitConfig holds working-tree safety settings
type GitConfig struct {
	RequireClean bool `yaml:"require_clean"`
	Strict       bool `yaml:"strict"` // untracked files also count as dirty
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrency:  0,
			MaxRetries:      3,
			RetryBaseDelay:  Duration(500 * time.Millisecond),
			VerifyChecksums: false,
			CreateBackups:   false,
			Transactional:   false,
			Adaptive:        false,
		},
		Monitor: MonitorConfig{
			RollingWindow:   10,
			SmoothingFactor: 0.3,
			CPUWarn:         0.75,
			CPUCritical:     0.90,
			MemoryWarn:      0.80,
			MemoryCritical:  0.95,
		},
		State: StateConfig{
			Dir:         "",
			MaxAge:      Duration(7 * 24 * time.Hour),
			MaxSessions: 50,
			Autosave:    Duration(5 * time.Second),
		},
		Performance: PerformanceConfig{
			BandwidthLimit: 0,
			ChunkSize:      262144,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "json",
			File:    "",
			MaxSize: 10 * 1024 * 1024,
		},
		Exclude: []string{
			"*.tmp",
			".git/",
			"node_modules/",
		},
		Git: GitConfig{
			RequireClean: false,
			Strict:       false,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Engine.MaxConcurrency < 0 {
		return &models.ValidationError{
			Field:   "engine.max_concurrency",
			Message: "cannot be negative",
		}
	}

	if c.Engine.MaxRetries < 1 {
		return &models.ValidationError{
			Field:   "engine.max_retries",
			Message: "must be at least 1",
		}
	}

	if c.Engine.RetryBaseDelay <= 0 {
		return &models.ValidationError{
			Field:   "engine.retry_base_delay",
			Message: "must be positive",
		}
	}

	if c.Monitor.RollingWindow < 1 {
		return &models.ValidationError{
			Field:   "monitor.rolling_window",
			Message: "must be at least 1",
		}
	}

	if c.Monitor.SmoothingFactor <= 0 || c.Monitor.SmoothingFactor > 1 {
		return &models.ValidationError{
			Field:   "monitor.smoothing_factor",
			Message: "must be in (0, 1]",
		}
	}

	if err := validateThreshold("monitor.cpu_warn", c.Monitor.CPUWarn); err != nil {
		return err
	}
	if err := validateThreshold("monitor.cpu_critical", c.Monitor.CPUCritical); err != nil {
		return err
	}
	if err := validateThreshold("monitor.memory_warn", c.Monitor.MemoryWarn); err != nil {
		return err
	}
	if err := validateThreshold("monitor.memory_critical", c.Monitor.MemoryCritical); err != nil {
		return err
	}

	if c.Monitor.CPUWarn >= c.Monitor.CPUCritical {
		return &models.ValidationError{
			Field:   "monitor.cpu_warn",
			Message: "must be below monitor.cpu_critical",
		}
	}

	if c.Monitor.MemoryWarn >= c.Monitor.MemoryCritical {
		return &models.ValidationError{
			Field:   "monitor.memory_warn",
			Message: "must be below monitor.memory_critical",
		}
	}

	if c.State.MaxAge <= 0 {
		return &models.ValidationError{
			Field:   "state.max_age",
			Message: "must be positive",
		}
	}

	if c.State.MaxSessions < 1 {
		return &models.ValidationError{
			Field:   "state.max_sessions",
			Message: "must be at least 1",
		}
	}

	if c.State.Autosave <= 0 {
		return &models.ValidationError{
			Field:   "state.autosave",
			Message: "must be positive",
		}
	}

	if c.Performance.BandwidthLimit < 0 {
		return &models.ValidationError{
			Field:   "performance.bandwidth_limit",
			Message: "cannot be negative",
		}
	}

	if c.Performance.ChunkSize < 1024 {
		return &models.ValidationError{
			Field:   "performance.chunk_size",
			Message: "must be at least 1024 bytes",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if c.Logging.MaxSize < 0 {
		return &models.ValidationError{
			Field:   "logging.max_size",
			Message: "cannot be negative",
		}
	}

	return nil
}

func validateThreshold(field string, v float64) error {
	if v <= 0 || v > 1 {
		return &models.ValidationError{
			Field:   field,
			Message: "must be in (0, 1]",
		}
	}
	return nil
}
