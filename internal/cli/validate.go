package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/syncwave/syncwave/internal/platform"
	"github.com/syncwave/syncwave/pkg/config"
	"github.com/syncwave/syncwave/pkg/detect"
	"github.com/syncwave/syncwave/pkg/engine"
	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/output"
	"github.com/syncwave/syncwave/pkg/ratelimit"
	"github.com/syncwave/syncwave/pkg/state"
)

// validateSyncFlags validates the sync command flags
func validateSyncFlags() error {
	if err := validateCommonFlags(); err != nil {
		return err
	}

	// Check destination
	destInfo, err := os.Stat(syncFlags.Dest)
	if os.IsNotExist(err) {
		// Destination doesn't exist
		if syncFlags.CreateDest {
			// Create destination directory with parents
			if err := os.MkdirAll(syncFlags.Dest, 0755); err != nil {
				return fmt.Errorf("failed to create destination directory: %w", err)
			}
		} else {
			return fmt.Errorf("destination path does not exist: %s (use --create-dest to create it)", syncFlags.Dest)
		}
	} else if err != nil {
		return fmt.Errorf("failed to access destination path: %w", err)
	} else if !destInfo.IsDir() {
		return fmt.Errorf("destination path exists but is not a directory: %s", syncFlags.Dest)
	}

	return nil
}

// validatePlanFlags checks the plan command flags. Unlike a sync, a
// plan tolerates a missing destination.
func validatePlanFlags() error {
	return validateCommonFlags()
}

// validateCommonFlags covers the checks shared by sync and plan
func validateCommonFlags() error {
	if err := platform.ValidatePath(syncFlags.Source); err != nil {
		return err
	}
	if err := platform.ValidatePath(syncFlags.Dest); err != nil {
		return err
	}

	// Validate source exists
	if _, err := os.Stat(syncFlags.Source); os.IsNotExist(err) {
		return fmt.Errorf("source path does not exist: %s", syncFlags.Source)
	}

	// Validate paths are not identical
	sourceAbs, err := filepath.Abs(syncFlags.Source)
	if err != nil {
		return fmt.Errorf("failed to resolve source path: %w", err)
	}

	destAbs, err := filepath.Abs(syncFlags.Dest)
	if err != nil {
		return fmt.Errorf("failed to resolve destination path: %w", err)
	}

	if sourceAbs == destAbs {
		return fmt.Errorf("source and destination cannot be the same: %s", sourceAbs)
	}

	// Validate paths are not nested
	if strings.HasPrefix(destAbs, sourceAbs+string(filepath.Separator)) {
		return fmt.Errorf("destination cannot be inside source directory")
	}
	if strings.HasPrefix(sourceAbs, destAbs+string(filepath.Separator)) {
		return fmt.Errorf("source cannot be inside destination directory")
	}

	if syncFlags.Bandwidth != "" {
		if _, err := parseBandwidth(syncFlags.Bandwidth); err != nil {
			return err
		}
	}

	validOutputs := map[string]bool{"human": true, "json": true}
	if syncFlags.Output != "" && !validOutputs[syncFlags.Output] {
		return fmt.Errorf("invalid output format: %s (valid: human, json)", syncFlags.Output)
	}

	return nil
}

// parseBandwidth converts a human bandwidth spec like "10M" or "512K"
// into bytes per second
func parseBandwidth(s string) (int64, error) {
	spec := strings.ToUpper(strings.TrimSpace(s))
	if spec == "" {
		return 0, nil
	}
	spec = strings.TrimSuffix(spec, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(spec, "K"):
		multiplier = 1024
		spec = strings.TrimSuffix(spec, "K")
	case strings.HasSuffix(spec, "M"):
		multiplier = 1024 * 1024
		spec = strings.TrimSuffix(spec, "M")
	case strings.HasSuffix(spec, "G"):
		multiplier = 1024 * 1024 * 1024
		spec = strings.TrimSuffix(spec, "G")
	}

	value, err := strconv.ParseInt(spec, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid bandwidth limit: %s (use e.g. \"10M\", \"512K\", \"1G\")", s)
	}

	return value * multiplier, nil
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyFlagsToConfig overrides config values with command-line flags
func applyFlagsToConfig(cfg *config.Config) error {
	// Parallel workers
	if syncFlags.Parallel > 0 {
		cfg.Engine.MaxConcurrency = syncFlags.Parallel
	}

	// Retry budget
	if syncFlags.Retries > 0 {
		cfg.Engine.MaxRetries = syncFlags.Retries
	}

	// Execution toggles only enable, the config file can enable them
	// permanently
	if syncFlags.Transactional {
		cfg.Engine.Transactional = true
	}
	if syncFlags.Verify {
		cfg.Engine.VerifyChecksums = true
	}
	if syncFlags.Backups {
		cfg.Engine.CreateBackups = true
	}
	if syncFlags.Adaptive {
		cfg.Engine.Adaptive = true
	}
	if syncFlags.RequireClean {
		cfg.Git.RequireClean = true
	}

	// Bandwidth limit
	if syncFlags.Bandwidth != "" {
		limit, err := parseBandwidth(syncFlags.Bandwidth)
		if err != nil {
			return err
		}
		cfg.Performance.BandwidthLimit = limit
	}

	// Exclude patterns
	if len(syncFlags.Exclude) > 0 {
		cfg.Exclude = syncFlags.Exclude
	}

	// Output format
	if syncFlags.Output != "" {
		cfg.Output.Format = syncFlags.Output
	}
	if syncFlags.NoProgress {
		cfg.Output.Progress = false
	}

	// Disable progress in quiet mode
	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}

	// Enable progress in verbose mode
	if globalFlags.Verbose {
		cfg.Output.Progress = true
	}

	return nil
}

// newDetector builds a change detector from the configuration
func newDetector(cfg *config.Config, source, dest string) (*detect.Detector, error) {
	var limiter *ratelimit.Limiter
	if cfg.Performance.BandwidthLimit > 0 {
		limiter = ratelimit.NewLimiter(cfg.Performance.BandwidthLimit)
	}

	return detect.New(detect.Config{
		SourceRoot:      source,
		DestinationRoot: dest,
		Exclude:         cfg.Exclude,
		Workers:         cfg.Engine.MaxConcurrency,
		BufferSize:      cfg.Performance.ChunkSize,
		Limiter:         limiter,
	})
}

// buildEngineOptions translates configuration into engine options
func buildEngineOptions(cfg *config.Config, dryRun bool) engine.Options {
	return engine.Options{
		MaxConcurrency:   cfg.Engine.MaxConcurrency,
		MaxRetries:       cfg.Engine.MaxRetries,
		RetryBaseDelay:   time.Duration(cfg.Engine.RetryBaseDelay),
		VerifyChecksums:  cfg.Engine.VerifyChecksums,
		CreateBackups:    cfg.Engine.CreateBackups,
		Transactional:    cfg.Engine.Transactional,
		Adaptive:         cfg.Engine.Adaptive,
		DryRun:           dryRun,
		AutosaveInterval: time.Duration(cfg.State.Autosave),
		BandwidthLimit:   cfg.Performance.BandwidthLimit,
	}
}

// newLogger creates a logger based on configuration
func newLogger(cfg *config.Config) (logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NewNullLogger(), nil
	}

	path := cfg.Logging.File
	if path == "" {
		dir, err := platform.LogDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "syncwave.log")
	}

	var format logging.Format
	switch cfg.Logging.Format {
	case "text":
		format = logging.FormatText
	default:
		format = logging.FormatJSON
	}

	return logging.NewFileLogger(logging.FileLoggerConfig{
		Path:       path,
		Format:     format,
		Level:      logging.ParseLevel(cfg.Logging.Level),
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: 5,
	})
}

// newStore opens the session store at the configured or platform
// default location
func newStore(cfg *config.Config, log logging.Logger) (*state.Store, error) {
	dir := cfg.State.Dir
	if dir == "" {
		var err error
		dir, err = platform.SessionDir()
		if err != nil {
			return nil, err
		}
	}

	return state.NewStore(state.Config{
		Dir:         dir,
		MaxAge:      time.Duration(cfg.State.MaxAge),
		MaxSessions: cfg.State.MaxSessions,
		Logger:      log,
	})
}

// newFormatter builds the output formatter for a run. The progress bar
// is only used when stdout is a terminal.
func newFormatter(cfg *config.Config) (output.Formatter, error) {
	return output.New(output.Format(cfg.Output.Format), os.Stdout, output.Options{
		Progress: cfg.Output.Progress && output.IsTerminal(os.Stdout),
		Quiet:    cfg.Output.Quiet,
	})
}
