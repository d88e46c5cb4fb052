package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/syncwave/syncwave/pkg/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View or modify syncwave configuration.`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			workers := "auto"
			if cfg.Engine.MaxConcurrency > 0 {
				workers = fmt.Sprintf("%d", cfg.Engine.MaxConcurrency)
			}

			fmt.Printf("Workers:         %s\n", workers)
			fmt.Printf("Retries:         %d (base delay %s)\n", cfg.Engine.MaxRetries, time.Duration(cfg.Engine.RetryBaseDelay))
			fmt.Printf("Verify:          %t\n", cfg.Engine.VerifyChecksums)
			fmt.Printf("Backups:         %t\n", cfg.Engine.CreateBackups)
			fmt.Printf("Transactional:   %t\n", cfg.Engine.Transactional)
			fmt.Printf("Adaptive:        %t\n", cfg.Engine.Adaptive)
			fmt.Printf("Bandwidth limit: %s\n", bandwidthLabel(cfg.Performance.BandwidthLimit))
			fmt.Printf("Session max age: %s (keep %d)\n", time.Duration(cfg.State.MaxAge), cfg.State.MaxSessions)
			fmt.Printf("Output format:   %s\n", cfg.Output.Format)
			fmt.Printf("Log level:       %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
			fmt.Printf("Require clean:   %t\n", cfg.Git.RequireClean)
			if len(cfg.Exclude) > 0 {
				fmt.Printf("Exclude:         %s\n", strings.Join(cfg.Exclude, ", "))
			}

			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}

			cfg := config.Default()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			fmt.Printf("Configuration file created at: %s\n", path)
			return nil
		},
	}
}

func bandwidthLabel(limit int64) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d bytes/s", limit)
}
