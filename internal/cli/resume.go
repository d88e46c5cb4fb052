package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewResumeCommand creates the resume command
func NewResumeCommand() *cobra.Command {
	var resumeFlags struct {
		Output     string
		NoProgress bool
	}

	cmd := &cobra.Command{
		Use:   "resume SESSION_ID",
		Short: "Resume an interrupted sync session",
		Long: `Load a stored session and execute its remaining operations.
Completed operations are skipped, interrupted and retryable failed
operations run again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if resumeFlags.Output != "" {
				cfg.Output.Format = resumeFlags.Output
			}
			if resumeFlags.NoProgress || globalFlags.Quiet {
				cfg.Output.Progress = false
			}
			if globalFlags.Quiet {
				cfg.Output.Quiet = true
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			store, err := newStore(cfg, logger)
			if err != nil {
				logger.Close()
				return fmt.Errorf("failed to open session store: %w", err)
			}

			info, err := store.Resume(args[0])
			if err != nil {
				logger.Close()
				return err
			}

			formatter, err := newFormatter(cfg)
			if err != nil {
				logger.Close()
				return err
			}

			// The stored session keeps its original execution
			// settings, only runtime concerns come from the current
			// config
			opts := buildEngineOptions(cfg, false)
			sc := info.Session.Config
			opts.MaxConcurrency = sc.MaxConcurrency
			opts.MaxRetries = sc.MaxRetries
			opts.RetryBaseDelay = sc.RetryBaseDelay
			opts.VerifyChecksums = sc.VerifyChecksums
			opts.CreateBackups = sc.CreateBackups
			opts.Transactional = sc.Transactional
			opts.Adaptive = sc.Adaptive
			opts.SourceRoot = sc.SourceRoot
			opts.DestinationRoot = sc.DestinationRoot
			opts.Session = info.Session

			return executePlan(ctx, opts, logger, store, formatter, nil)
		},
	}

	cmd.Flags().StringVarP(&resumeFlags.Output, "output", "o", "", "output format: human, json")
	cmd.Flags().BoolVar(&resumeFlags.NoProgress, "no-progress", false, "disable the progress bar")

	return cmd
}
