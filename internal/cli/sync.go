package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/syncwave/syncwave/pkg/detect"
	"github.com/syncwave/syncwave/pkg/gitcheck"
	"github.com/syncwave/syncwave/pkg/output"
)

// SyncFlags holds sync command flags
type SyncFlags struct {
	Source        string
	Dest          string
	DryRun        bool
	Transactional bool
	Verify        bool
	Backups       bool
	Parallel      int
	Adaptive      bool
	Retries       int
	Bandwidth     string
	Exclude       []string
	RequireClean  bool
	StrictClean   bool
	CreateDest    bool
	Output        string
	NoProgress    bool
}

var syncFlags SyncFlags

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize two folders",
		Long: `Detect differences between source and destination directories and
execute the resulting plan: copy new files, update changed ones and
delete files that no longer exist in the source.`,
		RunE: runSync,
	}

	// Required flags
	cmd.Flags().StringVarP(&syncFlags.Source, "source", "s", "", "source directory path (required)")
	cmd.Flags().StringVarP(&syncFlags.Dest, "dest", "d", "", "destination directory path (required)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("dest")

	// Optional flags
	cmd.Flags().BoolVar(&syncFlags.DryRun, "dry-run", false, "preview the plan, don't touch any file")
	cmd.Flags().BoolVar(&syncFlags.Transactional, "transactional", false, "roll back completed operations when any operation fails")
	cmd.Flags().BoolVar(&syncFlags.Verify, "verify", false, "re-hash written files against the source checksum")
	cmd.Flags().BoolVar(&syncFlags.Backups, "backups", false, "keep a backup of every overwritten or deleted file")
	cmd.Flags().IntVarP(&syncFlags.Parallel, "parallel", "p", 0, "number of parallel workers (default: number of CPUs, capped at 5)")
	cmd.Flags().BoolVar(&syncFlags.Adaptive, "adaptive", false, "let the performance monitor resize the worker pool")
	cmd.Flags().IntVar(&syncFlags.Retries, "retries", 0, "attempts per operation before it counts as failed (default: 3)")
	cmd.Flags().StringVarP(&syncFlags.Bandwidth, "bandwidth", "b", "", "bandwidth limit (e.g., \"10M\", \"1G\")")
	cmd.Flags().StringSliceVar(&syncFlags.Exclude, "exclude", []string{}, "glob patterns to exclude")
	cmd.Flags().BoolVar(&syncFlags.RequireClean, "require-clean", false, "refuse a live run when the destination git working tree is dirty")
	cmd.Flags().BoolVar(&syncFlags.StrictClean, "strict-clean", false, "with --require-clean, untracked files also count as dirty")
	cmd.Flags().BoolVar(&syncFlags.CreateDest, "create-dest", false, "create destination directory if it doesn't exist")
	cmd.Flags().StringVarP(&syncFlags.Output, "output", "o", "", "output format: human, json")
	cmd.Flags().BoolVar(&syncFlags.NoProgress, "no-progress", false, "disable the progress bar")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Validate flags
	if err := validateSyncFlags(); err != nil {
		return err
	}

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	if err := applyFlagsToConfig(cfg); err != nil {
		return err
	}

	// A dirty destination working tree would mix sync writes with
	// uncommitted work, refuse before planning anything
	if cfg.Git.RequireClean && !syncFlags.DryRun {
		err := gitcheck.CheckClean(syncFlags.Dest, syncFlags.StrictClean || cfg.Git.Strict)
		if errors.Is(err, gitcheck.ErrNotARepository) {
			fmt.Fprintf(os.Stderr, "Warning: destination is not a git repository, --require-clean has no effect\n")
		} else if err != nil {
			return err
		}
	}

	// Detect changes
	detector, err := newDetector(cfg, syncFlags.Source, syncFlags.Dest)
	if err != nil {
		return err
	}

	changes, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("change detection failed: %w", err)
	}

	if len(changes) == 0 {
		return output.WriteChanges(os.Stdout, nil, output.Format(cfg.Output.Format))
	}

	plan := detect.BuildPlan(changes, detector.SourceRoot(), detector.DestinationRoot())

	// Create logger
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Create session store
	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Close()
		return fmt.Errorf("failed to open session store: %w", err)
	}

	// Create output formatter
	formatter, err := newFormatter(cfg)
	if err != nil {
		logger.Close()
		return err
	}

	opts := buildEngineOptions(cfg, syncFlags.DryRun)
	opts.SourceRoot = detector.SourceRoot()
	opts.DestinationRoot = detector.DestinationRoot()

	return executePlan(ctx, opts, logger, store, formatter, plan)
}
