package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/syncwave/syncwave/pkg/output"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync would do, without doing it",
		Long: `Compare source and destination directories and list the changes a
sync would apply. No file operations are performed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, outFile)
		},
	}

	cmd.Flags().StringVarP(&syncFlags.Source, "source", "s", "", "source directory path (required)")
	cmd.Flags().StringVarP(&syncFlags.Dest, "dest", "d", "", "destination directory path (required)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("dest")

	cmd.Flags().StringSliceVar(&syncFlags.Exclude, "exclude", []string{}, "glob patterns to exclude")
	cmd.Flags().StringVarP(&syncFlags.Output, "output", "o", "", "output format: human, json")
	cmd.Flags().StringVar(&outFile, "out", "", "also write the change list to a file")
	cmd.Flags().StringVarP(&syncFlags.Bandwidth, "bandwidth", "b", "", "bandwidth limit for hashing (e.g., \"10M\")")

	return cmd
}

func runPlan(cmd *cobra.Command, outFile string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Planning never writes, a missing destination is fine
	if err := validatePlanFlags(); err != nil {
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

	detector, err := newDetector(cfg, syncFlags.Source, syncFlags.Dest)
	if err != nil {
		return err
	}

	changes, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("change detection failed: %w", err)
	}

	format := output.Format(cfg.Output.Format)
	if err := output.WriteChanges(os.Stdout, changes, format); err != nil {
		return err
	}

	if outFile != "" {
		if err := output.WriteChangesFile(outFile, changes, format); err != nil {
			return fmt.Errorf("failed to write change list: %w", err)
		}
	}

	return nil
}
