package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/output"
	"github.com/syncwave/syncwave/pkg/state"
)

// NewSessionsCommand creates the sessions command
func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sync sessions",
		Long:  `List, inspect and clean up the session files left by previous runs.`,
	}

	cmd.AddCommand(newSessionsListCommand())
	cmd.AddCommand(newSessionsShowCommand())
	cmd.AddCommand(newSessionsCleanCommand())

	return cmd
}

// openStore builds the session store without a run logger, session
// management is interactive
func openStore() (*state.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := newStore(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

func newSessionsListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			summaries, err := store.List()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			if len(summaries) == 0 {
				fmt.Println("No stored sessions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSTATUS\tCREATED\tOPS\tBYTES")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
					shortSessionID(s.ID),
					output.StatusColor(s.Status).Sprint(string(s.Status)),
					s.CreatedAt.Format("2006-01-02 15:04"),
					s.Completed, s.Total,
					output.FormatBytes(s.Bytes),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")

	return cmd
}

func newSessionsShowCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show the details of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			sess, err := store.Load(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sess)
			}

			printSession(sess)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")

	return cmd
}

func newSessionsCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove old terminal sessions",
		Long:  `Delete finished sessions beyond the retention window and trim the store to its session limit. Active sessions are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			removed, err := store.CleanupOldSessions()
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d old sessions\n", removed)
			return nil
		},
	}
}

func printSession(sess *models.Session) {
	fmt.Printf("Session %s\n", sess.ID)
	fmt.Printf("  Status:      %s\n", output.StatusColor(sess.Status).Sprint(string(sess.Status)))
	fmt.Printf("  Created:     %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:     %s\n", sess.UpdatedAt.Format("2006-01-02 15:04:05"))

	if sess.Config.SourceRoot != "" {
		fmt.Printf("  Source:      %s\n", sess.Config.SourceRoot)
		fmt.Printf("  Destination: %s\n", sess.Config.DestinationRoot)
	}

	fmt.Printf("  Workers:     %d\n", sess.Config.MaxConcurrency)
	fmt.Printf("  Retries:     %d\n", sess.Config.MaxRetries)
	if sess.Config.DryRun {
		fmt.Printf("  Dry run:     yes\n")
	}
	if sess.Config.Transactional {
		fmt.Printf("  Transactional: yes\n")
	}
	if sess.Config.VerifyChecksums {
		fmt.Printf("  Verify:      yes\n")
	}
	if sess.Config.CreateBackups {
		fmt.Printf("  Backups:     yes\n")
	}

	fmt.Printf("  Operations:  %d total, %d completed, %d failed, %d retries\n",
		sess.Stats.Total, sess.Stats.Completed, sess.Stats.Failed, sess.Stats.Retries)
	fmt.Printf("  Data:        %s\n", output.FormatBytes(sess.Stats.BytesProcessed))

	var failed []*models.Operation
	for _, op := range sess.Operations {
		if op.Status == models.StatusFailed {
			failed = append(failed, op)
		}
	}
	if len(failed) > 0 {
		fmt.Println("  Failed operations:")
		for _, op := range failed {
			path := op.Destination
			if path == "" {
				path = op.Source
			}
			fmt.Printf("    %s: %s\n", path, op.Error)
		}
	}
}

// shortSessionID trims a uuid down to its first block for display
func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
