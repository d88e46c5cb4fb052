package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/syncwave/syncwave/pkg/engine"
	"github.com/syncwave/syncwave/pkg/logging"
	"github.com/syncwave/syncwave/pkg/models"
	"github.com/syncwave/syncwave/pkg/output"
	"github.com/syncwave/syncwave/pkg/state"
)

// executePlan runs a plan through the engine and reports the outcome.
// It owns the logger and formatter from here on and closes both.
func executePlan(ctx context.Context, opts engine.Options, logger logging.Logger, store *state.Store, formatter output.Formatter, plan []*models.Operation) error {
	eng := engine.New(opts, store, logger, formatter)

	res, runErr := eng.Execute(ctx, plan)
	if res == nil {
		formatter.Close()
		logger.Close()
		return runErr
	}

	if err := formatter.Summary(res, runErr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write summary: %v\n", err)
	}
	formatter.Close()
	logger.Close()

	if code := res.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}
