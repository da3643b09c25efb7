package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// env is filled by the root command before any subcommand runs.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	out    io.Writer

	// open builds the App. Tests replace it to run commands on a memory store.
	open func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error)
}

// NewRootCmd assembles the fintrack command tree.
func NewRootCmd() *cobra.Command {
	e := &env{out: os.Stdout, open: openApp}
	return newRootCmd(e)
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "fintrack",
		Short: "Personal ledger with recurring rules and debtor obligations",
		Long: `fintrack keeps a ledger of income, expenses and investments, materializes
recurring rules into entries, tracks what debtors owe per month and folds
settled payments into the ledger once per period.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg != nil {
				return nil
			}
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = SetupLogger(cfg).WithComponent(log.ComponentCLI)
			return nil
		},
	}
	root.SetOut(e.out)

	root.AddCommand(
		newServeCmd(e),
		newWorkerCmd(e),
		newMigrateCmd(e),
		newAggregateCmd(e),
		newObligationsCmd(e),
		newRecurringCmd(e),
		newExportCmd(e),
		newSeedCmd(e),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// describe prefixes domain errors with their category for the terminal.
func describe(err error) string {
	switch {
	case core.IsValidation(err):
		return "invalid input: " + err.Error()
	case core.IsNotFound(err):
		return "not found: " + err.Error()
	case core.IsConflict(err):
		return "conflict: " + err.Error()
	default:
		return err.Error()
	}
}

// withApp opens the App for the duration of fn.
func (e *env) withApp(ctx context.Context, fn func(app *App) error) error {
	app, err := e.open(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			e.logger.Warn("Close failed", log.FieldError, cerr)
		}
	}()
	return fn(app)
}

// parsePeriodFlag accepts MM/YYYY or YYYY-MM.
func parsePeriodFlag(raw string) (core.Period, error) {
	if raw == "" {
		return core.Period{}, core.NewValidationError("period", nil, "--period is required")
	}
	return core.ParsePeriod(raw)
}
