package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage/sqldb"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e.logger.Info("Running migrations", log.FieldOperation, log.OpMigrate, "db_driver", e.cfg.DBDriver)
			if err := sqldb.RunMigrations(storeOptions(e.cfg)); err != nil {
				return err
			}
			e.logger.Info("Migrations applied")
			return nil
		},
	}
}

func newAggregateCmd(e *env) *cobra.Command {
	var (
		period string
		auto   bool
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Fold a period's settled payments into one income entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(app *App) error {
				var (
					res services.AggregationResult
					err error
				)
				if auto {
					res, err = app.Aggregation.AutoAggregate(cmd.Context(), time.Now())
				} else {
					p, perr := parsePeriodFlag(period)
					if perr != nil {
						return perr
					}
					res, err = app.Aggregation.Aggregate(cmd.Context(), p)
				}
				if err != nil {
					return err
				}
				return e.printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period to aggregate (MM/YYYY)")
	cmd.Flags().BoolVar(&auto, "auto", false, "aggregate the previous calendar month")
	cmd.MarkFlagsMutuallyExclusive("period", "auto")
	cmd.MarkFlagsOneRequired("period", "auto")
	return cmd
}

func newObligationsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obligations",
		Short: "Manage debtor obligations",
	}

	var period string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Open a pending obligation for every active debtor",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := core.PeriodOf(time.Now())
			if period != "" {
				var err error
				if p, err = parsePeriodFlag(period); err != nil {
					return err
				}
			}
			return e.withApp(cmd.Context(), func(app *App) error {
				res, err := app.Obligations.GeneratePeriodObligations(cmd.Context(), p)
				if err != nil {
					return err
				}
				return e.printJSON(res)
			})
		},
	}
	generate.Flags().StringVar(&period, "period", "", "period (MM/YYYY), default current month")
	cmd.AddCommand(generate)
	return cmd
}

func newRecurringCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Materialize or sweep recurring rules",
	}

	var date string
	today := func() (core.Date, error) {
		if date == "" {
			return core.DateOf(time.Now()), nil
		}
		return core.ParseDate(date)
	}

	process := &cobra.Command{
		Use:   "process",
		Short: "Create ledger entries for every due occurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := today()
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(app *App) error {
				res, err := app.Recurrence.ProcessDue(cmd.Context(), d)
				if err != nil {
					return err
				}
				return e.printJSON(res)
			})
		},
	}
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete rules whose end date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := today()
			if err != nil {
				return err
			}
			return e.withApp(cmd.Context(), func(app *App) error {
				n, err := app.Recurrence.SweepExpired(cmd.Context(), d)
				if err != nil {
					return err
				}
				return e.printJSON(map[string]int{"deleted": n})
			})
		},
	}
	cmd.PersistentFlags().StringVar(&date, "date", "", "processing date (YYYY-MM-DD), default today")
	cmd.AddCommand(process, sweep)
	return cmd
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
