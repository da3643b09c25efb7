package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

func newWorkerCmd(e *env) *cobra.Command {
	var (
		interval   time.Duration
		noMirror   bool
		noSchedule bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run scheduled maintenance and the receipt mirror",
		Long: `worker periodically materializes due recurring rules, sweeps expired rules,
opens the current month's obligations and aggregates the previous month.
When an event broker is configured it also mirrors aggregation receipts to
the receipts spreadsheet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := SignalContext(cmd.Context(), e.logger)
			defer cancel()

			return e.withApp(ctx, func(app *App) error {
				g, gctx := errgroup.WithContext(ctx)
				if !noSchedule {
					g.Go(func() error {
						runScheduler(gctx, app, interval, time.Now)
						return nil
					})
				}
				if !noMirror {
					g.Go(func() error { return runMirror(gctx, e, app) })
				}
				err := g.Wait()
				if errors.Is(err, context.Canceled) {
					err = nil
				}
				e.logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between scheduled runs")
	cmd.Flags().BoolVar(&noMirror, "no-mirror", false, "do not mirror receipts")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "do not run scheduled maintenance")
	return cmd
}

func runMirror(ctx context.Context, e *env, app *App) error {
	sub, err := NewSubscriber(ctx, e.cfg, e.logger)
	if errors.Is(err, errNoBroker) {
		e.logger.Info("Event broker disabled, receipt mirror not started")
		return nil
	}
	if err != nil {
		return err
	}
	defer sub.Close()

	sheet, err := NewReceiptSheet(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	return worker.NewReceiptMirror(app.Store.Receipts(), sheet, e.logger).Run(ctx, sub)
}

// runScheduler runs one maintenance pass at startup and then every interval.
func runScheduler(ctx context.Context, app *App, interval time.Duration, now func() time.Time) {
	logger := app.Logger.WithComponent(log.ComponentWorker)
	logger.Info("Scheduler configured", "interval", interval.String())

	runMaintenance(ctx, app, now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runMaintenance(ctx, app, now())
		}
	}
}

// runMaintenance performs every scheduled job once. A failing job is logged
// and does not stop the others.
func runMaintenance(ctx context.Context, app *App, now time.Time) {
	logger := app.Logger.WithComponent(log.ComponentWorker)
	today := core.DateOf(now)

	if res, err := app.Recurrence.ProcessDue(ctx, today); err != nil {
		logger.ErrorContext(ctx, "Recurring processing failed", log.FieldOperation, log.OpProcess, log.FieldError, err)
	} else {
		logger.InfoContext(ctx, "Recurring processing complete", "entries_made", res.EntriesMade, "failed", res.Failed)
	}

	if n, err := app.Recurrence.SweepExpired(ctx, today); err != nil {
		logger.ErrorContext(ctx, "Sweep of expired rules failed", log.FieldOperation, log.OpSweep, log.FieldError, err)
	} else if n > 0 {
		logger.InfoContext(ctx, "Expired rules removed", log.FieldCount, n)
	}

	if res, err := app.Obligations.GeneratePeriodObligations(ctx, core.PeriodOf(now)); err != nil {
		logger.ErrorContext(ctx, "Obligation generation failed", log.FieldOperation, log.OpGenerate, log.FieldError, err)
	} else {
		logger.InfoContext(ctx, "Obligations generated", log.FieldPeriod, res.Period.String(), log.FieldCount, len(res.Created))
	}

	if res, err := app.Aggregation.AutoAggregate(ctx, now); err != nil {
		logger.ErrorContext(ctx, "Auto aggregation failed", log.FieldOperation, log.OpAggregate, log.FieldError, err)
	} else {
		logger.InfoContext(ctx, "Auto aggregation complete", log.FieldPeriod, res.Period.String(), "outcome", string(res.Outcome))
	}
}
