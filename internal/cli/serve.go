package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(e *env) *cobra.Command {
	var (
		origins   []string
		rateLimit int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := SignalContext(cmd.Context(), e.logger)
			defer cancel()

			return e.withApp(ctx, func(app *App) error {
				srv := apphttp.NewServer(":"+e.cfg.Port, apphttp.Services{
					Store:       app.Store,
					Ledger:      app.Ledger,
					Recurrence:  app.Recurrence,
					Obligations: app.Obligations,
					Aggregation: app.Aggregation,
					Projector:   app.Projector,
				}, e.logger, apphttp.Options{AllowedOrigins: origins, RequestsPerMinute: rateLimit})
				srv.ReadTimeout = 10 * time.Second
				srv.WriteTimeout = 10 * time.Second
				srv.IdleTimeout = 60 * time.Second
				srv.MaxHeaderBytes = 1 << 16

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					e.logger.Info("Starting fintrack server", "port", e.cfg.Port, "db_driver", e.cfg.DBDriver)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer shutdownCancel()
					e.logger.Info("Shutting down server", log.FieldOperation, log.OpShutdown)
					return srv.Shutdown(shutdownCtx)
				})
				if err := g.Wait(); err != nil {
					return err
				}
				e.logger.Info("Server stopped gracefully")
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origin (repeatable, default any)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 120, "requests per minute per client IP")
	return cmd
}
