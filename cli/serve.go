package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/celluledoc/docflow/api"
)

// newServeCommand starts the API.
//
// GRACEFUL SHUTDOWN:
//
//	On SIGINT/SIGTERM the scheduler is stopped, active requests get 30s to
//	complete, then the database is closed.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the review API",
		Long: `Serves the review and edit API on DOCFLOW_HTTP_PORT. When
DOCFLOW_INGEST_INTERVAL is set, an ingestion also runs at that interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}
			runner := a.runner()
			handler := api.NewHandler(svc, runner, a.store, a.log)
			scheduler := api.NewIngestionScheduler(runner, a.cfg.IngestInterval, a.log)

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.HTTPPort),
				Handler:      api.NewRouter(handler),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 5 * time.Minute, // manual ingestion runs inside the request
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Infof("API available at http://localhost:%d/api", a.cfg.HTTPPort)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()
			scheduler.Start()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errc:
				scheduler.Stop()
				return fmt.Errorf("server failed: %w", err)
			case <-quit:
			}

			a.log.Info("shutting down server")
			scheduler.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.log.Info("server stopped")
			return nil
		},
	}
}
