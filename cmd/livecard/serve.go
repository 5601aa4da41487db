package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livecard/internal/completion"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the completion sweep on a schedule and expose /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			detector := completion.NewDetector(a.logger, a.store, completion.WithMetrics(a.metrics))
			worker := completion.NewWorker(a.logger, detector, a.cfg.Completion.Interval, a.cfg.Completion.Enabled)

			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			srv := &http.Server{
				Addr:              a.cfg.Metrics.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				worker.Run(ctx)
			}()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Metrics server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("Shutting down")
			case err = <-errCh:
				a.logger.Error("Metrics server failed", "error", err)
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				a.logger.Warn("Metrics server shutdown", "error", serr)
			}
			wg.Wait()
			return err
		},
	}
}
