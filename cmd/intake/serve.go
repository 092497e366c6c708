package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/intake/internal/cli"
	httpadapter "github.com/aretw0/intake/pkg/adapters/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP session API",
		Long: `Exposes sessions as a JSON API over HTTP, with server-sent events per session
and Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			app, err := buildApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			opts := []httpadapter.Option{httpadapter.WithLogger(app.Logger)}
			if cfg.Server.Metrics {
				opts = append(opts, httpadapter.WithMetricsHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))
			}

			srv := &http.Server{
				Addr:              ":" + strconv.Itoa(cfg.Server.Port),
				Handler:           httpadapter.NewHandler(app.Service, opts...),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Channel to listen for errors coming from the listener.
			serverErrors := make(chan error, 1)
			go func() {
				app.Logger.Info("Starting Intake Server", "addr", srv.Addr, "store", cfg.Store.Backend, "provider", cfg.Provider.Backend)
				serverErrors <- srv.ListenAndServe()
			}()

			sigCtx := cli.NewSignalContext(cmd.Context())
			defer sigCtx.Cancel()

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case <-sigCtx.Done():
				app.Logger.Info("Start shutdown", "signal", sigCtx.Signal())

				// Give outstanding requests a deadline for completion.
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					app.Logger.Warn("Graceful shutdown did not complete", "err", err)
					if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
				}
				app.Logger.Info("Intake Server stopped gracefully")
				return nil
			}
		},
	}
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	return cmd
}
